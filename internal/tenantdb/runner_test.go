// Copyright 2026 The Shopfloor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tenantdb

import (
	"context"
	"database/sql"
	"testing"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	// In-memory sqlite vanishes per connection; pin to one
	db.SetMaxOpenConns(1)
	return db
}

func TestMigrateFreshDatabase(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()

	if err := NewRunner().Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// Core tables from the migration set exist
	for _, table := range []string{"employees", "positions", "customers", "jobs", "pay_periods", "time_entries", "shifts"} {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migration: %v", table, err)
		}
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("failed to count applied migrations: %v", err)
	}
	if count == 0 {
		t.Error("no versions recorded in schema_migrations")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()
	runner := NewRunner()

	if err := runner.Migrate(ctx, db); err != nil {
		t.Fatalf("first Migrate() error = %v", err)
	}

	var before int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&before); err != nil {
		t.Fatalf("failed to count applied migrations: %v", err)
	}

	// Second run against the same database must be a clean no-op
	if err := runner.Migrate(ctx, db); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	var after int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&after); err != nil {
		t.Fatalf("failed to count applied migrations: %v", err)
	}
	if before != after {
		t.Errorf("re-run changed applied count: before = %d, after = %d", before, after)
	}
}

func TestMigrationsApplyInOrder(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatalf("migrationNames() error = %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected at least 2 migration files, got %d", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("migrations out of order: %s before %s", names[i-1], names[i])
		}
	}
}
