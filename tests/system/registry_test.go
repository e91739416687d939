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

// Package system provides integration tests that run against a real
// PostgreSQL registry database.
//
// Test Execution:
//
//	INTEGRATION_TEST=true go test -v ./tests/system/...
//
// Prerequisites:
//
//	docker compose up -d postgres
//
// Test Categories:
//   - REG-*: Registry persistence tests
//   - GRT-*: Tenant-access grant tests
package system

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfloor/shopfloor/internal/identity"
	"github.com/shopfloor/shopfloor/internal/store/postgres"
	"github.com/shopfloor/shopfloor/internal/tenant"
)

// testDB is the shared database connection for integration tests
var testDB *postgres.DB

// TestMain sets up and tears down the test database connection
func TestMain(m *testing.M) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		os.Exit(0)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         getEnvOrDefault("REGISTRY_DB_HOST", "localhost"),
		Port:         getEnvOrDefault("REGISTRY_DB_PORT", "5432"),
		User:         getEnvOrDefault("REGISTRY_DB_USER", "shopfloor"),
		Password:     getEnvOrDefault("REGISTRY_DB_PASSWORD", "shopfloor_dev_password"),
		Database:     getEnvOrDefault("REGISTRY_DB_NAME", "shopfloor"),
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	testDB = db

	code := m.Run()
	db.Close()
	os.Exit(code)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@system.test", prefix, time.Now().UnixNano())
}

// REG-001: user rows round-trip with password material intact
func TestUserPersistence(t *testing.T) {
	repo := postgres.NewUserRepository(testDB)
	ctx := context.Background()

	user := &identity.User{
		Email:        uniqueEmail("reg001"),
		FirstName:    "Ada",
		LastName:     "Lovelace",
		PasswordHash: "digest",
		Salt:         "salt",
		Role:         identity.RoleOwner,
	}
	require.NoError(t, repo.Create(ctx, user))
	require.NotZero(t, user.ID)

	byEmail, err := repo.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, "digest", byEmail.PasswordHash)
	assert.Equal(t, "salt", byEmail.Salt)

	_, err = repo.GetByEmail(ctx, "nobody@system.test")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

// REG-002: duplicate emails are rejected by the unique constraint
func TestUserEmailUniqueness(t *testing.T) {
	repo := postgres.NewUserRepository(testDB)
	ctx := context.Background()

	email := uniqueEmail("reg002")
	first := &identity.User{Email: email, PasswordHash: "d", Salt: "s", Role: identity.RoleOwner}
	require.NoError(t, repo.Create(ctx, first))

	dup := &identity.User{Email: email, PasswordHash: "d", Salt: "s", Role: identity.RoleOwner}
	assert.Error(t, repo.Create(ctx, dup))
}

// REG-003: tenant state transitions are persisted and observable
func TestTenantStatePersistence(t *testing.T) {
	repo := postgres.NewTenantRepository(testDB)
	ctx := context.Background()

	tn := &tenant.Tenant{CompanyName: "System Test Shop"}
	require.NoError(t, repo.Create(ctx, tn))

	stored, err := repo.GetByID(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StateDraft, stored.State)
	assert.Nil(t, stored.DBUrl)

	require.NoError(t, repo.SetState(ctx, tn.ID, tenant.StateProvisioning))
	require.NoError(t, repo.SetURL(ctx, tn.ID, "libsql://system.example.com"))
	require.NoError(t, repo.SetState(ctx, tn.ID, tenant.StateActive))

	stored, err = repo.GetByID(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StateActive, stored.State)
	require.NotNil(t, stored.DBUrl)
	assert.Equal(t, "libsql://system.example.com", *stored.DBUrl)

	require.NoError(t, repo.Delete(ctx, tn.ID))
	_, err = repo.GetByID(ctx, tn.ID)
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}

// GRT-001: the (tenant, user) grant upserts instead of duplicating
func TestAccessUpsert(t *testing.T) {
	users := postgres.NewUserRepository(testDB)
	tenants := postgres.NewTenantRepository(testDB)
	access := postgres.NewAccessRepository(testDB)
	ctx := context.Background()

	user := &identity.User{Email: uniqueEmail("grt001"), PasswordHash: "d", Salt: "s", Role: identity.RoleOwner}
	require.NoError(t, users.Create(ctx, user))
	tn := &tenant.Tenant{CompanyName: "Grant Shop"}
	require.NoError(t, tenants.Create(ctx, tn))

	first := &tenant.Access{TenantID: tn.ID, UserID: user.ID, IV: []byte("iv-one-12345"), SealedToken: []byte("blob-one")}
	require.NoError(t, access.Upsert(ctx, first))

	second := &tenant.Access{TenantID: tn.ID, UserID: user.ID, IV: []byte("iv-two-12345"), SealedToken: []byte("blob-two")}
	require.NoError(t, access.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID, "re-grant replaces the row, never duplicates")

	stored, err := access.Get(ctx, tn.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob-two"), stored.SealedToken)

	grants, err := access.ListForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, tn.ID, grants[0].Tenant.ID)

	require.NoError(t, access.DeleteForTenant(ctx, tn.ID))
	_, err = access.Get(ctx, tn.ID, user.ID)
	assert.ErrorIs(t, err, tenant.ErrAccessNotFound)
}
