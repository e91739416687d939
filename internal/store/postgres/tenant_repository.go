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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shopfloor/shopfloor/internal/tenant"
)

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create inserts a tenant row and assigns its id
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	state := t.State
	if state == "" {
		state = tenant.StateDraft
	}
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO tenants (company_name, state)
		VALUES ($1, $2)
		RETURNING id, state, created_at, updated_at
	`, t.CompanyName, state).Scan(&t.ID, &t.State, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id int64) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, company_name, db_url, state, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, id).Scan(&t.ID, &t.CompanyName, &t.DBUrl, &t.State, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

// SetURL records the resolved connection URL
func (r *TenantRepository) SetURL(ctx context.Context, id int64, dbURL string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE tenants SET db_url = $2, updated_at = now()
		WHERE id = $1
	`, id, dbURL)
	if err != nil {
		return fmt.Errorf("failed to set tenant url: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// SetState advances the persisted provisioning state
func (r *TenantRepository) SetState(ctx context.Context, id int64, state string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE tenants SET state = $2, updated_at = now()
		WHERE id = $1
	`, id, state)
	if err != nil {
		return fmt.Errorf("failed to set tenant state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// Delete removes a tenant row
func (r *TenantRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}
