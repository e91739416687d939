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

// AccessRepository implements tenant.AccessRepository
type AccessRepository struct {
	db *DB
}

// NewAccessRepository creates a new tenant-access repository
func NewAccessRepository(db *DB) *AccessRepository {
	return &AccessRepository{db: db}
}

// Upsert inserts a grant or replaces the sealed blob for an existing
// (tenant, user) pair. The unique constraint resolves concurrent grant
// attempts for the same pair; last writer wins, never a duplicate row.
func (r *AccessRepository) Upsert(ctx context.Context, a *tenant.Access) error {
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO tenant_access (tenant_id, user_id, iv, access_token_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, user_id) DO UPDATE
			SET iv = EXCLUDED.iv,
			    access_token_hash = EXCLUDED.access_token_hash,
			    updated_at = now()
		RETURNING id, created_at, updated_at
	`, a.TenantID, a.UserID, a.IV, a.SealedToken).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert tenant access: %w", err)
	}
	return nil
}

// Get retrieves the grant for a (tenant, user) pair
func (r *AccessRepository) Get(ctx context.Context, tenantID, userID int64) (*tenant.Access, error) {
	var a tenant.Access
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, iv, access_token_hash, created_at, updated_at
		FROM tenant_access
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(
		&a.ID, &a.TenantID, &a.UserID, &a.IV, &a.SealedToken, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrAccessNotFound
		}
		return nil, fmt.Errorf("failed to get tenant access: %w", err)
	}
	return &a, nil
}

// ListForUser retrieves all grants for a user joined with their tenants,
// ordered by grant age so "first tenant" is stable.
func (r *AccessRepository) ListForUser(ctx context.Context, userID int64) ([]*tenant.UserGrant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT a.id, a.tenant_id, a.user_id, a.iv, a.access_token_hash, a.created_at, a.updated_at,
		       t.id, t.company_name, t.db_url, t.state, t.created_at, t.updated_at
		FROM tenant_access a
		JOIN tenants t ON t.id = a.tenant_id
		WHERE a.user_id = $1
		ORDER BY a.created_at, a.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant access: %w", err)
	}
	defer rows.Close()

	var grants []*tenant.UserGrant
	for rows.Next() {
		var a tenant.Access
		var t tenant.Tenant
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.UserID, &a.IV, &a.SealedToken, &a.CreatedAt, &a.UpdatedAt,
			&t.ID, &t.CompanyName, &t.DBUrl, &t.State, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tenant access: %w", err)
		}
		grants = append(grants, &tenant.UserGrant{Access: &a, Tenant: &t})
	}
	return grants, rows.Err()
}

// DeleteForTenant removes all grants for a tenant
func (r *AccessRepository) DeleteForTenant(ctx context.Context, tenantID int64) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM tenant_access WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant access: %w", err)
	}
	return nil
}
