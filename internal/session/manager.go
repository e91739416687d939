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

package session

import (
	"context"
	"fmt"

	"github.com/shopfloor/shopfloor/internal/identity"
	"github.com/shopfloor/shopfloor/internal/tenant"
)

// Manager builds sessions from registry state and enforces the
// tenant-switch authorization boundary.
type Manager struct {
	users  identity.Repository
	grants tenant.AccessRepository
	codec  *Codec
}

// NewManager creates a session manager
func NewManager(users identity.Repository, grants tenant.AccessRepository, codec *Codec) *Manager {
	return &Manager{users: users, grants: grants, codec: codec}
}

// Create loads the user's public profile and full tenant-access list and
// selects the active tenant. With no explicit tenantID the first grant
// wins; a user with zero grants cannot hold a session.
func (m *Manager) Create(ctx context.Context, userID int64, tenantID ...int64) (*Session, error) {
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	userGrants, err := m.grants.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant access: %w", err)
	}
	if len(userGrants) == 0 {
		return nil, ErrNoTenantGrants
	}

	s := &Session{User: user.Public()}
	for _, g := range userGrants {
		s.TenantAccess = append(s.TenantAccess, Grant{
			TenantID:        g.Tenant.ID,
			IV:              g.Access.IV,
			AccessTokenHash: g.Access.SealedToken,
			Tenant:          GrantTenant{DBUrl: g.Tenant.DBUrl},
		})
	}

	if len(tenantID) > 0 {
		if s.Grant(tenantID[0]) == nil {
			return nil, ErrTenantNotGranted
		}
		s.CurrentTenantID = tenantID[0]
	} else {
		s.CurrentTenantID = s.TenantAccess[0].TenantID
	}

	return s, nil
}

// SetActiveTenant regenerates the session with the given tenant active.
// The grant check runs against the registry, not the presented artifact,
// so a stale or tampered session cannot switch into a revoked tenant.
func (m *Manager) SetActiveTenant(ctx context.Context, s *Session, tenantID int64) (*Session, error) {
	return m.Create(ctx, s.User.ID, tenantID)
}

// Activate builds and encodes a session with the given tenant active.
// Satisfies tenant.SessionActivator for the provisioning chain.
func (m *Manager) Activate(ctx context.Context, userID, tenantID int64) (string, error) {
	s, err := m.Create(ctx, userID, tenantID)
	if err != nil {
		return "", err
	}
	return m.codec.Encode(s)
}

// Encode serializes a session for transport.
func (m *Manager) Encode(s *Session) (string, error) {
	return m.codec.Encode(s)
}

// Decode verifies and deserializes a session artifact.
func (m *Manager) Decode(artifact string) (*Session, error) {
	return m.codec.Decode(artifact)
}
