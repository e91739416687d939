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

package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/shopfloor/shopfloor/internal/audit"
	"github.com/shopfloor/shopfloor/internal/credential"
	"github.com/shopfloor/shopfloor/internal/identity"
	"github.com/shopfloor/shopfloor/internal/observability/logger"
	"github.com/shopfloor/shopfloor/internal/provision"
)

// DatabaseOpener opens a live connection to a tenant database from its
// stored URL and a decrypted access token.
type DatabaseOpener interface {
	Open(dbURL, authToken string) (*sql.DB, error)
}

// Migrator applies the per-tenant schema to a freshly provisioned
// database connection.
type Migrator interface {
	Migrate(ctx context.Context, db *sql.DB) error
}

// SessionActivator builds a session artifact with the given tenant
// active. Implemented by session.Manager; kept as an interface here so
// the provisioning chain stays free of session encoding concerns.
type SessionActivator interface {
	Activate(ctx context.Context, userID, tenantID int64) (string, error)
}

// Provisioner orchestrates tenant creation: registry row, physical
// database, access token, per-user sealing, schema migration, session
// activation. Steps run sequentially with no compensation; a failed step
// leaves the tenant in its last persisted state rather than rolling back.
type Provisioner struct {
	tenants     Repository
	access      AccessRepository
	identity    *identity.Service
	databases   provision.Provisioner
	cipher      *credential.Cipher
	opener      DatabaseOpener
	migrator    Migrator
	sessions    SessionActivator
	auditLogger audit.Logger
}

// NewProvisioner creates a tenant provisioner
func NewProvisioner(
	tenants Repository,
	access AccessRepository,
	identityService *identity.Service,
	databases provision.Provisioner,
	cipher *credential.Cipher,
	opener DatabaseOpener,
	migrator Migrator,
	sessions SessionActivator,
	auditLogger audit.Logger,
) *Provisioner {
	return &Provisioner{
		tenants:     tenants,
		access:      access,
		identity:    identityService,
		databases:   databases,
		cipher:      cipher,
		opener:      opener,
		migrator:    migrator,
		sessions:    sessions,
		auditLogger: auditLogger,
	}
}

// Result is the outcome of a completed provisioning flow.
type Result struct {
	Tenant *Tenant
	User   *identity.User
	// SessionArtifact is the serialized session with the new tenant
	// active, ready to be set as the caller's cookie.
	SessionArtifact string
}

// CreateTenant provisions a new tenant owned by an existing user.
// Two concurrent calls for the same company name each get their own
// tenant row; dedup by name is a product policy, not enforced here.
func (p *Provisioner) CreateTenant(ctx context.Context, userID int64, companyName string) (*Result, error) {
	if companyName == "" {
		return nil, fmt.Errorf("%w: company name is required", ErrProvisioningFailed)
	}

	user, err := p.identity.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	return p.provision(ctx, user, companyName)
}

// Register is the sibling flow: it creates the owning user row before
// sealing, then provisions the tenant for that brand-new user.
func (p *Provisioner) Register(ctx context.Context, companyName, email, password, firstName, lastName string) (*Result, error) {
	if companyName == "" {
		return nil, fmt.Errorf("%w: company name is required", ErrProvisioningFailed)
	}

	user, err := p.identity.Register(ctx, email, password, firstName, lastName, identity.RoleOwner)
	if err != nil {
		return nil, err
	}

	return p.provision(ctx, user, companyName)
}

// provision runs the creation state machine. Each transition is persisted
// before the next step runs, so an aborted flow is observable exactly at
// the step that failed.
func (p *Provisioner) provision(ctx context.Context, user *identity.User, companyName string) (*Result, error) {
	// Draft: registry row exists, no URL yet
	t := &Tenant{CompanyName: companyName, State: StateDraft}
	if err := p.tenants.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	// Provisioning: the external create call runs at most once per
	// attempt; on failure the row keeps this state permanently.
	if err := p.tenants.SetState(ctx, t.ID, StateProvisioning); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	db, err := p.databases.CreateDatabase(ctx, t.ID)
	if err != nil {
		p.failProvisioning(ctx, t, user.ID, StateProvisioning, err)
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	// URL-Assigned
	dbURL := p.databases.ConnectionURL(db)
	if err := p.tenants.SetURL(ctx, t.ID, dbURL); err != nil {
		p.failProvisioning(ctx, t, user.ID, StateProvisioning, err)
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	t.DBUrl = &dbURL
	if err := p.tenants.SetState(ctx, t.ID, StateURLAssigned); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	// Token-Minted
	token, err := p.databases.MintAccessToken(ctx, t.ID)
	if err != nil {
		p.failProvisioning(ctx, t, user.ID, StateURLAssigned, err)
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	if err := p.tenants.SetState(ctx, t.ID, StateTokenMinted); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	// Sealed: the token is encrypted for the requesting user only
	ciphertext, iv, err := p.cipher.Seal(token, credential.SubjectSalt(user.ID))
	if err != nil {
		p.failProvisioning(ctx, t, user.ID, StateTokenMinted, err)
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	if err := p.access.Upsert(ctx, &Access{
		TenantID:    t.ID,
		UserID:      user.ID,
		IV:          iv,
		SealedToken: ciphertext,
	}); err != nil {
		p.failProvisioning(ctx, t, user.ID, StateTokenMinted, err)
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	if err := p.tenants.SetState(ctx, t.ID, StateSealed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	p.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCredentialSealed,
		TenantID: t.ID,
		ActorID:  user.ID,
		Resource: "tenant_access",
	})

	// Migrated: schema failure is logged and flagged, never rolled back;
	// the tenant exists with a possibly incomplete schema.
	if err := p.migrate(ctx, dbURL, token); err != nil {
		slog.ErrorContext(ctx, "tenant schema migration failed",
			logger.Component("tenant"),
			logger.TenantID(t.ID),
			logger.Error(err),
		)
		p.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeMigrationFailed,
			TenantID: t.ID,
			ActorID:  user.ID,
			Resource: "tenant_schema",
			Metadata: map[string]any{audit.AttrReason: err.Error()},
		})
	} else {
		if err := p.tenants.SetState(ctx, t.ID, StateMigrated); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
		}
	}

	// Activated
	artifact, err := p.sessions.Activate(ctx, user.ID, t.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	if err := p.tenants.SetState(ctx, t.ID, StateActive); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	t.State = StateActive

	p.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		TenantID: t.ID,
		ActorID:  user.ID,
		Resource: "tenant",
		Metadata: map[string]any{"company_name": companyName},
	})

	return &Result{Tenant: t, User: user, SessionArtifact: artifact}, nil
}

// migrate opens a short-lived connection with the unsealed token, applies
// the schema and closes it. The plaintext token does not outlive the call.
func (p *Provisioner) migrate(ctx context.Context, dbURL, token string) error {
	conn, err := p.opener.Open(dbURL, token)
	if err != nil {
		return fmt.Errorf("failed to open tenant database: %w", err)
	}
	defer conn.Close()

	return p.migrator.Migrate(ctx, conn)
}

// GrantAccess seals the tenant's access token for another user. The
// grantor must hold a grant themselves: their sealed copy is the only
// source of the underlying token, which is unsealed, re-sealed for the
// grantee and discarded.
func (p *Provisioner) GrantAccess(ctx context.Context, tenantID, grantorID, granteeID int64) error {
	if _, err := p.identity.GetUser(ctx, granteeID); err != nil {
		return err
	}

	grantorAccess, err := p.access.Get(ctx, tenantID, grantorID)
	if err != nil {
		return ErrAccessNotFound
	}

	token, err := p.cipher.Open(grantorAccess.SealedToken, credential.SubjectSalt(grantorID), grantorAccess.IV)
	if err != nil {
		return err
	}

	ciphertext, iv, err := p.cipher.Seal(token, credential.SubjectSalt(granteeID))
	if err != nil {
		return err
	}

	if err := p.access.Upsert(ctx, &Access{
		TenantID:    tenantID,
		UserID:      granteeID,
		IV:          iv,
		SealedToken: ciphertext,
	}); err != nil {
		return fmt.Errorf("failed to grant access: %w", err)
	}

	p.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeAccessGranted,
		TenantID: tenantID,
		ActorID:  grantorID,
		Resource: "tenant_access",
		Metadata: map[string]any{"grantee_id": granteeID},
	})

	return nil
}

// DeleteTenant deprovisions the physical database before removing the
// registry rows. Platform teardown errors are logged, not fatal: the
// registry is the source of truth being retired.
func (p *Provisioner) DeleteTenant(ctx context.Context, tenantID, actorID int64) error {
	if _, err := p.tenants.GetByID(ctx, tenantID); err != nil {
		return err
	}

	if err := p.databases.DeleteDatabase(ctx, tenantID); err != nil {
		slog.WarnContext(ctx, "best-effort database teardown failed",
			logger.Component("tenant"),
			logger.TenantID(tenantID),
			logger.Error(err),
		)
	}

	if err := p.access.DeleteForTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to remove tenant access rows: %w", err)
	}
	if err := p.tenants.Delete(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to remove tenant: %w", err)
	}

	p.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantDeleted,
		TenantID: tenantID,
		ActorID:  actorID,
		Resource: "tenant",
	})

	return nil
}

// failProvisioning records where the state machine stopped. The state row
// keeps the failed step's name; there is no automatic cleanup or retry.
func (p *Provisioner) failProvisioning(ctx context.Context, t *Tenant, actorID int64, state string, cause error) {
	slog.ErrorContext(ctx, "tenant provisioning failed",
		logger.Component("tenant"),
		logger.TenantID(t.ID),
		logger.ProvisionState(state),
		logger.Error(cause),
	)
	p.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeProvisionFailed,
		TenantID: t.ID,
		ActorID:  actorID,
		Resource: "tenant",
		Metadata: map[string]any{
			audit.AttrState:  state,
			audit.AttrReason: cause.Error(),
		},
	})
}
