package tenant

import (
	"errors"
	"time"
)

// Domain errors
var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrAccessNotFound     = errors.New("tenant access not found")
	ErrNotProvisioned     = errors.New("tenant database not provisioned")
	ErrProvisioningFailed = errors.New("tenant creation failed")
)

// Provisioning states. The state name is persisted on the tenant row so a
// partially provisioned tenant is observable as such, not inferred from
// db_url nullness. The sequence is strictly ordered; a tenant stuck in an
// intermediate state is incomplete and safe for operator tooling to
// resume or tear down.
const (
	StateDraft        = "draft"
	StateProvisioning = "provisioning"
	StateURLAssigned  = "url_assigned"
	StateTokenMinted  = "token_minted"
	StateSealed       = "sealed"
	StateMigrated     = "migrated"
	StateActive       = "active"
)

// Tenant represents an isolated customer organization backed by its own
// physical database. DBUrl stays nil until provisioning completes.
type Tenant struct {
	ID          int64
	CompanyName string
	DBUrl       *string
	State       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Access is the grant letting one user open one tenant's database. It
// carries that user's personally-sealed copy of the database access
// token: the same underlying token is sealed once per authorized user,
// keyed with the user's id as subject salt, so no two users' blobs are
// interchangeable.
type Access struct {
	ID          int64
	TenantID    int64
	UserID      int64
	IV          []byte
	SealedToken []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserGrant pairs an access row with its tenant for session assembly.
type UserGrant struct {
	Access *Access
	Tenant *Tenant
}
