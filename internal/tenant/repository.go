package tenant

import "context"

// Repository defines the interface for tenant registry storage
type Repository interface {
	// Create inserts a tenant row and assigns its id.
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id int64) (*Tenant, error)
	// SetURL records the resolved connection URL once the physical
	// database exists.
	SetURL(ctx context.Context, id int64, dbURL string) error
	// SetState advances the persisted provisioning state.
	SetState(ctx context.Context, id int64, state string) error
	Delete(ctx context.Context, id int64) error
}

// AccessRepository defines the interface for tenant-access grants.
// Rows are uniquely keyed per (tenantID, userID); Upsert resolves
// concurrent grant attempts for the same pair without duplicates.
type AccessRepository interface {
	Upsert(ctx context.Context, access *Access) error
	Get(ctx context.Context, tenantID, userID int64) (*Access, error)
	ListForUser(ctx context.Context, userID int64) ([]*UserGrant, error)
	DeleteForTenant(ctx context.Context, tenantID int64) error
}
