package session

import (
	"errors"

	"github.com/shopfloor/shopfloor/internal/identity"
)

// Domain errors
var (
	ErrNoTenantGrants   = errors.New("user has no tenant access")
	ErrTenantNotGranted = errors.New("tenant not granted to user")
	ErrInvalidArtifact  = errors.New("session artifact invalid")
)

// Session binds an authenticated identity to its currently active tenant
// and the full list of that identity's tenant-access grants. It is
// serialized opaquely to the client and treated as read-mostly: any grant
// change regenerates the session instead of patching it in place. It
// carries only sealed credential blobs, never a decrypted token.
type Session struct {
	User            identity.Public `json:"user"`
	TenantAccess    []Grant         `json:"tenantAccess"`
	CurrentTenantID int64           `json:"currentTenantId"`
}

// Grant is one tenant-access entry as carried in the session.
type Grant struct {
	TenantID int64  `json:"tenantId"`
	IV       []byte `json:"iv"`
	// AccessTokenHash is the sealed (encrypted) access token blob for
	// this session's user.
	AccessTokenHash []byte      `json:"accessTokenHash"`
	Tenant          GrantTenant `json:"tenant"`
}

// GrantTenant is the slice of tenant data a session needs to open the
// tenant's database.
type GrantTenant struct {
	DBUrl *string `json:"dbUrl"`
}

// Grant returns the session's grant for the given tenant, or nil.
func (s *Session) Grant(tenantID int64) *Grant {
	for i := range s.TenantAccess {
		if s.TenantAccess[i].TenantID == tenantID {
			return &s.TenantAccess[i]
		}
	}
	return nil
}
