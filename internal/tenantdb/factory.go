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

// Package tenantdb opens and migrates per-tenant physical databases.
package tenantdb

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"github.com/shopfloor/shopfloor/internal/credential"
	"github.com/shopfloor/shopfloor/internal/session"
)

// Domain errors
var (
	ErrNoActiveTenant = errors.New("session has no active tenant")
	ErrNotGranted     = errors.New("no tenant access for active tenant")
	ErrNotProvisioned = errors.New("tenant database not provisioned")
	ErrUnknownScheme  = errors.New("unknown tenant database URL scheme")
)

// Opener opens a tenant database handle from its connection URL and a
// decrypted access token. Remote databases speak the libsql protocol;
// local-development databases are plain sqlite files.
type Opener struct{}

// NewOpener creates an opener
func NewOpener() *Opener {
	return &Opener{}
}

// Open returns a handle for the given URL. The token is consumed into the
// DSN and not retained.
func (o *Opener) Open(dbURL, authToken string) (*sql.DB, error) {
	switch {
	case strings.HasPrefix(dbURL, "file:"):
		return sql.Open("sqlite", dbURL)
	case strings.HasPrefix(dbURL, "libsql://"), strings.HasPrefix(dbURL, "wss://"), strings.HasPrefix(dbURL, "https://"):
		dsn := dbURL
		if authToken != "" {
			sep := "?"
			if strings.Contains(dbURL, "?") {
				sep = "&"
			}
			dsn = dbURL + sep + "authToken=" + authToken
		}
		return sql.Open("libsql", dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, schemeOf(dbURL))
	}
}

func schemeOf(dbURL string) string {
	if i := strings.Index(dbURL, ":"); i > 0 {
		return dbURL[:i]
	}
	return dbURL
}

// Factory resolves a live tenant database handle from a session. Each
// resolution decrypts the sealed credential anew and returns a fresh
// handle owned by the caller; decrypted tokens are never cached.
type Factory struct {
	cipher *credential.Cipher
	opener *Opener
}

// NewFactory creates a connection factory
func NewFactory(cipher *credential.Cipher, opener *Opener) *Factory {
	return &Factory{cipher: cipher, opener: opener}
}

// Resolve finds the session's grant for its active tenant, opens that
// user's sealed credential and returns a connection to the tenant
// database. The caller closes the handle; it must not be held across
// requests.
func (f *Factory) Resolve(s *session.Session) (*sql.DB, error) {
	if s == nil || s.CurrentTenantID == 0 {
		return nil, ErrNoActiveTenant
	}

	grant := s.Grant(s.CurrentTenantID)
	if grant == nil {
		return nil, ErrNotGranted
	}
	if grant.Tenant.DBUrl == nil || *grant.Tenant.DBUrl == "" {
		return nil, ErrNotProvisioned
	}

	token, err := f.cipher.Open(grant.AccessTokenHash, credential.SubjectSalt(s.User.ID), grant.IV)
	if err != nil {
		// Unreadable is a hard error, distinct from "no token"
		return nil, err
	}

	return f.opener.Open(*grant.Tenant.DBUrl, token)
}
