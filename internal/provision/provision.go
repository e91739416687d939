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

// Package provision talks to the out-of-process database-hosting API that
// creates and tears down per-tenant physical databases.
package provision

import (
	"context"
	"errors"
)

// Domain errors
var (
	ErrPlatformUnavailable = errors.New("provisioning platform unavailable")
	ErrPlatformRejected    = errors.New("provisioning platform rejected request")
)

// Database describes a provisioned physical database.
type Database struct {
	Hostname string
	ID       string
}

// Provisioner creates and deletes physical tenant databases and mints
// scoped access tokens for them.
//
// CreateDatabase is not idempotent on the remote side: callers must invoke
// it at most once per tenant-creation attempt and record partial progress
// themselves.
type Provisioner interface {
	CreateDatabase(ctx context.Context, tenantID int64) (Database, error)
	MintAccessToken(ctx context.Context, tenantID int64) (string, error)
	// DeleteDatabase is best-effort teardown; callers treat errors as
	// logged-but-non-fatal when the registry row is removed anyway.
	DeleteDatabase(ctx context.Context, tenantID int64) error
	// ConnectionURL builds the connection string for a database returned
	// by CreateDatabase.
	ConnectionURL(db Database) string
}
