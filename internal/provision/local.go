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

package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalProvisioner bypasses the hosting platform entirely and synthesizes
// filesystem-backed tenant databases with empty access tokens. It is the
// explicit local-development shortcut: selecting it requires
// TENANT_DB_MODE=local and the constructor refuses a production
// environment, so it can never be picked up silently in a deployment.
type LocalProvisioner struct {
	dataDir string
}

// NewLocalProvisioner creates the local-development provisioner.
func NewLocalProvisioner(dataDir string, production bool) (*LocalProvisioner, error) {
	if production {
		return nil, errors.New("local tenant databases are not allowed in production")
	}
	if dataDir == "" {
		dataDir = "db"
	}
	return &LocalProvisioner{dataDir: dataDir}, nil
}

// CreateDatabase ensures the data directory exists; the database file
// itself is created lazily on first connection.
func (p *LocalProvisioner) CreateDatabase(ctx context.Context, tenantID int64) (Database, error) {
	if err := os.MkdirAll(p.dataDir, 0o755); err != nil {
		return Database{}, fmt.Errorf("failed to create data dir: %w", err)
	}
	name := databaseName(tenantID)
	return Database{Hostname: filepath.Join(p.dataDir, name+".sqlite"), ID: name}, nil
}

// MintAccessToken returns an empty token: local files need no credential.
// The empty token still goes through the sealing path so the rest of the
// system exercises a single code path.
func (p *LocalProvisioner) MintAccessToken(ctx context.Context, tenantID int64) (string, error) {
	return "", nil
}

// DeleteDatabase removes the tenant's database file.
func (p *LocalProvisioner) DeleteDatabase(ctx context.Context, tenantID int64) error {
	path := filepath.Join(p.dataDir, databaseName(tenantID)+".sqlite")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove database file: %w", err)
	}
	return nil
}

// ConnectionURL builds the file connection string for a local database.
func (p *LocalProvisioner) ConnectionURL(db Database) string {
	return "file:" + db.Hostname
}
