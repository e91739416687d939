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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// PlatformClient implements Provisioner against the hosting platform's
// HTTP API. All calls are bearer-authenticated with the server-held
// organization token; tenant-scoped tokens are only ever minted, never
// used to authenticate to the platform itself.
type PlatformClient struct {
	baseURL  string
	orgToken string
	client   *http.Client
}

// PlatformConfig holds platform client configuration
type PlatformConfig struct {
	BaseURL        string
	OrgToken       string
	RequestTimeout time.Duration
}

// NewPlatformClient creates a client for the database-hosting platform.
func NewPlatformClient(cfg PlatformConfig) *PlatformClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PlatformClient{
		baseURL:  cfg.BaseURL,
		orgToken: cfg.OrgToken,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// databaseName derives the platform-side database name for a tenant.
// It is deterministic so teardown can address the database without a
// stored platform id.
func databaseName(tenantID int64) string {
	return fmt.Sprintf("tenant-%d", tenantID)
}

type createDatabaseRequest struct {
	Name string `json:"name"`
}

type createDatabaseResponse struct {
	Hostname string `json:"hostname"`
	DBID     string `json:"dbId"`
}

// CreateDatabase provisions a physical database for the tenant.
func (p *PlatformClient) CreateDatabase(ctx context.Context, tenantID int64) (Database, error) {
	body, err := json.Marshal(createDatabaseRequest{Name: databaseName(tenantID)})
	if err != nil {
		return Database{}, fmt.Errorf("failed to encode request: %w", err)
	}

	var resp createDatabaseResponse
	if err := p.do(ctx, http.MethodPost, "/databases", bytes.NewReader(body), &resp); err != nil {
		return Database{}, fmt.Errorf("create database for tenant %d: %w", tenantID, err)
	}

	return Database{Hostname: resp.Hostname, ID: resp.DBID}, nil
}

type mintTokenResponse struct {
	JWT string `json:"jwt"`
}

// MintAccessToken mints a bearer credential scoped to the tenant's
// database.
func (p *PlatformClient) MintAccessToken(ctx context.Context, tenantID int64) (string, error) {
	path := fmt.Sprintf("/databases/%s/auth/tokens", databaseName(tenantID))

	var resp mintTokenResponse
	if err := p.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return "", fmt.Errorf("mint token for tenant %d: %w", tenantID, err)
	}

	return resp.JWT, nil
}

// DeleteDatabase tears down the tenant's physical database.
func (p *PlatformClient) DeleteDatabase(ctx context.Context, tenantID int64) error {
	path := fmt.Sprintf("/databases/%s", databaseName(tenantID))
	if err := p.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete database for tenant %d: %w", tenantID, err)
	}
	return nil
}

// ConnectionURL builds the remote connection string for a database.
func (p *PlatformClient) ConnectionURL(db Database) string {
	return "libsql://" + db.Hostname
}

func (p *PlatformClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.orgToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a bounded amount of the body for diagnostics
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrPlatformRejected, resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
