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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfloor/shopfloor/internal/audit"
	"github.com/shopfloor/shopfloor/internal/credential"
	"github.com/shopfloor/shopfloor/internal/identity"
	"github.com/shopfloor/shopfloor/internal/provision"
	"github.com/shopfloor/shopfloor/internal/session"
	"github.com/shopfloor/shopfloor/internal/tenant"
	"github.com/shopfloor/shopfloor/internal/tenantdb"
)

// In-memory registry for end-to-end handler tests. The full stack runs
// real: cipher, session codec, tenant provisioning over local files.

type memUsers struct {
	nextID  int64
	byID    map[int64]*identity.User
	byEmail map[string]*identity.User
}

func (r *memUsers) Create(_ context.Context, u *identity.User) error {
	u.ID = r.nextID
	r.nextID++
	c := *u
	r.byID[u.ID] = &c
	r.byEmail[u.Email] = &c
	return nil
}

func (r *memUsers) GetByID(_ context.Context, id int64) (*identity.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	u, ok := r.byEmail[email]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (r *memUsers) Update(_ context.Context, u *identity.User) error {
	stored, ok := r.byID[u.ID]
	if !ok {
		return identity.ErrUserNotFound
	}
	stored.FirstName, stored.LastName = u.FirstName, u.LastName
	return nil
}

func (r *memUsers) UpdatePassword(_ context.Context, id int64, hash, salt string) error {
	stored, ok := r.byID[id]
	if !ok {
		return identity.ErrUserNotFound
	}
	stored.PasswordHash, stored.Salt = hash, salt
	return nil
}

type memTenants struct {
	nextID int64
	byID   map[int64]*tenant.Tenant
}

func (r *memTenants) Create(_ context.Context, t *tenant.Tenant) error {
	t.ID = r.nextID
	r.nextID++
	c := *t
	r.byID[t.ID] = &c
	return nil
}

func (r *memTenants) GetByID(_ context.Context, id int64) (*tenant.Tenant, error) {
	t, ok := r.byID[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	c := *t
	return &c, nil
}

func (r *memTenants) SetURL(_ context.Context, id int64, dbURL string) error {
	t, ok := r.byID[id]
	if !ok {
		return tenant.ErrTenantNotFound
	}
	t.DBUrl = &dbURL
	return nil
}

func (r *memTenants) SetState(_ context.Context, id int64, state string) error {
	t, ok := r.byID[id]
	if !ok {
		return tenant.ErrTenantNotFound
	}
	t.State = state
	return nil
}

func (r *memTenants) Delete(_ context.Context, id int64) error {
	delete(r.byID, id)
	return nil
}

type memAccess struct {
	tenants *memTenants
	rows    map[string]*tenant.Access
	order   []string
}

func (r *memAccess) key(tenantID, userID int64) string {
	return fmt.Sprintf("%d/%d", tenantID, userID)
}

func (r *memAccess) Upsert(_ context.Context, a *tenant.Access) error {
	k := r.key(a.TenantID, a.UserID)
	if _, exists := r.rows[k]; !exists {
		r.order = append(r.order, k)
	}
	c := *a
	r.rows[k] = &c
	return nil
}

func (r *memAccess) Get(_ context.Context, tenantID, userID int64) (*tenant.Access, error) {
	a, ok := r.rows[r.key(tenantID, userID)]
	if !ok {
		return nil, tenant.ErrAccessNotFound
	}
	c := *a
	return &c, nil
}

func (r *memAccess) ListForUser(_ context.Context, userID int64) ([]*tenant.UserGrant, error) {
	var grants []*tenant.UserGrant
	for _, k := range r.order {
		a, ok := r.rows[k]
		if !ok || a.UserID != userID {
			continue
		}
		t, ok := r.tenants.byID[a.TenantID]
		if !ok {
			continue
		}
		ac, tc := *a, *t
		grants = append(grants, &tenant.UserGrant{Access: &ac, Tenant: &tc})
	}
	return grants, nil
}

func (r *memAccess) DeleteForTenant(_ context.Context, tenantID int64) error {
	for k, a := range r.rows {
		if a.TenantID == tenantID {
			delete(r.rows, k)
		}
	}
	return nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	users := &memUsers{nextID: 1, byID: map[int64]*identity.User{}, byEmail: map[string]*identity.User{}}
	tenants := &memTenants{nextID: 1, byID: map[int64]*tenant.Tenant{}}
	access := &memAccess{tenants: tenants, rows: map[string]*tenant.Access{}}

	auditLogger := audit.NewSlogLogger()

	auth, err := identity.NewAuthenticator("test-pepper", 1000)
	require.NoError(t, err)
	identityService := identity.NewService(users, auth, auditLogger)

	cipher, err := credential.NewCipher("test-credential-secret")
	require.NoError(t, err)

	codec, err := session.NewCodec("test-signing-secret", time.Hour)
	require.NoError(t, err)
	sessions := session.NewManager(users, access, codec)

	databases, err := provision.NewLocalProvisioner(t.TempDir(), false)
	require.NoError(t, err)

	opener := tenantdb.NewOpener()
	provisioner := tenant.NewProvisioner(
		tenants, access, identityService, databases,
		cipher, opener, tenantdb.NewRunner(), sessions, auditLogger,
	)

	handler := NewHandler(
		identityService, sessions, provisioner,
		tenantdb.NewFactory(cipher, opener),
		auditLogger, nil,
		SessionConfig{
			CookieName:     "shopfloor_session",
			CookiePath:     "/",
			CookieHTTPOnly: true,
			CookieSameSite: http.SameSiteLaxMode,
			Lifetime:       time.Hour,
		},
	)

	srv := httptest.NewServer(NewRouter(handler, NewRateLimiter(1000, 1000)))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := client.Post(url, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "shopfloor_session" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func authedRequest(t *testing.T, client *http.Client, method, url string, cookie *http.Cookie, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.AddCookie(cookie)
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func TestRegisterLoginAndMe(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	// Register provisions the first tenant and sets a session cookie
	resp := postJSON(t, client, srv.URL+"/api/v1/auth/register", RegisterRequest{
		CompanyName: "Acme Machining",
		Email:       "owner@acme.test",
		Password:    "password123",
		FirstName:   "Ada",
		LastName:    "Lovelace",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	cookie := sessionCookie(t, resp)
	body := decodeBody(t, resp)
	assert.EqualValues(t, 1, body["tenantId"])

	// The cookie authenticates /auth/me
	resp = authedRequest(t, client, http.MethodGet, srv.URL+"/api/v1/auth/me", cookie, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decodeBody(t, resp)
	assert.EqualValues(t, 1, me["currentTenantId"])

	// No cookie means no session
	plain, err := client.Get(srv.URL + "/api/v1/auth/me")
	require.NoError(t, err)
	plain.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, plain.StatusCode)

	// Login with the registered credentials
	resp = postJSON(t, client, srv.URL+"/api/v1/auth/login", LoginRequest{
		Email: "owner@acme.test", Password: "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessionCookie(t, resp)
	resp.Body.Close()

	// Wrong password is rejected with the generic sentinel
	resp = postJSON(t, client, srv.URL+"/api/v1/auth/login", LoginRequest{
		Email: "owner@acme.test", Password: "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestTenantLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	resp := postJSON(t, client, srv.URL+"/api/v1/auth/register", RegisterRequest{
		CompanyName: "First Shop",
		Email:       "owner@shops.test",
		Password:    "password123",
		FirstName:   "A",
		LastName:    "B",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	cookie := sessionCookie(t, resp)
	resp.Body.Close()

	// Creating a second tenant rotates the cookie with it active
	resp = authedRequest(t, client, http.MethodPost, srv.URL+"/api/v1/tenants", cookie, CreateTenantRequest{CompanyName: "Second Shop"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	cookie = sessionCookie(t, resp)
	created := decodeBody(t, resp)
	assert.EqualValues(t, 2, created["tenantId"])

	resp = authedRequest(t, client, http.MethodGet, srv.URL+"/api/v1/tenants", cookie, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody(t, resp)
	assert.Len(t, list["tenants"], 2)

	// Switch back to the first tenant
	resp = authedRequest(t, client, http.MethodPost, srv.URL+"/api/v1/tenants/1/switch", cookie, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookie = sessionCookie(t, resp)
	switched := decodeBody(t, resp)
	assert.EqualValues(t, 1, switched["currentTenantId"])

	// Switching to an ungranted tenant is forbidden
	resp = authedRequest(t, client, http.MethodPost, srv.URL+"/api/v1/tenants/99/switch", cookie, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// The active tenant's database resolves and answers a ping
	resp = authedRequest(t, client, http.MethodGet, srv.URL+"/api/v1/tenants/current/health", cookie, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Delete the second tenant. The old cookie still carries the grant
	// snapshot; a fresh login reflects the registry.
	resp = authedRequest(t, client, http.MethodDelete, srv.URL+"/api/v1/tenants/2", cookie, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, client, srv.URL+"/api/v1/auth/login", LoginRequest{
		Email: "owner@shops.test", Password: "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookie = sessionCookie(t, resp)
	resp.Body.Close()

	resp = authedRequest(t, client, http.MethodGet, srv.URL+"/api/v1/tenants", cookie, nil)
	list = decodeBody(t, resp)
	assert.Len(t, list["tenants"], 1)
}

func TestGrantAccessOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	resp := postJSON(t, client, srv.URL+"/api/v1/auth/register", RegisterRequest{
		CompanyName: "Shared Shop",
		Email:       "owner@grant.test",
		Password:    "password123",
		FirstName:   "A",
		LastName:    "B",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ownerCookie := sessionCookie(t, resp)
	resp.Body.Close()

	// Second owner with their own tenant becomes the grantee
	resp = postJSON(t, client, srv.URL+"/api/v1/auth/register", RegisterRequest{
		CompanyName: "Other Shop",
		Email:       "member@grant.test",
		Password:    "password123",
		FirstName:   "C",
		LastName:    "D",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	memberCookie := sessionCookie(t, resp)
	resp.Body.Close()

	resp = authedRequest(t, client, http.MethodPost, srv.URL+"/api/v1/tenants/1/access", ownerCookie, GrantAccessRequest{UserID: 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The grantee can now switch into the shared tenant
	resp = authedRequest(t, client, http.MethodPost, srv.URL+"/api/v1/tenants/1/switch", memberCookie, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	switched := decodeBody(t, resp)
	assert.EqualValues(t, 1, switched["currentTenantId"])

	// A user without a grant cannot hand out access
	resp = authedRequest(t, client, http.MethodPost, srv.URL+"/api/v1/tenants/2/access", ownerCookie, GrantAccessRequest{UserID: 1})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
