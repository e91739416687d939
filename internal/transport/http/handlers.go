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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/shopfloor/shopfloor/internal/audit"
	"github.com/shopfloor/shopfloor/internal/credential"
	"github.com/shopfloor/shopfloor/internal/identity"
	"github.com/shopfloor/shopfloor/internal/observability/logger"
	"github.com/shopfloor/shopfloor/internal/observability/metrics"
	"github.com/shopfloor/shopfloor/internal/session"
	"github.com/shopfloor/shopfloor/internal/tenant"
	"github.com/shopfloor/shopfloor/internal/tenantdb"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService *identity.Service
	sessions        *session.Manager
	provisioner     *tenant.Provisioner
	connections     *tenantdb.Factory
	auditLogger     audit.Logger
	sessionConfig   SessionConfig

	tenantsCreated      metric.Int64Counter
	connectionsResolved metric.Int64Counter
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
	Lifetime       time.Duration
}

// NewHandler creates a new HTTP handler
func NewHandler(
	identityService *identity.Service,
	sessions *session.Manager,
	provisioner *tenant.Provisioner,
	connections *tenantdb.Factory,
	auditLogger audit.Logger,
	meter *metrics.Meter,
	sessionConfig SessionConfig,
) *Handler {
	h := &Handler{
		identityService: identityService,
		sessions:        sessions,
		provisioner:     provisioner,
		connections:     connections,
		auditLogger:     auditLogger,
		sessionConfig:   sessionConfig,
	}

	if meter != nil {
		h.tenantsCreated, _ = meter.CreateCounter("tenants_created_total", "Number of tenants provisioned")
		h.connectionsResolved, _ = meter.CreateCounter("tenant_connections_resolved_total", "Number of tenant database connections resolved")
	}

	return h
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/logout", h.Logout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Get("/auth/me", h.GetCurrentUser)
			r.Put("/user/profile", h.UpdateProfile)
			r.Post("/user/change-password", h.ChangePassword)

			r.Route("/tenants", func(r chi.Router) {
				r.Post("/", h.CreateTenant)
				r.Get("/", h.ListTenants)
				r.Get("/current/health", h.TenantDBHealth)

				r.Route("/{tenantID}", func(r chi.Router) {
					r.Post("/switch", h.SwitchTenant)
					r.Post("/access", h.GrantAccess)
					r.Delete("/", h.DeleteTenant)
				})
			})
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "shopfloor",
	})
}

// RegisterRequest represents registration data for the register flow:
// a new user plus their first tenant, provisioned in one pass.
type RegisterRequest struct {
	CompanyName string `json:"companyName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

// Register creates a user and provisions their first tenant
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CompanyName == "" {
		respondError(w, http.StatusBadRequest, "company name is required")
		return
	}

	result, err := h.provisioner.Register(r.Context(), req.CompanyName, req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		slog.ErrorContext(r.Context(), "registration failed",
			logger.Error(err),
			logger.Email(req.Email),
		)
		switch {
		case errors.Is(err, identity.ErrUserAlreadyExists):
			respondError(w, http.StatusConflict, "user already exists")
		case errors.Is(err, identity.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password does not meet security requirements")
		default:
			respondError(w, http.StatusBadGateway, "tenant creation failed")
		}
		return
	}

	if h.tenantsCreated != nil {
		h.tenantsCreated.Add(r.Context(), 1)
	}

	h.setSessionCookie(w, result.SessionArtifact)
	respondJSON(w, http.StatusCreated, map[string]any{
		"tenantId": result.Tenant.ID,
		"user":     result.User.Public(),
	})
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a user and issues a session with their first
// granted tenant active
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sess, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, session.ErrNoTenantGrants) {
			respondError(w, http.StatusNotFound, "no tenant access")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	artifact, err := h.sessions.Encode(sess)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.setSessionCookie(w, artifact)
	respondJSON(w, http.StatusOK, map[string]any{
		"user":            sess.User,
		"currentTenantId": sess.CurrentTenantID,
	})
}

// Logout clears the session cookie
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if s := GetSession(r.Context()); s != nil {
		h.auditLogger.Log(r.Context(), audit.Event{
			Type:     audit.TypeLogout,
			ActorID:  s.User.ID,
			Resource: "session",
		})
	}
	h.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// GetCurrentUser returns the session's user and tenant list
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"user":            sess.User,
		"currentTenantId": sess.CurrentTenantID,
		"tenantIds":       grantedTenantIDs(sess),
	})
}

// UpdateProfileRequest represents profile edits
type UpdateProfileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// UpdateProfile updates the current user's profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.identityService.UpdateProfile(r.Context(), sess.User.ID, req.FirstName, req.LastName); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "profile updated"})
}

// ChangePasswordRequest represents a password change
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword changes the current user's password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.identityService.ChangePassword(r.Context(), sess.User.ID, req.OldPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "invalid old password")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "new password does not meet security requirements")
		default:
			respondError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// CreateTenantRequest represents tenant creation data
type CreateTenantRequest struct {
	CompanyName string `json:"companyName"`
}

// CreateTenant provisions an additional tenant for the current user and
// activates it in a regenerated session
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())

	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CompanyName == "" {
		respondError(w, http.StatusBadRequest, "company name is required")
		return
	}

	result, err := h.provisioner.CreateTenant(r.Context(), sess.User.ID, req.CompanyName)
	if err != nil {
		slog.ErrorContext(r.Context(), "tenant creation failed",
			logger.Error(err),
			logger.UserID(sess.User.ID),
		)
		respondError(w, http.StatusBadGateway, "tenant creation failed")
		return
	}

	if h.tenantsCreated != nil {
		h.tenantsCreated.Add(r.Context(), 1)
	}

	h.setSessionCookie(w, result.SessionArtifact)
	respondJSON(w, http.StatusCreated, map[string]any{
		"tenantId":    result.Tenant.ID,
		"companyName": result.Tenant.CompanyName,
	})
}

// ListTenants returns the tenants granted to the current session's user
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())

	type entry struct {
		TenantID    int64 `json:"tenantId"`
		Provisioned bool  `json:"provisioned"`
		Active      bool  `json:"active"`
	}
	entries := make([]entry, 0, len(sess.TenantAccess))
	for _, g := range sess.TenantAccess {
		entries = append(entries, entry{
			TenantID:    g.TenantID,
			Provisioned: g.Tenant.DBUrl != nil && *g.Tenant.DBUrl != "",
			Active:      g.TenantID == sess.CurrentTenantID,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"tenants": entries})
}

// SwitchTenant activates another granted tenant in a fresh session.
// The grant check runs in the session manager against the registry; a
// tenant the user lacks access to is rejected and the session unchanged.
func (h *Handler) SwitchTenant(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())

	tenantID, err := parseTenantID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	fresh, err := h.sessions.SetActiveTenant(r.Context(), sess, tenantID)
	if err != nil {
		if errors.Is(err, session.ErrTenantNotGranted) {
			h.auditLogger.Log(r.Context(), audit.Event{
				Type:     audit.TypeAccessDenied,
				TenantID: tenantID,
				ActorID:  sess.User.ID,
				Resource: "tenant_switch",
			})
			respondError(w, http.StatusForbidden, "no access to tenant")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to switch tenant")
		return
	}

	artifact, err := h.sessions.Encode(fresh)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to switch tenant")
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:     audit.TypeTenantSwitched,
		TenantID: tenantID,
		ActorID:  sess.User.ID,
		Resource: "session",
	})

	h.setSessionCookie(w, artifact)
	respondJSON(w, http.StatusOK, map[string]any{"currentTenantId": fresh.CurrentTenantID})
}

// GrantAccessRequest represents an access grant
type GrantAccessRequest struct {
	UserID int64 `json:"userId"`
}

// GrantAccess seals the tenant credential for another user
func (h *Handler) GrantAccess(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())

	tenantID, err := parseTenantID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	var req GrantAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err = h.provisioner.GrantAccess(r.Context(), tenantID, sess.User.ID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrAccessNotFound):
			respondError(w, http.StatusForbidden, "no access to tenant")
		case errors.Is(err, identity.ErrUserNotFound):
			respondError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, credential.ErrUnreadable):
			respondError(w, http.StatusConflict, "credential unreadable")
		default:
			respondError(w, http.StatusInternalServerError, "failed to grant access")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "access granted"})
}

// DeleteTenant deprovisions and removes a tenant the user has access to
func (h *Handler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())

	tenantID, err := parseTenantID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	if sess.Grant(tenantID) == nil {
		respondError(w, http.StatusForbidden, "no access to tenant")
		return
	}

	if err := h.provisioner.DeleteTenant(r.Context(), tenantID, sess.User.ID); err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete tenant")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "tenant deleted"})
}

// TenantDBHealth resolves the active tenant's database connection and
// pings it. Exercises the same resolution path the business routers use,
// including the authorization boundary.
func (h *Handler) TenantDBHealth(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())

	conn, err := h.connections.Resolve(sess)
	if err != nil {
		switch {
		case errors.Is(err, tenantdb.ErrNoActiveTenant), errors.Is(err, tenantdb.ErrNotGranted):
			respondError(w, http.StatusForbidden, "access denied")
		case errors.Is(err, tenantdb.ErrNotProvisioned):
			respondError(w, http.StatusConflict, "tenant database not provisioned")
		case errors.Is(err, credential.ErrUnreadable):
			respondError(w, http.StatusConflict, "credential unreadable")
		default:
			respondError(w, http.StatusInternalServerError, "failed to resolve connection")
		}
		return
	}
	defer conn.Close()

	if h.connectionsResolved != nil {
		h.connectionsResolved.Add(r.Context(), 1)
	}

	if err := conn.PingContext(r.Context()); err != nil {
		respondError(w, http.StatusBadGateway, "tenant database unreachable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions
func parseTenantID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
}

func grantedTenantIDs(s *session.Session) []int64 {
	ids := make([]int64, 0, len(s.TenantAccess))
	for _, g := range s.TenantAccess {
		ids = append(ids, g.TenantID)
	}
	return ids
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, artifact string) {
	maxAge := int(h.sessionConfig.Lifetime.Seconds())
	if maxAge <= 0 {
		maxAge = 86400
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    artifact,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   maxAge,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.sessionConfig.CookieName,
		Value:  "",
		Path:   h.sessionConfig.CookiePath,
		Domain: h.sessionConfig.CookieDomain,
		MaxAge: -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
