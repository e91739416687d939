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

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopfloor/shopfloor/internal/audit"
	"github.com/shopfloor/shopfloor/internal/config"
	"github.com/shopfloor/shopfloor/internal/credential"
	"github.com/shopfloor/shopfloor/internal/identity"
	"github.com/shopfloor/shopfloor/internal/observability/logger"
	"github.com/shopfloor/shopfloor/internal/observability/metrics"
	"github.com/shopfloor/shopfloor/internal/observability/tracing"
	"github.com/shopfloor/shopfloor/internal/provision"
	"github.com/shopfloor/shopfloor/internal/session"
	"github.com/shopfloor/shopfloor/internal/store/postgres"
	"github.com/shopfloor/shopfloor/internal/tenant"
	"github.com/shopfloor/shopfloor/internal/tenantdb"
	transport "github.com/shopfloor/shopfloor/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	slog.Info("starting shopfloor server",
		slog.String("environment", cfg.Environment),
		slog.String("tenant_db_mode", cfg.Provisioning.Mode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracing", logger.Error(err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down tracer", logger.Error(err))
		}
	}()

	meter, err := metrics.New(ctx, metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize metrics", logger.Error(err))
		os.Exit(1)
	}

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Registry.Host,
		Port:         cfg.Registry.Port,
		User:         cfg.Registry.User,
		Password:     cfg.Registry.Password,
		Database:     cfg.Registry.Database,
		SSLMode:      cfg.Registry.SSLMode,
		MaxOpenConns: cfg.Registry.MaxOpenConns,
		MaxIdleConns: cfg.Registry.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to registry database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	userRepo := postgres.NewUserRepository(db)
	tenantRepo := postgres.NewTenantRepository(db)
	accessRepo := postgres.NewAccessRepository(db)

	auditLogger := audit.NewSlogLogger()

	authenticator, err := identity.NewAuthenticator(cfg.Security.PasswordPepper, cfg.Security.PBKDF2Iterations)
	if err != nil {
		slog.Error("failed to initialize password authenticator", logger.Error(err))
		os.Exit(1)
	}
	identityService := identity.NewService(userRepo, authenticator, auditLogger)

	cipher, err := credential.NewCipher(cfg.Security.CredentialSecret)
	if err != nil {
		slog.Error("failed to initialize credential cipher", logger.Error(err))
		os.Exit(1)
	}

	codec, err := session.NewCodec(cfg.Session.SigningSecret, cfg.Session.Lifetime)
	if err != nil {
		slog.Error("failed to initialize session codec", logger.Error(err))
		os.Exit(1)
	}
	sessions := session.NewManager(userRepo, accessRepo, codec)

	var databases provision.Provisioner
	switch cfg.Provisioning.Mode {
	case config.TenantDBModeLocal:
		local, err := provision.NewLocalProvisioner(cfg.Provisioning.LocalDataDir, cfg.IsProduction())
		if err != nil {
			slog.Error("failed to initialize local provisioner", logger.Error(err))
			os.Exit(1)
		}
		databases = local
	default:
		databases = provision.NewPlatformClient(provision.PlatformConfig{
			BaseURL:        cfg.Provisioning.PlatformURL,
			OrgToken:       cfg.Provisioning.OrgToken,
			RequestTimeout: cfg.Provisioning.RequestTimeout,
		})
	}

	opener := tenantdb.NewOpener()
	runner := tenantdb.NewRunner()
	connections := tenantdb.NewFactory(cipher, opener)

	provisioner := tenant.NewProvisioner(
		tenantRepo,
		accessRepo,
		identityService,
		databases,
		cipher,
		opener,
		runner,
		sessions,
		auditLogger,
	)

	rateLimiter := transport.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	sameSite := http.SameSiteLaxMode
	switch cfg.Session.CookieSameSite {
	case "Strict":
		sameSite = http.SameSiteStrictMode
	case "None":
		sameSite = http.SameSiteNoneMode
	}

	handler := transport.NewHandler(
		identityService,
		sessions,
		provisioner,
		connections,
		auditLogger,
		meter,
		transport.SessionConfig{
			CookieName:     cfg.Session.CookieName,
			CookieDomain:   cfg.Session.CookieDomain,
			CookiePath:     cfg.Session.CookiePath,
			CookieSecure:   cfg.Session.CookieSecure,
			CookieHTTPOnly: cfg.Session.CookieHTTPOnly,
			CookieSameSite: sameSite,
			Lifetime:       cfg.Session.Lifetime,
		},
	)

	router := transport.NewRouter(handler, rateLimiter)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", logger.Error(err))
	}
}
