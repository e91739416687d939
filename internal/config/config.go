package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Tenant database provisioning modes
const (
	TenantDBModePlatform = "platform"
	TenantDBModeLocal    = "local"
)

// Config holds all application configuration
type Config struct {
	Environment   string
	Server        ServerConfig
	Registry      RegistryConfig
	Session       SessionConfig
	Security      SecurityConfig
	Provisioning  ProvisioningConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// RegistryConfig holds the shared registry database configuration
type RegistryConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// URL returns the registry connection string in URI form. The migration
// tooling only accepts URIs, not keyword/value DSNs.
func (r RegistryConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		r.User, r.Password, r.Host, r.Port, r.Database, r.SSLMode)
}

// SessionConfig holds session cookie and signing configuration
type SessionConfig struct {
	SigningSecret  string
	Lifetime       time.Duration
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite string
}

// SecurityConfig holds the server-side secrets feeding key derivation.
// Both secrets are required; there is no development default on purpose.
type SecurityConfig struct {
	PasswordPepper   string
	CredentialSecret string
	PBKDF2Iterations int
}

// ProvisioningConfig holds the database-hosting platform configuration
type ProvisioningConfig struct {
	Mode           string // "platform" or "local"
	PlatformURL    string
	OrgToken       string
	RequestTimeout time.Duration
	LocalDataDir   string
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load loads configuration from the environment. A .env file in the
// working directory is merged in first when present (dev convenience);
// real environment variables always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Registry: RegistryConfig{
			Host:            getEnv("REGISTRY_DB_HOST", "localhost"),
			Port:            getEnv("REGISTRY_DB_PORT", "5432"),
			User:            getEnv("REGISTRY_DB_USER", "shopfloor"),
			Password:        getEnv("REGISTRY_DB_PASSWORD", ""),
			Database:        getEnv("REGISTRY_DB_NAME", "shopfloor"),
			SSLMode:         getEnv("REGISTRY_DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("REGISTRY_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("REGISTRY_DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("REGISTRY_DB_CONN_MAX_LIFETIME", "5m"),
		},
		Session: SessionConfig{
			SigningSecret:  os.Getenv("SESSION_SIGNING_SECRET"),
			Lifetime:       parseDuration("SESSION_LIFETIME", "24h"),
			CookieName:     getEnv("SESSION_COOKIE_NAME", "shopfloor_session"),
			CookieDomain:   getEnv("SESSION_COOKIE_DOMAIN", ""),
			CookiePath:     getEnv("SESSION_COOKIE_PATH", "/"),
			CookieSecure:   parseBool("SESSION_COOKIE_SECURE", false),
			CookieHTTPOnly: parseBool("SESSION_COOKIE_HTTP_ONLY", true),
			CookieSameSite: getEnv("SESSION_COOKIE_SAME_SITE", "Lax"),
		},
		Security: SecurityConfig{
			PasswordPepper:   os.Getenv("PASSWORD_PEPPER"),
			CredentialSecret: os.Getenv("CREDENTIAL_SECRET"),
			PBKDF2Iterations: parseInt("PBKDF2_ITERATIONS", 210000),
		},
		Provisioning: ProvisioningConfig{
			Mode:           getEnv("TENANT_DB_MODE", TenantDBModePlatform),
			PlatformURL:    getEnv("PLATFORM_API_URL", "https://api.dbhost.example.com"),
			OrgToken:       os.Getenv("PLATFORM_ORG_TOKEN"),
			RequestTimeout: parseDuration("PLATFORM_REQUEST_TIMEOUT", "30s"),
			LocalDataDir:   getEnv("TENANT_DB_LOCAL_DIR", "db"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "shopfloor"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate enforces the fatal-at-startup contract: a missing server secret
// is rejected here and never discovered per-request.
func (c *Config) Validate() error {
	if c.Registry.Password == "" {
		return fmt.Errorf("REGISTRY_DB_PASSWORD is required")
	}
	if c.Security.PasswordPepper == "" {
		return fmt.Errorf("PASSWORD_PEPPER is required")
	}
	if c.Security.CredentialSecret == "" {
		return fmt.Errorf("CREDENTIAL_SECRET is required")
	}
	if c.Session.SigningSecret == "" {
		return fmt.Errorf("SESSION_SIGNING_SECRET is required")
	}
	switch c.Provisioning.Mode {
	case TenantDBModePlatform:
		if c.Provisioning.OrgToken == "" {
			return fmt.Errorf("PLATFORM_ORG_TOKEN is required in platform mode")
		}
	case TenantDBModeLocal:
		// The local-file shortcut must be an explicit choice and is never
		// a legal configuration for a deployed environment.
		if c.IsProduction() {
			return fmt.Errorf("TENANT_DB_MODE=local is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown TENANT_DB_MODE %q", c.Provisioning.Mode)
	}
	return nil
}

// IsProduction reports whether the deployment environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
