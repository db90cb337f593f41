// Package config resolves environment/file configuration into a fully
// resolved Config value. Mirrors the split between a loader (this
// package, built on viper) and a pure, already-resolved Config struct that
// every other package consumes without knowing where the values came from.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/meywd/openauth-core/pkg/logger"
)

// Config is the fully resolved, pure configuration for the server. No file paths or env lookups occur past
// this point — every other package takes a *Config by value.
type Config struct {
	// SessionSecret is the 32-byte symmetric key used for cookie AEAD.
	// Decoded from hex or base64 at the boundary.
	SessionSecret []byte

	// BaseDomain enables subdomain tenant resolution.
	// Empty disables the strategy.
	BaseDomain string

	// DefaultTheme is the process-wide fallback theme.
	DefaultTheme string

	// TenantHeaderName is the header tenant resolution falls back to.
	// Defaults to "X-Tenant-ID".
	TenantHeaderName string

	// TenantQueryParam is the query parameter tenant resolution falls
	// back to. Defaults to "tenant".
	TenantQueryParam string

	// TenantPathPrefix is the path prefix tenant resolution matches
	// against. Defaults to "/tenants".
	TenantPathPrefix string

	// MaxAccountsPerSession bounds how many accounts a single browser
	// session may hold concurrently.
	MaxAccountsPerSession int

	// SessionLifetime is the hard lifetime of a browser session.
	SessionLifetime time.Duration

	// SlidingWindow is the activity window before getBrowserSession
	// rewrites last_activity.
	SlidingWindow time.Duration

	// PermissionCacheTTL bounds how long a resolved permission set stays
	// cached before the RBAC engine re-reads the store.
	PermissionCacheTTL time.Duration

	// MaxPermissionsInToken bounds how many permission strings
	// EnrichTokenClaims will embed in a token before truncating.
	MaxPermissionsInToken int

	// SecretRotationGrace is the default grace period applied when
	// rotating an OAuth client secret and the caller does not specify one.
	SecretRotationGrace time.Duration
}

// Default values, named so every package can reference the same constants
// instead of re-declaring magic numbers.
const (
	DefaultMaxAccountsPerSession = 3
	DefaultSessionLifetime       = 7 * 24 * time.Hour
	DefaultSlidingWindow         = 24 * time.Hour
	DefaultPermissionCacheTTL    = 60 * time.Second
	DefaultMaxPermissionsInToken = 50
	DefaultSecretRotationGrace   = time.Hour
	DefaultTenantHeaderName      = "X-Tenant-ID"
	DefaultTenantQueryParam      = "tenant"
	DefaultTenantPathPrefix      = "/tenants"
)

// Load resolves configuration from environment variables (and an optional
// config file) using viper, applying defaults and validating the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OPENAUTH")
	v.AutomaticEnv()

	v.SetDefault("max_accounts_per_session", DefaultMaxAccountsPerSession)
	v.SetDefault("session_lifetime_seconds", int(DefaultSessionLifetime.Seconds()))
	v.SetDefault("sliding_window_seconds", int(DefaultSlidingWindow.Seconds()))
	v.SetDefault("permission_cache_ttl_seconds", int(DefaultPermissionCacheTTL.Seconds()))
	v.SetDefault("max_permissions_in_token", DefaultMaxPermissionsInToken)
	v.SetDefault("secret_rotation_grace_seconds", int(DefaultSecretRotationGrace.Seconds()))
	v.SetDefault("tenant_header_name", DefaultTenantHeaderName)
	v.SetDefault("tenant_query_param", DefaultTenantQueryParam)
	v.SetDefault("tenant_path_prefix", DefaultTenantPathPrefix)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	secret, err := decodeSecret(v.GetString("session_secret"))
	if err != nil {
		return nil, fmt.Errorf("session_secret: %w", err)
	}

	cfg := &Config{
		SessionSecret:         secret,
		BaseDomain:            v.GetString("base_domain"),
		DefaultTheme:          v.GetString("default_theme"),
		TenantHeaderName:      v.GetString("tenant_header_name"),
		TenantQueryParam:      v.GetString("tenant_query_param"),
		TenantPathPrefix:      v.GetString("tenant_path_prefix"),
		MaxAccountsPerSession: v.GetInt("max_accounts_per_session"),
		SessionLifetime:       time.Duration(v.GetInt64("session_lifetime_seconds")) * time.Second,
		SlidingWindow:         time.Duration(v.GetInt64("sliding_window_seconds")) * time.Second,
		PermissionCacheTTL:    time.Duration(v.GetInt64("permission_cache_ttl_seconds")) * time.Second,
		MaxPermissionsInToken: v.GetInt("max_permissions_in_token"),
		SecretRotationGrace:   time.Duration(v.GetInt64("secret_rotation_grace_seconds")) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Infow("configuration loaded", "baseDomain", cfg.BaseDomain, "sessionLifetime", cfg.SessionLifetime)
	return cfg, nil
}

// Validate checks invariants on an already-populated Config.
func (c *Config) Validate() error {
	if len(c.SessionSecret) != 32 {
		return fmt.Errorf("session secret must decode to exactly 32 bytes, got %d", len(c.SessionSecret))
	}
	if c.MaxAccountsPerSession <= 0 {
		return fmt.Errorf("max_accounts_per_session must be positive")
	}
	return nil
}

// decodeSecret accepts either hex or base64 encoding so operators can
// supply the session secret in whichever form their secret store emits.
func decodeSecret(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	if b, err := hex.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return nil, fmt.Errorf("not valid hex or base64")
}
