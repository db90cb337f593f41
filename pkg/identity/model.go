// Package identity implements the success hook that runs after a
// provider authenticates a user, composing tenant resolution, a
// caller-provided user lookup/creation step, RBAC enrichment, and
// signed OIDC tokens, plus the resulting session update.
package identity

import (
	"context"
	"time"

	"github.com/meywd/openauth-core/pkg/session"
	"github.com/meywd/openauth-core/pkg/tenant"
)

// UserInfo is what the caller's own user store returns for the
// authenticated principal. Identity linking and user creation are
// deliberately left to the caller, since the core has no opinion on the user schema.
type UserInfo struct {
	ID                string
	Email             string
	SubjectType       string
	SubjectProperties map[string]any
}

// UserProvider resolves or creates the local user record for an
// authenticated principal within a tenant.
type UserProvider interface {
	LookupOrCreateUser(ctx context.Context, tenantID string, providerData map[string]any) (*UserInfo, error)
}

// Subject is the enriched subject record composed by the hook.
type Subject struct {
	ID          string   `json:"id"`
	Email       string   `json:"email,omitempty"`
	TenantID    string   `json:"tenantId"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// TokenConfig tunes issued-token lifetimes and the issuer claim.
type TokenConfig struct {
	Issuer         string
	AccessTokenTTL time.Duration
	IDTokenTTL     time.Duration
}

// DefaultTokenConfig matches common OIDC provider defaults; there is no
// universally right lifetime, so these are a reasonable ambient default
// an operator is expected to override via configuration.
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{AccessTokenTTL: time.Hour, IDTokenTTL: time.Hour}
}

// CompleteParams is the input to Hook.Complete.
type CompleteParams struct {
	Tenant           *tenant.Tenant
	BrowserSessionID string // empty creates a fresh browser session
	UserAgent        string
	IPAddress        string
	ProviderData     map[string]any
	ClientID         string
	SessionTTL       time.Duration
}

// Result is the outcome of a completed authentication: the updated session
// state plus the tokens to return to the caller.
type Result struct {
	BrowserSession *session.BrowserSession
	AccountSession *session.AccountSession
	IDToken        string
	AccessToken    string
	Subject        Subject
}
