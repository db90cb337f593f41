package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meywd/openauth-core/pkg/apierr"
	"github.com/meywd/openauth-core/pkg/keys"
	"github.com/meywd/openauth-core/pkg/rbac"
	"github.com/meywd/openauth-core/pkg/session"
	"github.com/meywd/openauth-core/pkg/tenant"
)

// Hook implements the success hook.
type Hook struct {
	keys     *keys.Manager
	rbac     *rbac.Engine
	sessions *session.Store
	users    UserProvider
	cfg      TokenConfig
	now      func() time.Time
}

// NewHook wires a Hook from its component dependencies.
func NewHook(km *keys.Manager, rbacEngine *rbac.Engine, sessions *session.Store, users UserProvider, cfg TokenConfig) *Hook {
	return &Hook{keys: km, rbac: rbacEngine, sessions: sessions, users: users, cfg: cfg, now: time.Now}
}

// Complete runs the full success-hook composition order: tenant (already
// resolved by the caller) → user lookup/creation → RBAC enrichment →
// subject record → session update → signed id and access tokens.
func (h *Hook) Complete(ctx context.Context, p CompleteParams) (*Result, error) {
	if !p.Tenant.Status.CanIssueTokens() {
		if p.Tenant.Status == tenant.StatusSuspended {
			return nil, apierr.ErrTenantSuspended
		}
		return nil, apierr.ErrTenantDeleted
	}

	user, err := h.users.LookupOrCreateUser(ctx, p.Tenant.ID, p.ProviderData)
	if err != nil {
		return nil, fmt.Errorf("resolving user: %w", err)
	}

	enriched, err := h.rbac.EnrichTokenClaims(ctx, p.Tenant.ID, user.ID, p.ClientID)
	if err != nil {
		return nil, fmt.Errorf("enriching rbac claims: %w", err)
	}
	subject := Subject{
		ID:          user.ID,
		Email:       user.Email,
		TenantID:    p.Tenant.ID,
		Roles:       enriched.Roles,
		Permissions: enriched.Permissions,
	}

	bs, err := h.resolveBrowserSession(ctx, p)
	if err != nil {
		return nil, err
	}

	ttl := p.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	as, err := h.sessions.AddAccountToSession(ctx, session.AddAccountParams{
		BrowserSessionID:  bs.ID,
		UserID:            user.ID,
		SubjectType:       user.SubjectType,
		SubjectProperties: user.SubjectProperties,
		ClientID:          p.ClientID,
		TTLSeconds:        int64(ttl.Seconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("adding account to session: %w", err)
	}

	now := h.now()
	idClaims := userClaims(h.cfg.Issuer, p.Tenant.ID, p.ClientID, subject, h.cfg.IDTokenTTL, now)
	idToken, err := signToken(ctx, h.keys, idClaims)
	if err != nil {
		return nil, fmt.Errorf("signing id token: %w", err)
	}
	accessClaims := userClaims(h.cfg.Issuer, p.Tenant.ID, p.ClientID, subject, h.cfg.AccessTokenTTL, now)
	accessToken, err := signToken(ctx, h.keys, accessClaims)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	return &Result{
		BrowserSession: bs,
		AccountSession: as,
		IDToken:        idToken,
		AccessToken:    accessToken,
		Subject:        subject,
	}, nil
}

func (h *Hook) resolveBrowserSession(ctx context.Context, p CompleteParams) (*session.BrowserSession, error) {
	if p.BrowserSessionID == "" {
		return h.sessions.CreateBrowserSession(ctx, p.Tenant.ID, p.UserAgent, p.IPAddress)
	}
	bs, err := h.sessions.GetBrowserSession(ctx, p.BrowserSessionID, p.Tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("loading browser session: %w", err)
	}
	if bs == nil {
		return h.sessions.CreateBrowserSession(ctx, p.Tenant.ID, p.UserAgent, p.IPAddress)
	}
	return bs, nil
}

// IssueM2MToken issues a client-credentials token carrying client_id and a
// space-separated scope, with no user session involved.
func (h *Hook) IssueM2MToken(ctx context.Context, tenantID, clientID string, scopes []string) (string, error) {
	c := m2mClaims(h.cfg.Issuer, tenantID, clientID, strings.Join(scopes, " "), h.cfg.AccessTokenTTL, h.now())
	return signToken(ctx, h.keys, c)
}
