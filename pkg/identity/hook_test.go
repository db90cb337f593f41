package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meywd/openauth-core/pkg/keys"
	"github.com/meywd/openauth-core/pkg/kvstore"
	"github.com/meywd/openauth-core/pkg/rbac"
	"github.com/meywd/openauth-core/pkg/session"
	"github.com/meywd/openauth-core/pkg/tenant"

	_ "modernc.org/sqlite"
)

type stubUsers struct {
	id, email, subjectType string
}

func (u *stubUsers) LookupOrCreateUser(ctx context.Context, tenantID string, providerData map[string]any) (*UserInfo, error) {
	return &UserInfo{ID: u.id, Email: u.email, SubjectType: u.subjectType}, nil
}

func newTestHook(t *testing.T) *Hook {
	t.Helper()
	kv := kvstore.NewMemoryStore(kvstore.WithCleanupInterval(time.Hour))
	t.Cleanup(kv.Close)

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(rbac.Schema)
	require.NoError(t, err)

	km := keys.NewManager(kv)
	engine := rbac.NewEngine(rbac.NewSQLStore(db), kv, rbac.DefaultConfig())
	sessions := session.NewStore(kv, session.DefaultConfig(), nil)
	users := &stubUsers{id: "user-1", email: "user@example.com", subjectType: "user"}

	return NewHook(km, engine, sessions, users, TokenConfig{
		Issuer:         "https://auth.acme.example",
		AccessTokenTTL: time.Hour,
		IDTokenTTL:     time.Hour,
	})
}

func sampleTenant() *tenant.Tenant {
	return &tenant.Tenant{ID: "acme", Name: "Acme", Status: tenant.StatusActive}
}

func TestCompleteIssuesTokensAndCreatesSession(t *testing.T) {
	t.Parallel()
	h := newTestHook(t)
	ctx := context.Background()

	result, err := h.Complete(ctx, CompleteParams{
		Tenant:     sampleTenant(),
		UserAgent:  "test-agent",
		IPAddress:  "127.0.0.1",
		ClientID:   "client-1",
		SessionTTL: time.Hour,
	})
	require.NoError(t, err)
	require.NotNil(t, result.BrowserSession)
	require.NotNil(t, result.AccountSession)
	assert.Equal(t, "user-1", result.AccountSession.UserID)
	assert.NotEmpty(t, result.IDToken)
	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, "user-1", result.Subject.ID)

	claimsOut := &claims{}
	_, _, err = jwt.NewParser().ParseUnverified(result.AccessToken, claimsOut)
	require.NoError(t, err)
	assert.Equal(t, "acme", claimsOut.TenantID)
	assert.Equal(t, "user", claimsOut.Mode)
	assert.Equal(t, "user-1", claimsOut.Subject)
}

func TestCompleteReusesExistingBrowserSession(t *testing.T) {
	t.Parallel()
	h := newTestHook(t)
	ctx := context.Background()

	first, err := h.Complete(ctx, CompleteParams{Tenant: sampleTenant(), ClientID: "client-1", SessionTTL: time.Hour})
	require.NoError(t, err)

	second, err := h.Complete(ctx, CompleteParams{
		Tenant:           sampleTenant(),
		BrowserSessionID: first.BrowserSession.ID,
		ClientID:         "client-1",
		SessionTTL:       time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, first.BrowserSession.ID, second.BrowserSession.ID)
}

func TestCompleteRejectsSuspendedTenant(t *testing.T) {
	t.Parallel()
	h := newTestHook(t)
	ctx := context.Background()

	suspended := sampleTenant()
	suspended.Status = tenant.StatusSuspended
	_, err := h.Complete(ctx, CompleteParams{Tenant: suspended, ClientID: "client-1"})
	require.Error(t, err)
}

func TestIssueM2MTokenCarriesClientAndScope(t *testing.T) {
	t.Parallel()
	h := newTestHook(t)
	ctx := context.Background()

	token, err := h.IssueM2MToken(ctx, "acme", "service-client", []string{"reports:read", "reports:write"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claimsOut := &claims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claimsOut)
	require.NoError(t, err)
	assert.Equal(t, "m2m", claimsOut.Mode)
	assert.Equal(t, "service-client", claimsOut.ClientID)
	assert.Equal(t, "reports:read reports:write", claimsOut.Scope)
}
