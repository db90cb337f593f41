package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meywd/openauth-core/pkg/apierr"
	"github.com/meywd/openauth-core/pkg/kvstore"
)

func newResolverFixture(t *testing.T, cfg ResolverConfig) (*Resolver, *Registry) {
	t.Helper()
	store := kvstore.NewMemoryStore()
	t.Cleanup(store.Close)
	reg := NewRegistry(store, nil)
	return NewResolver(reg, cfg), reg
}

func headerFunc(values map[string]string) func(string) string {
	return func(name string) string { return values[name] }
}

func TestResolveCustomDomain(t *testing.T) {
	t.Parallel()
	r, reg := newResolverFixture(t, ResolverConfig{BaseDomain: "openauth.io"})
	ctx := context.Background()
	_, err := reg.Create(ctx, CreateParams{ID: "acme", Name: "Acme", Domain: "login.acme.com"})
	require.NoError(t, err)

	got, err := r.Resolve(ctx, RequestSurface{Host: "login.acme.com:443"})
	require.NoError(t, err)
	assert.Equal(t, "acme", got.ID)
}

func TestResolveSubdomain(t *testing.T) {
	t.Parallel()
	r, reg := newResolverFixture(t, ResolverConfig{BaseDomain: "openauth.io"})
	ctx := context.Background()
	_, err := reg.Create(ctx, CreateParams{ID: "acme", Name: "Acme"})
	require.NoError(t, err)

	got, err := r.Resolve(ctx, RequestSurface{Host: "acme.openauth.io"})
	require.NoError(t, err)
	assert.Equal(t, "acme", got.ID)
}

func TestResolveSubdomainRejectsNestedLabel(t *testing.T) {
	t.Parallel()
	r, reg := newResolverFixture(t, ResolverConfig{BaseDomain: "openauth.io", Optional: true})
	ctx := context.Background()
	_, err := reg.Create(ctx, CreateParams{ID: "acme", Name: "Acme"})
	require.NoError(t, err)

	got, err := r.Resolve(ctx, RequestSurface{Host: "foo.acme.openauth.io"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolvePathPrefix(t *testing.T) {
	t.Parallel()
	r, reg := newResolverFixture(t, ResolverConfig{})
	ctx := context.Background()
	_, err := reg.Create(ctx, CreateParams{ID: "acme", Name: "Acme"})
	require.NoError(t, err)

	got, err := r.Resolve(ctx, RequestSurface{Path: "/tenants/acme/authorize"})
	require.NoError(t, err)
	assert.Equal(t, "acme", got.ID)
}

func TestResolveHeaderFallback(t *testing.T) {
	t.Parallel()
	r, reg := newResolverFixture(t, ResolverConfig{})
	ctx := context.Background()
	_, err := reg.Create(ctx, CreateParams{ID: "acme", Name: "Acme"})
	require.NoError(t, err)

	got, err := r.Resolve(ctx, RequestSurface{Header: headerFunc(map[string]string{"X-Tenant-ID": "acme"})})
	require.NoError(t, err)
	assert.Equal(t, "acme", got.ID)
}

func TestResolveQueryFallback(t *testing.T) {
	t.Parallel()
	r, reg := newResolverFixture(t, ResolverConfig{})
	ctx := context.Background()
	_, err := reg.Create(ctx, CreateParams{ID: "acme", Name: "Acme"})
	require.NoError(t, err)

	got, err := r.Resolve(ctx, RequestSurface{Query: headerFunc(map[string]string{"tenant": "acme"})})
	require.NoError(t, err)
	assert.Equal(t, "acme", got.ID)
}

func TestResolvePriorityOrder(t *testing.T) {
	// Header present but path prefix should win since it's higher priority.
	t.Parallel()
	r, reg := newResolverFixture(t, ResolverConfig{})
	ctx := context.Background()
	_, err := reg.Create(ctx, CreateParams{ID: "from-path", Name: "P"})
	require.NoError(t, err)
	_, err = reg.Create(ctx, CreateParams{ID: "from-header", Name: "H"})
	require.NoError(t, err)

	got, err := r.Resolve(ctx, RequestSurface{
		Path:   "/tenants/from-path",
		Header: headerFunc(map[string]string{"X-Tenant-ID": "from-header"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "from-path", got.ID)
}

func TestResolveSuspendedFailsWithoutFallthrough(t *testing.T) {
	t.Parallel()
	r, reg := newResolverFixture(t, ResolverConfig{})
	ctx := context.Background()
	_, err := reg.Create(ctx, CreateParams{ID: "acme", Name: "Acme"})
	require.NoError(t, err)
	suspended := StatusSuspended
	_, err = reg.Update(ctx, "acme", UpdatePatch{Status: &suspended})
	require.NoError(t, err)

	_, err = r.Resolve(ctx, RequestSurface{
		Path:   "/tenants/acme",
		Header: headerFunc(map[string]string{"X-Tenant-ID": "should-not-be-used"}),
	})
	assert.ErrorIs(t, err, apierr.ErrTenantSuspended)
}

func TestResolveOptionalModeNoMatch(t *testing.T) {
	t.Parallel()
	r, _ := newResolverFixture(t, ResolverConfig{Optional: true})
	got, err := r.Resolve(context.Background(), RequestSurface{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveRequiredModeNoMatch(t *testing.T) {
	t.Parallel()
	r, _ := newResolverFixture(t, ResolverConfig{})
	_, err := r.Resolve(context.Background(), RequestSurface{})
	assert.ErrorIs(t, err, apierr.ErrTenantNotFound)
}
