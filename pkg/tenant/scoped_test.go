package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meywd/openauth-core/pkg/kvstore"
)

func TestScopedStoreIsolation(t *testing.T) {
	// Testable property 6: tenant isolation.
	t.Parallel()
	base := kvstore.NewMemoryStore()
	t.Cleanup(base.Close)
	ctx := context.Background()

	t1 := NewScopedStore(base, "tenant-1")
	t2 := NewScopedStore(base, "tenant-2")

	require.NoError(t, t1.Set(ctx, kvstore.Key{"secret"}, []byte("t1-value"), 0))
	require.NoError(t, t2.Set(ctx, kvstore.Key{"secret"}, []byte("t2-value"), 0))

	v1, err := t1.Get(ctx, kvstore.Key{"secret"})
	require.NoError(t, err)
	assert.Equal(t, []byte("t1-value"), v1)

	v2, err := t2.Get(ctx, kvstore.Key{"secret"})
	require.NoError(t, err)
	assert.Equal(t, []byte("t2-value"), v2)

	// t2 cannot see t1's key at all, even under a directly-addressed
	// unscoped lookup of t1's wire key.
	raw, err := base.Get(ctx, kvstore.Key{"t", "tenant-1", "secret"})
	require.NoError(t, err)
	assert.Equal(t, []byte("t1-value"), raw)

	_, err = t2.Get(ctx, kvstore.Key{"t", "tenant-1", "secret"})
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestScopedStoreScanStripsPrefix(t *testing.T) {
	t.Parallel()
	base := kvstore.NewMemoryStore()
	t.Cleanup(base.Close)
	ctx := context.Background()

	scoped := NewScopedStore(base, "acme")
	require.NoError(t, scoped.Set(ctx, kvstore.Key{"session", "s1"}, []byte("v1"), 0))
	require.NoError(t, scoped.Set(ctx, kvstore.Key{"session", "s2"}, []byte("v2"), time.Hour))

	var keys []kvstore.Key
	for e := range scoped.Scan(ctx, kvstore.Key{"session"}) {
		keys = append(keys, e.Key)
	}
	assert.Len(t, keys, 2)
	for _, k := range keys {
		assert.Equal(t, "session", k[0])
	}
}

func TestScopedStoreRemove(t *testing.T) {
	t.Parallel()
	base := kvstore.NewMemoryStore()
	t.Cleanup(base.Close)
	ctx := context.Background()
	scoped := NewScopedStore(base, "acme")

	require.NoError(t, scoped.Set(ctx, kvstore.Key{"k"}, []byte("v"), 0))
	require.NoError(t, scoped.Remove(ctx, kvstore.Key{"k"}))
	_, err := scoped.Get(ctx, kvstore.Key{"k"})
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}
