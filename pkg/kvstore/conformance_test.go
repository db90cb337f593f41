package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runConformance exercises the contract every Store implementation must
// satisfy, so memory and redis (and any future adapter) are tested
// identically — the memory adapter is the reference semantic.
func runConformance(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		_, err := s.Get(context.Background(), Key{"missing"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set then get round trips", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, Key{"a", "b"}, []byte("hello"), 0))
		v, err := s.Get(ctx, Key{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), v)
	})

	t.Run("set is idempotent overwrite", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, Key{"a"}, []byte("1"), 0))
		require.NoError(t, s.Set(ctx, Key{"a"}, []byte("2"), 0))
		v, err := s.Get(ctx, Key{"a"})
		require.NoError(t, err)
		assert.Equal(t, []byte("2"), v)
	})

	t.Run("remove absent key is not an error", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		assert.NoError(t, s.Remove(context.Background(), Key{"never-existed"}))
	})

	t.Run("remove deletes the entry", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, Key{"a"}, []byte("1"), 0))
		require.NoError(t, s.Remove(ctx, Key{"a"}))
		_, err := s.Get(ctx, Key{"a"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("scan finds entries by prefix only", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, Key{"t", "acme", "x"}, []byte("1"), 0))
		require.NoError(t, s.Set(ctx, Key{"t", "acme", "y"}, []byte("2"), 0))
		require.NoError(t, s.Set(ctx, Key{"t", "other", "z"}, []byte("3"), 0))

		found := map[string]string{}
		for e := range s.Scan(ctx, Key{"t", "acme"}) {
			found[Encode(e.Key)] = string(e.Value)
		}
		assert.Len(t, found, 2)
		assert.Equal(t, "1", found[Encode(Key{"t", "acme", "x"})])
		assert.Equal(t, "2", found[Encode(Key{"t", "acme", "y"})])
	})

	t.Run("scan can stop early", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		for i := range 5 {
			require.NoError(t, s.Set(ctx, Key{"p", string(rune('a'+i))}, []byte("v"), 0))
		}
		count := 0
		for range s.Scan(ctx, Key{"p"}) {
			count++
			if count == 2 {
				break
			}
		}
		assert.Equal(t, 2, count)
	})
}
