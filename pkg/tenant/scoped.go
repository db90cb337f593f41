package tenant

import (
	"context"
	"iter"
	"time"

	"github.com/meywd/openauth-core/pkg/kvstore"
)

// ScopedStore is a kvstore.Store view over a base store that transparently
// prepends {"t", tenantID} to every key. A view for tenant t1
// cannot observe or mutate data under any other tenant's prefix through
// these operations.
type ScopedStore struct {
	base     kvstore.Store
	tenantID string
}

// NewScopedStore wraps base with a view scoped to tenantID.
func NewScopedStore(base kvstore.Store, tenantID string) *ScopedStore {
	return &ScopedStore{base: base, tenantID: tenantID}
}

var _ kvstore.Store = (*ScopedStore)(nil)

func (s *ScopedStore) wrap(key kvstore.Key) kvstore.Key {
	wrapped := make(kvstore.Key, 0, len(key)+2)
	wrapped = append(wrapped, "t", s.tenantID)
	wrapped = append(wrapped, key...)
	return wrapped
}

func (s *ScopedStore) Get(ctx context.Context, key kvstore.Key) ([]byte, error) {
	return s.base.Get(ctx, s.wrap(key))
}

func (s *ScopedStore) Set(ctx context.Context, key kvstore.Key, value []byte, ttl time.Duration) error {
	return s.base.Set(ctx, s.wrap(key), value, ttl)
}

func (s *ScopedStore) Remove(ctx context.Context, key kvstore.Key) error {
	return s.base.Remove(ctx, s.wrap(key))
}

// Scan strips the {"t", tenantID} prefix from returned keys so callers see
// the same logical keys they wrote with.
func (s *ScopedStore) Scan(ctx context.Context, prefix kvstore.Key) iter.Seq[kvstore.Entry] {
	wrapped := s.wrap(prefix)
	return func(yield func(kvstore.Entry) bool) {
		for e := range s.base.Scan(ctx, wrapped) {
			logical := e.Key[2:]
			if !yield(kvstore.Entry{Key: logical, Value: e.Value}) {
				return
			}
		}
	}
}
