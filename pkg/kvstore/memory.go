package kvstore

import (
	"context"
	"iter"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often MemoryStore sweeps expired entries in
// the background, mirroring the MemoryStorage cleanup loop.
const DefaultCleanupInterval = 5 * time.Minute

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiration
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process Store, the reference semantic for scan
// behavior. Scan yields entries in an arbitrary order (map iteration order).
type MemoryStore struct {
	mu              sync.RWMutex
	data            map[string]memoryEntry
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

// MemoryStoreOption configures a MemoryStore at construction.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval overrides DefaultCleanupInterval.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.cleanupInterval = d }
}

// NewMemoryStore creates a ready-to-use MemoryStore and starts its
// background expiry sweep.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		data:            make(map[string]memoryEntry),
		cleanupInterval: DefaultCleanupInterval,
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.cleanupLoop()
	return s
}

// Close stops the background sweep. Safe to call more than once.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.data {
		if e.expired(now) {
			delete(s.data, k)
		}
	}
}

func (s *MemoryStore) Get(_ context.Context, key Key) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.data[Encode(key)]
	s.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return nil, ErrNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key Key, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.data[Encode(key)] = memoryEntry{value: value, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key Key) error {
	s.mu.Lock()
	delete(s.data, Encode(key))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Scan(_ context.Context, prefix Key) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		now := time.Now()
		s.mu.RLock()
		snapshot := make([]Entry, 0, len(s.data))
		for raw, e := range s.data {
			if e.expired(now) {
				continue
			}
			k := Decode(raw)
			if !HasPrefix(k, prefix) {
				continue
			}
			snapshot = append(snapshot, Entry{Key: k, Value: e.value})
		}
		s.mu.RUnlock()

		for _, entry := range snapshot {
			if !yield(entry) {
				return
			}
		}
	}
}
