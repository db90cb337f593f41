package keys

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/google/uuid"

	"github.com/meywd/openauth-core/pkg/kvstore"
	"github.com/meywd/openauth-core/pkg/logger"
)

// Manager discovers or generates the process-wide signing and encryption
// keys. Concurrent callers in one process are coalesced with
// singleflight; concurrent writers across processes converge on the fixed
// PrimaryKeyID row rather than racing to create distinct keys.
type Manager struct {
	store kvstore.Store
	group singleflight.Group
	now   func() time.Time
}

// NewManager wires a Manager on top of a process-wide KV store. Keys are
// not tenant-scoped, so store must NOT be a tenant.ScopedStore.
func NewManager(store kvstore.Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

func roleKey(role Role, id string) kvstore.Key { return kvstore.Key{"keys", string(role), id} }

func roleScanPrefix(role Role) kvstore.Key { return kvstore.Key{"keys", string(role)} }

// Active returns the current signing or encryption key pair for role,
// generating one if none exists yet.
func (m *Manager) Active(ctx context.Context, role Role) (*KeyPair, error) {
	v, err, _ := m.group.Do(string(role), func() (any, error) {
		return m.lookup(ctx, role)
	})
	if err != nil {
		return nil, err
	}
	return v.(*KeyPair), nil
}

// lookup implements the fast-path/slow-path/generate/fallback algorithm.
func (m *Manager) lookup(ctx context.Context, role Role) (*KeyPair, error) {
	// Fast path: read the well-known primary id directly.
	if raw, err := m.store.Get(ctx, roleKey(role, PrimaryKeyID)); err == nil {
		kp, decodeErr := decodeKeyPair(raw)
		if decodeErr == nil && !kp.IsExpired() {
			return kp, nil
		}
	}

	// Slow path: scan all keys of this role and pick the newest non-expired one.
	existing, err := m.scanRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("scanning %s keys: %w", role, err)
	}
	if len(existing) > 0 {
		sort.Slice(existing, func(i, j int) bool { return existing[i].Created > existing[j].Created })
		for _, kp := range existing {
			if !kp.IsExpired() {
				return kp, nil
			}
		}
	}

	// Nothing usable: generate a fresh pair and claim the primary slot.
	fresh, err := m.generate(role)
	if err != nil {
		return nil, err
	}
	if err := m.claimPrimary(ctx, role, fresh); err != nil {
		// Another process may have won the race to claim "primary".
		logger.Warnw("could not claim primary key slot, re-reading", "role", role, "error", err)
	}
	// Re-read the primary slot so the caller gets whichever key actually
	// won it; fall back to our freshly generated local key with a warning
	// only if that re-read fails.
	if raw, rerr := m.store.Get(ctx, roleKey(role, PrimaryKeyID)); rerr == nil {
		if kp, derr := decodeKeyPair(raw); derr == nil && !kp.IsExpired() {
			return kp, nil
		}
	}
	logger.Warnw("falling back to locally generated key after primary re-read failed", "role", role, "id", fresh.ID)
	return fresh, nil
}

func (m *Manager) scanRole(ctx context.Context, role Role) ([]*KeyPair, error) {
	var out []*KeyPair
	for e := range m.store.Scan(ctx, roleScanPrefix(role)) {
		if len(e.Key) > 0 && e.Key[len(e.Key)-1] == PrimaryKeyID {
			continue // avoid double-counting the primary alias
		}
		kp, err := decodeKeyPair(e.Value)
		if err != nil {
			logger.Warnw("skipping corrupt key row", "role", role, "error", err)
			continue
		}
		out = append(out, kp)
	}
	return out, nil
}

func (m *Manager) generate(role Role) (*KeyPair, error) {
	alg, ok := algorithms[role]
	if !ok {
		return nil, fmt.Errorf("unknown key role %q", role)
	}
	pub, priv, err := alg.generate()
	if err != nil {
		return nil, fmt.Errorf("generating %s key: %w", role, err)
	}
	return &KeyPair{
		ID:      uuid.NewString(),
		Alg:     alg.name,
		Public:  pub,
		Private: priv,
		Created: m.now().Unix(),
	}, nil
}

func (m *Manager) put(ctx context.Context, role Role, kp *KeyPair) error {
	b, err := encodeKeyPair(kp)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, roleKey(role, kp.ID), b, 0)
}

// claimPrimary writes kp under PrimaryKeyID only if no live primary exists,
// using Set's overwrite semantics guarded by a re-read: if a primary shows
// up between the check and the write, the write still lands, but the
// caller re-reads and prefers whichever key actually won. This keeps the
// race resolvable in O(1) storage calls rather than requiring a
// compare-and-swap primitive the kvstore does not expose.
func (m *Manager) claimPrimary(ctx context.Context, role Role, kp *KeyPair) error {
	if raw, err := m.store.Get(ctx, roleKey(role, PrimaryKeyID)); err == nil {
		if existing, derr := decodeKeyPair(raw); derr == nil && !existing.IsExpired() {
			return fmt.Errorf("primary %s key already claimed by %s", role, existing.ID)
		}
	}
	b, err := encodeKeyPair(kp)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, roleKey(role, PrimaryKeyID), b, 0)
}

// Rotate forces generation of a new key for role and makes it primary,
// archiving the previous primary (if any) under its own id and marking it
// expired so it remains available for verification only.
func (m *Manager) Rotate(ctx context.Context, role Role) (*KeyPair, error) {
	if raw, err := m.store.Get(ctx, roleKey(role, PrimaryKeyID)); err == nil {
		if prev, derr := decodeKeyPair(raw); derr == nil && !prev.IsExpired() {
			exp := m.now().Unix()
			prev.Expired = &exp
			if err := m.put(ctx, role, prev); err != nil {
				return nil, fmt.Errorf("archiving previous %s key: %w", role, err)
			}
		}
	}
	fresh, err := m.generate(role)
	if err != nil {
		return nil, err
	}
	b, err := encodeKeyPair(fresh)
	if err != nil {
		return nil, err
	}
	if err := m.store.Set(ctx, roleKey(role, PrimaryKeyID), b, 0); err != nil {
		return nil, fmt.Errorf("promoting rotated %s key to primary: %w", role, err)
	}
	return fresh, nil
}

// VerificationKeys returns every known key for role, including expired
// ones, so a caller can still verify signatures/decrypt payloads produced
// before a rotation.
func (m *Manager) VerificationKeys(ctx context.Context, role Role) ([]*KeyPair, error) {
	keys, err := m.scanRole(ctx, role)
	if err != nil {
		return nil, err
	}
	if raw, err := m.store.Get(ctx, roleKey(role, PrimaryKeyID)); err == nil {
		if kp, derr := decodeKeyPair(raw); derr == nil {
			keys = append(keys, kp)
		}
	}
	return keys, nil
}
