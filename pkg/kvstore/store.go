// Package kvstore defines the ordered key-value abstraction that
// every other component is built on, plus the key-path encoding
// used to turn a logical key tuple into the opaque string an underlying
// store actually holds.
package kvstore

import (
	"context"
	"errors"
	"iter"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or has expired.
var ErrNotFound = errors.New("kvstore: key not found")

// Key is an ordered sequence of logical segments, e.g. {"session", "browser",
// tenantID, sessionID}. Segments are never interpreted by the store itself;
// only Store implementations and the key-path codec understand them.
type Key []string

// Entry is one (key, value) pair returned by Scan.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the minimal ordered key-value interface every component depends
// on. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set writes value at key. If ttl > 0 the entry expires after ttl;
	// ttl == 0 means no expiration. Set is idempotent: writing the same
	// key twice simply overwrites the prior value.
	Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error

	// Remove deletes key. Removing an absent key is not an error
	// (idempotent-by-effect, so a retried delete after a crash is safe).
	Remove(ctx context.Context, key Key) error

	// Scan returns a lazy sequence of every entry whose key starts with
	// prefix segment by segment (as HasPrefix). The order of entries is
	// implementation-defined and may differ between calls. The sequence
	// must surface entries written under either the current or the
	// legacy key-path encoding.
	Scan(ctx context.Context, prefix Key) iter.Seq[Entry]
}
