package cache

import (
	"context"
	"time"
)

// Adapter is the pluggable key/value store behind a collection facade.
// Implementations are supplied by the embedding application; the engine
// works with any conforming implementation and never assumes synchronous
// completion.
//
// Values are opaque byte envelopes. Absence is reported through ok=false,
// never through an error; errors are reserved for backend failures, which
// the engine treats as best-effort (a failing adapter degrades to a cache
// miss, it never aborts a load).
type Adapter interface {
	// Get returns the value stored under key, if any.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key. A positive ttl bounds the entry's
	// lifetime; zero or negative stores a non-expiring entry. The facade
	// is the sole decider of whether a duration is attached.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the entry under key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error
}

// PrefixDeleter is an optional Adapter capability: removing every entry
// under a key prefix in one call. Collection flushes use it when
// available and fall back to per-key deletes otherwise.
type PrefixDeleter interface {
	DeleteByPrefix(ctx context.Context, prefix string) error
}
