package testsupport

import (
	"context"
	"sync"
	"time"
)

// SpyAdapter is an in-memory cache adapter that counts every call and can
// fail on demand. It deliberately does not implement prefix deletes, which
// makes it the adapter to test registry-based flush fallbacks with.
type SpyAdapter struct {
	mu      sync.Mutex
	entries map[string][]byte

	gets, sets, deletes    int
	getErr, setErr, delErr error
}

// NewSpyAdapter returns an empty adapter.
func NewSpyAdapter() *SpyAdapter {
	return &SpyAdapter{entries: make(map[string][]byte)}
}

// Get returns the stored bytes for key. Absence is ok=false with nil error.
func (a *SpyAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.gets++
	if a.getErr != nil {
		return nil, false, a.getErr
	}
	value, ok := a.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// Set stores value under key. The physical ttl is ignored; tests exercise
// expiry through the logical expiry the engine embeds in its entries.
func (a *SpyAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sets++
	if a.setErr != nil {
		return a.setErr
	}
	a.entries[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key. Deleting an absent key succeeds.
func (a *SpyAdapter) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.deletes++
	if a.delErr != nil {
		return a.delErr
	}
	delete(a.entries, key)
	return nil
}

// FailGets makes subsequent Get calls fail with err; nil restores them.
func (a *SpyAdapter) FailGets(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.getErr = err
}

// FailSets makes subsequent Set calls fail with err; nil restores them.
func (a *SpyAdapter) FailSets(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setErr = err
}

// FailDeletes makes subsequent Delete calls fail with err, leaving the
// targeted entries in place; nil restores them.
func (a *SpyAdapter) FailDeletes(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delErr = err
}

// Gets returns how many Get calls the adapter has served.
func (a *SpyAdapter) Gets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gets
}

// Sets returns how many Set calls the adapter has served.
func (a *SpyAdapter) Sets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sets
}

// Deletes returns how many Delete calls the adapter has served.
func (a *SpyAdapter) Deletes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deletes
}

// Len returns how many entries the adapter currently holds.
func (a *SpyAdapter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Keys returns the currently stored keys in no particular order.
func (a *SpyAdapter) Keys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for key := range a.entries {
		out = append(out, key)
	}
	return out
}
