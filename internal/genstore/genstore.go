// Package genstore tracks a monotonically increasing generation per cache
// key. Invalidation bumps a key's generation; cache writes carry the
// generation observed before their fetch and are discarded when it moved,
// which fences out writes racing an invalidation.
package genstore

import (
	"sync"
	"time"
)

const (
	defaultRetention = time.Hour
	defaultSweep     = 10 * time.Minute
)

type entry struct {
	gen     uint64
	touched time.Time
	pinned  bool
}

// Table is an in-process generation table. Keys that have never been
// bumped are at generation zero and occupy no memory.
type Table struct {
	mu   sync.RWMutex
	gens map[string]*entry

	retention time.Duration
	stop      chan struct{}
	closeOnce sync.Once
}

// New creates a Table. Unpinned entries idle longer than retention are
// swept on the given interval; a swept key reverts to generation zero,
// which at worst forces one extra store round trip (stale entries still
// fail validation, they are never served). Pinned entries are exempt until
// Unpin. Non-positive arguments select the defaults; the default sweep
// interval never exceeds half the retention, so short retentions stay
// accurate.
func New(retention, sweepInterval time.Duration) *Table {
	if retention <= 0 {
		retention = defaultRetention
	}
	if sweepInterval <= 0 {
		sweepInterval = defaultSweep
		if half := retention / 2; half > 0 && half < sweepInterval {
			sweepInterval = half
		}
	}

	t := &Table{
		gens:      make(map[string]*entry),
		retention: retention,
		stop:      make(chan struct{}),
	}
	go t.sweepLoop(sweepInterval)
	return t
}

// Snapshot returns the current generation for key.
func (t *Table) Snapshot(key string) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.gens[key]; ok {
		return e.gen
	}
	return 0
}

// Bump advances the generation for key and returns the new value. Every
// entry written under an earlier generation becomes invalid.
func (t *Table) Bump(key string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.gens[key]
	if !ok {
		e = &entry{}
		t.gens[key] = e
	}
	e.gen++
	e.touched = time.Now()
	return e.gen
}

// Pin exempts key from sweeping until Unpin. A pinned generation outlives
// the retention window, so the fence it anchors stays in force while the
// entry it invalidates may still exist in the backing store.
func (t *Table) Pin(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.gens[key]
	if !ok {
		e = &entry{}
		t.gens[key] = e
	}
	e.pinned = true
	e.touched = time.Now()
}

// Unpin returns key to normal retention.
func (t *Table) Unpin(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.gens[key]; ok {
		e.pinned = false
		e.touched = time.Now()
	}
}

// Close stops the sweeper. The table remains usable afterwards.
func (t *Table) Close() {
	t.closeOnce.Do(func() {
		close(t.stop)
	})
}

func (t *Table) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case now := <-ticker.C:
			t.sweep(now)
		}
	}
}

func (t *Table) sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, e := range t.gens {
		if !e.pinned && now.Sub(e.touched) > t.retention {
			delete(t.gens, key)
		}
	}
}
