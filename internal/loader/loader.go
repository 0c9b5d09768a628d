// Package loader implements the scheduling-window batcher behind the
// collection facade.
//
// Requests for individual keys that arrive while a window is open are
// merged into one fetch covering their union. The window opens on the
// first request and drains after a short timer, or immediately once the
// distinct-key bound is reached. Duplicate keys within a window share one
// pending slot and therefore one outcome. The batcher keeps no state
// between windows; memoization belongs to the cache layer above.
package loader

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultWindow is how long the first request waits for peers.
	DefaultWindow = time.Millisecond
	// DefaultMaxBatch caps distinct keys per physical query.
	DefaultMaxBatch = 100
)

// BatchFunc resolves one drained window. The returned map holds a value
// for every key the store matched; absent keys are absent from the map,
// not an error. A returned error fails every request merged into the
// window uniformly.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// Options configure a Batcher.
type Options struct {
	// Window is the coalescing delay before a batch drains.
	Window time.Duration
	// MaxBatch drains a window early once this many distinct keys are
	// pending. Zero selects the default.
	MaxBatch int
	// Logger receives drain diagnostics at debug level.
	Logger *zap.Logger
}

// Result is the outcome of one requested key in a LoadMany call.
type Result[V any] struct {
	Value V
	Found bool
	Err   error
}

// Batcher coalesces concurrent single-key requests into one BatchFunc
// call per window.
type Batcher[K comparable, V any] struct {
	fetch    BatchFunc[K, V]
	window   time.Duration
	maxBatch int
	log      *zap.Logger

	mu  sync.Mutex
	cur *batch[K, V]
}

type batch[K comparable, V any] struct {
	ctx     context.Context
	keys    []K
	pending map[K]*thunk[V]
	timer   *time.Timer
	drained bool
}

type thunk[V any] struct {
	done  chan struct{}
	value V
	found bool
	err   error
}

// New creates a Batcher. Zero option fields select defaults; a nil logger
// disables logging.
func New[K comparable, V any](fetch BatchFunc[K, V], opts Options) *Batcher[K, V] {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultMaxBatch
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Batcher[K, V]{
		fetch:    fetch,
		window:   opts.Window,
		maxBatch: opts.MaxBatch,
		log:      opts.Logger,
	}
}

// Load requests a single key and blocks until its window resolves. The
// bool reports whether the store matched the key. Once enqueued the
// request runs to completion; ctx carries values into the fetch but its
// cancellation does not abort the batch.
func (b *Batcher[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	t := b.enqueue(ctx, []K{key})[0]
	<-t.done
	return t.value, t.found, t.err
}

// LoadMany requests a set of keys. All keys are enqueued atomically, so
// one call occupies at most ceil(distinct/MaxBatch) windows. The results
// are positional: one per input key, duplicates sharing one outcome.
func (b *Batcher[K, V]) LoadMany(ctx context.Context, keys []K) []Result[V] {
	if len(keys) == 0 {
		return nil
	}
	thunks := b.enqueue(ctx, keys)
	out := make([]Result[V], len(keys))
	for i, t := range thunks {
		<-t.done
		out[i] = Result[V]{Value: t.value, Found: t.found, Err: t.err}
	}
	return out
}

func (b *Batcher[K, V]) enqueue(ctx context.Context, keys []K) []*thunk[V] {
	var ready []*batch[K, V]
	thunks := make([]*thunk[V], len(keys))

	b.mu.Lock()
	for i, key := range keys {
		cur := b.cur
		if cur == nil {
			cur = &batch[K, V]{
				ctx:     ctx,
				pending: make(map[K]*thunk[V]),
			}
			cur.timer = time.AfterFunc(b.window, func() { b.drainScheduled(cur) })
			b.cur = cur
		}

		if t, ok := cur.pending[key]; ok {
			thunks[i] = t
			continue
		}

		t := &thunk[V]{done: make(chan struct{})}
		cur.pending[key] = t
		cur.keys = append(cur.keys, key)
		thunks[i] = t

		if len(cur.keys) >= b.maxBatch {
			cur.timer.Stop()
			cur.drained = true
			b.cur = nil
			ready = append(ready, cur)
		}
	}
	b.mu.Unlock()

	for _, full := range ready {
		go b.run(full)
	}
	return thunks
}

func (b *Batcher[K, V]) drainScheduled(cur *batch[K, V]) {
	b.mu.Lock()
	if cur.drained {
		b.mu.Unlock()
		return
	}
	cur.drained = true
	if b.cur == cur {
		b.cur = nil
	}
	b.mu.Unlock()

	b.run(cur)
}

func (b *Batcher[K, V]) run(cur *batch[K, V]) {
	start := time.Now()
	results, err := b.fetch(context.WithoutCancel(cur.ctx), cur.keys)

	if err != nil {
		b.log.Debug("batch failed",
			zap.Int("keys", len(cur.keys)),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
	} else {
		b.log.Debug("batch drained",
			zap.Int("keys", len(cur.keys)),
			zap.Int("matched", len(results)),
			zap.Duration("took", time.Since(start)))
	}

	for key, t := range cur.pending {
		if err != nil {
			t.err = err
		} else if v, ok := results[key]; ok {
			t.value = v
			t.found = true
		}
		close(t.done)
	}
}
