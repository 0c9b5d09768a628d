package documentcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-document-cache/cache"
	"github.com/goliatone/go-document-cache/codec"
	"github.com/goliatone/go-document-cache/internal/bsonq"
	"github.com/goliatone/go-document-cache/internal/genstore"
	"github.com/goliatone/go-document-cache/internal/loader"
	"github.com/goliatone/go-document-cache/internal/wire"
)

// probeLimit bounds concurrent cache probes in FindManyByIDs.
const probeLimit = 16

// Collection is the caching and batching facade over one named collection.
// Lookups issued within a scheduling window are coalesced into single store
// queries; outcomes are cached per call when the caller supplies a TTL.
// All methods are safe for concurrent use.
type Collection[T any] struct {
	querier Querier
	name    string

	adapter cache.Adapter
	keys    KeyCodec
	payload codec.Codec
	log     *zap.Logger

	flushEnabled bool

	gens    *genstore.Table
	ids     *loader.Batcher[primitive.ObjectID, bson.Raw]
	queries *loader.Batcher[string, []bson.Raw]

	// written tracks every key this instance stored: the flush fallback
	// for adapters without prefix deletes, and the fence sweep on flush.
	written *xsync.MapOf[string, struct{}]
}

// New builds a Collection over an arbitrary Querier. The collection name
// scopes every cache key; an empty name or nil querier is a construction
// error.
func New[T any](q Querier, collection string, opts ...Option) (*Collection[T], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(collection, q); err != nil {
		return nil, fmt.Errorf("documentcache: %w", err)
	}
	if o.payload == nil {
		o.payload = codec.BSON{}
	}

	logger := o.logger
	if logger == nil {
		if o.debug {
			logger, _ = zap.NewDevelopment()
		} else {
			logger = zap.NewNop()
		}
	}
	logger = logger.With(zap.String("collection", collection))

	adapter := o.adapter
	if adapter == nil {
		a, err := cache.NewAdapter(cache.DefaultConfig())
		if err != nil {
			return nil, err
		}
		adapter = a
	}

	keys := o.keyCodec
	if keys == nil {
		keys = newJoinCodec(o.namespace, o.hashedQueryKeys)
	}

	c := &Collection[T]{
		querier:      q,
		name:         collection,
		adapter:      adapter,
		keys:         keys,
		payload:      o.payload,
		log:          logger,
		flushEnabled: o.flushEnabled,
		gens:         genstore.New(o.genRetention, 0),
		written:      xsync.NewMapOf[string, struct{}](),
	}

	loaderOpts := loader.Options{Window: o.batchWindow, MaxBatch: o.maxBatch, Logger: logger}
	c.ids = loader.New(c.fetchIDSet, loaderOpts)
	c.queries = loader.New(c.fetchFilters, loaderOpts)
	return c, nil
}

// NewMongo builds a Collection directly over a driver collection, using its
// name for key scoping.
func NewMongo[T any](coll *mongo.Collection, opts ...Option) (*Collection[T], error) {
	if coll == nil {
		return nil, errors.New("documentcache: nil mongo collection")
	}
	return New[T](NewMongoQuerier(coll), coll.Name(), opts...)
}

// Close stops the background generation janitor. The cache adapter is not
// closed; its creator owns that lifecycle.
func (c *Collection[T]) Close() error {
	c.gens.Close()
	return nil
}

// Name returns the collection name the facade was built for.
func (c *Collection[T]) Name() string {
	return c.name
}

// FindOneByID resolves a single record by identifier.
//
// A malformed id returns ErrInvalidID without touching the cache or the
// store. A well-formed id with no matching record returns ErrNotFound; with
// a TTL that outcome is cached as an explicit negative entry, so repeats
// stay off the store until it expires. Concurrent lookups inside one batch
// window share a single store query.
func (c *Collection[T]) FindOneByID(ctx context.Context, id any, opts ...CallOption) (*T, error) {
	oid, ok := canonicalID(id)
	if !ok {
		return nil, ErrInvalidID
	}

	call := applyCallOptions(opts)
	key := c.keys.IDKey(c.name, oid)
	gen := c.gens.Snapshot(key)

	if call.ttl > 0 {
		if rec, negative, hit := c.readRecord(ctx, key, gen); hit {
			if negative {
				return nil, ErrNotFound
			}
			return rec, nil
		}
	}

	raw, found, err := c.ids.Load(ctx, oid)
	if err != nil {
		return nil, err
	}
	if !found {
		if call.ttl > 0 {
			c.writeNegative(ctx, key, gen, call.ttl)
		}
		return nil, ErrNotFound
	}

	rec := new(T)
	if err := bson.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("documentcache: decode record: %w", err)
	}
	if call.ttl > 0 {
		c.writeRecord(ctx, key, gen, rec, call.ttl)
	}
	return rec, nil
}

// FindManyByIDs resolves a batch of identifier candidates positionally:
// the result always has one slot per input id, in input order. Malformed
// ids and store-confirmed absences yield nil slots; duplicate ids resolve
// to the same decoded pointer. Cache misses for the whole call drain in
// one batch window, so N ids cost at most one store query. A store failure
// fails the entire call.
func (c *Collection[T]) FindManyByIDs(ctx context.Context, ids []any, opts ...CallOption) ([]*T, error) {
	results := make([]*T, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	call := applyCallOptions(opts)

	oids := make([]primitive.ObjectID, len(ids))
	valid := make([]bool, len(ids))
	var distinct []primitive.ObjectID
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	for i, candidate := range ids {
		oid, ok := canonicalID(candidate)
		if !ok {
			continue
		}
		oids[i], valid[i] = oid, true
		if _, dup := seen[oid]; !dup {
			seen[oid] = struct{}{}
			distinct = append(distinct, oid)
		}
	}
	if len(distinct) == 0 {
		return results, nil
	}

	keys := make(map[primitive.ObjectID]string, len(distinct))
	gens := make(map[primitive.ObjectID]uint64, len(distinct))
	for _, oid := range distinct {
		key := c.keys.IDKey(c.name, oid)
		keys[oid] = key
		gens[oid] = c.gens.Snapshot(key)
	}

	recs := make(map[primitive.ObjectID]*T, len(distinct))
	settled := make(map[primitive.ObjectID]struct{}, len(distinct))

	if call.ttl > 0 {
		var mu sync.Mutex
		var g errgroup.Group
		g.SetLimit(probeLimit)
		for _, oid := range distinct {
			g.Go(func() error {
				rec, negative, hit := c.readRecord(ctx, keys[oid], gens[oid])
				if !hit {
					return nil
				}
				mu.Lock()
				settled[oid] = struct{}{}
				if !negative {
					recs[oid] = rec
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	var misses []primitive.ObjectID
	for _, oid := range distinct {
		if _, ok := settled[oid]; !ok {
			misses = append(misses, oid)
		}
	}

	if len(misses) > 0 {
		for i, res := range c.ids.LoadMany(ctx, misses) {
			oid := misses[i]
			if res.Err != nil {
				return nil, res.Err
			}
			if !res.Found {
				if call.ttl > 0 {
					c.writeNegative(ctx, keys[oid], gens[oid], call.ttl)
				}
				continue
			}
			rec := new(T)
			if err := bson.Unmarshal(res.Value, rec); err != nil {
				return nil, fmt.Errorf("documentcache: decode record: %w", err)
			}
			recs[oid] = rec
			if call.ttl > 0 {
				c.writeRecord(ctx, keys[oid], gens[oid], rec, call.ttl)
			}
		}
	}

	for i := range ids {
		if valid[i] {
			results[i] = recs[oids[i]]
		}
	}
	return results, nil
}

// FindManyByQuery resolves every record matching filter, in store-return
// order. Filters are canonicalized first, so structurally equal filters
// share one cache entry and one batch slot regardless of key order.
// Concurrent queries inside one window merge into a single $or store query
// and are partitioned back per filter client-side; that partitioning
// limits filters to the operators $eq, $ne, $gt, $gte, $lt, $lte, $in,
// $nin and $exists, plus $and, $or and $nor composition. Anything else
// returns ErrInvalidFilter before the filter joins a window. An empty
// result is a valid, cacheable outcome.
func (c *Collection[T]) FindManyByQuery(ctx context.Context, filter any, opts ...CallOption) ([]*T, error) {
	normalized, err := bsonq.Normalize(filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	if err := bsonq.ValidateOperators(normalized); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	canonical, err := bsonq.Canonical(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}

	call := applyCallOptions(opts)
	key := c.keys.QueryKey(c.name, canonical)
	gen := c.gens.Snapshot(key)

	if call.ttl > 0 {
		if recs, hit := c.readList(ctx, key, gen); hit {
			return recs, nil
		}
	}

	raws, _, err := c.queries.Load(ctx, canonical)
	if err != nil {
		return nil, err
	}

	recs := make([]*T, 0, len(raws))
	for _, raw := range raws {
		rec := new(T)
		if err := bson.Unmarshal(raw, rec); err != nil {
			return nil, fmt.Errorf("documentcache: decode record: %w", err)
		}
		recs = append(recs, rec)
	}
	if call.ttl > 0 {
		c.writeList(ctx, key, gen, recs, call.ttl)
	}
	return recs, nil
}

// DeleteFromCache invalidates the entry a matching load would consult. The
// selector is either an identifier (anything canonicalID accepts) or a
// filter (anything FindManyByQuery accepts); anything else returns
// ErrInvalidSelector.
//
// The key's generation is bumped before the adapter delete, so a fetch
// already in flight for the key cannot re-install its pre-delete result:
// loads issued after DeleteFromCache returns always reach the store. An
// adapter delete failure is logged and absorbed; the bumped generation is
// then pinned past its normal retention until a later delete or overwrite
// confirms the stale entry is gone.
func (c *Collection[T]) DeleteFromCache(ctx context.Context, selector any) error {
	key, err := c.selectorKey(selector)
	if err != nil {
		return err
	}

	c.gens.Bump(key)
	c.gens.Pin(key)
	if err := c.adapter.Delete(ctx, key); err != nil {
		c.log.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	} else {
		c.gens.Unpin(key)
	}
	c.written.Delete(key)
	return nil
}

// FlushCache clears every cached entry of this collection. Flushing is
// opt-in via WithFlushEnabled; while disabled the call reports
// (false, nil) and leaves all entries intact. Adapters implementing
// PrefixDeleter are flushed by prefix, others by replaying the keys this
// instance wrote.
func (c *Collection[T]) FlushCache(ctx context.Context) (bool, error) {
	if !c.flushEnabled {
		return false, nil
	}

	// Fence fetches already in flight for keys this instance wrote. Each
	// fence stays pinned until the delete below confirms the entry is gone.
	c.written.Range(func(key string, _ struct{}) bool {
		c.gens.Bump(key)
		c.gens.Pin(key)
		return true
	})

	if pd, ok := c.adapter.(cache.PrefixDeleter); ok {
		if err := pd.DeleteByPrefix(ctx, c.keys.CollectionPrefix(c.name)); err != nil {
			return false, fmt.Errorf("documentcache: flush %s: %w", c.name, err)
		}
		c.written.Range(func(key string, _ struct{}) bool {
			c.gens.Unpin(key)
			return true
		})
		c.written.Clear()
		c.log.Debug("cache flushed")
		return true, nil
	}

	var flushErr error
	c.written.Range(func(key string, _ struct{}) bool {
		if err := c.adapter.Delete(ctx, key); err != nil {
			flushErr = fmt.Errorf("documentcache: flush %s: %w", c.name, err)
			return false
		}
		c.gens.Unpin(key)
		c.written.Delete(key)
		return true
	})
	if flushErr != nil {
		return false, flushErr
	}
	c.log.Debug("cache flushed")
	return true, nil
}

// fetchIDSet resolves one drained id window with a single store query.
func (c *Collection[T]) fetchIDSet(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bson.Raw, error) {
	docs, err := c.querier.FindIDSet(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("documentcache: find ids in %s: %w", c.name, err)
	}

	out := make(map[primitive.ObjectID]bson.Raw, len(docs))
	for _, doc := range docs {
		id, ok := bsonq.RawID(doc)
		if !ok {
			c.log.Warn("store document without ObjectID _id", zap.Int("bytes", len(doc)))
			continue
		}
		out[id] = doc
	}
	return out, nil
}

// fetchFilters resolves one drained query window: a single $or union query,
// partitioned back per filter by re-matching every returned document. A
// document matching several merged filters appears in each partition; a
// filter matching nothing gets an empty, non-nil partition.
func (c *Collection[T]) fetchFilters(ctx context.Context, canonicals []string) (map[string][]bson.Raw, error) {
	filters := make([]bson.D, len(canonicals))
	for i, canonical := range canonicals {
		f, err := bsonq.ParseCanonical(canonical)
		if err != nil {
			return nil, fmt.Errorf("documentcache: reparse filter: %w", err)
		}
		filters[i] = f
	}

	docs, err := c.querier.Find(ctx, bsonq.Union(filters))
	if err != nil {
		return nil, fmt.Errorf("documentcache: find in %s: %w", c.name, err)
	}

	decoded := make([]bson.D, len(docs))
	for i, raw := range docs {
		if err := bson.Unmarshal(raw, &decoded[i]); err != nil {
			return nil, fmt.Errorf("documentcache: decode document: %w", err)
		}
	}

	out := make(map[string][]bson.Raw, len(canonicals))
	for i, canonical := range canonicals {
		matched := make([]bson.Raw, 0, len(docs))
		for j, doc := range decoded {
			ok, err := bsonq.Match(doc, filters[i])
			if err != nil {
				return nil, fmt.Errorf("documentcache: partition filter: %w", err)
			}
			if ok {
				matched = append(matched, docs[j])
			}
		}
		out[canonical] = matched
	}
	return out, nil
}

func (c *Collection[T]) selectorKey(selector any) (string, error) {
	if oid, ok := canonicalID(selector); ok {
		return c.keys.IDKey(c.name, oid), nil
	}

	normalized, err := bsonq.Normalize(selector)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSelector, err)
	}
	canonical, err := bsonq.Canonical(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSelector, err)
	}
	return c.keys.QueryKey(c.name, canonical), nil
}

// loadEntry fetches and validates the envelope under key. Adapter errors
// degrade to misses; corrupt, stale, or logically expired entries are
// self-heal deleted and reported as misses.
func (c *Collection[T]) loadEntry(ctx context.Context, key string, gen uint64) (wire.Entry, bool) {
	buf, ok, err := c.adapter.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return wire.Entry{}, false
	}
	if !ok {
		return wire.Entry{}, false
	}

	entry, err := wire.Decode(buf)
	if err != nil {
		c.log.Warn("corrupt cache entry", zap.String("key", key), zap.Error(err))
		c.discard(ctx, key)
		return wire.Entry{}, false
	}
	if entry.Gen != gen || expired(entry.ExpiresAt) {
		c.log.Debug("stale cache entry",
			zap.String("key", key),
			zap.Uint64("entryGen", entry.Gen),
			zap.Uint64("gen", gen))
		c.discard(ctx, key)
		return wire.Entry{}, false
	}
	return entry, true
}

func (c *Collection[T]) readRecord(ctx context.Context, key string, gen uint64) (rec *T, negative, hit bool) {
	entry, ok := c.loadEntry(ctx, key, gen)
	if !ok {
		return nil, false, false
	}

	switch entry.Kind {
	case wire.KindNotFound:
		return nil, true, true
	case wire.KindRecord:
		rec := new(T)
		if err := c.payload.Decode(entry.Payload, rec); err != nil {
			c.log.Warn("cache payload decode failed", zap.String("key", key), zap.Error(err))
			c.discard(ctx, key)
			return nil, false, false
		}
		return rec, false, true
	default:
		// A list entry under a record key means the key schemes collided.
		c.discard(ctx, key)
		return nil, false, false
	}
}

func (c *Collection[T]) readList(ctx context.Context, key string, gen uint64) ([]*T, bool) {
	entry, ok := c.loadEntry(ctx, key, gen)
	if !ok {
		return nil, false
	}
	if entry.Kind != wire.KindList {
		c.discard(ctx, key)
		return nil, false
	}

	recs := make([]*T, 0, len(entry.Items))
	for _, item := range entry.Items {
		rec := new(T)
		if err := c.payload.Decode(item, rec); err != nil {
			c.log.Warn("cache payload decode failed", zap.String("key", key), zap.Error(err))
			c.discard(ctx, key)
			return nil, false
		}
		recs = append(recs, rec)
	}
	return recs, true
}

func (c *Collection[T]) writeRecord(ctx context.Context, key string, gen uint64, rec *T, ttl time.Duration) {
	payload, err := c.payload.Encode(rec)
	if err != nil {
		c.log.Warn("cache payload encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	c.store(ctx, key, gen, wire.EncodeRecord(gen, expiry(ttl), payload), ttl)
}

func (c *Collection[T]) writeNegative(ctx context.Context, key string, gen uint64, ttl time.Duration) {
	c.store(ctx, key, gen, wire.EncodeNotFound(gen, expiry(ttl)), ttl)
}

func (c *Collection[T]) writeList(ctx context.Context, key string, gen uint64, recs []*T, ttl time.Duration) {
	items := make([][]byte, len(recs))
	for i, rec := range recs {
		payload, err := c.payload.Encode(rec)
		if err != nil {
			c.log.Warn("cache payload encode failed", zap.String("key", key), zap.Error(err))
			return
		}
		items[i] = payload
	}
	c.store(ctx, key, gen, wire.EncodeList(gen, expiry(ttl), items), ttl)
}

// store is generation fenced: when the key was invalidated after gen was
// snapshotted the write is dropped, so a delete racing a fetch wins. A
// successful write at the current generation overwrites whatever stale
// entry a failed delete left behind, so it also releases the key's pin.
// The fence is rechecked after the Set; a write that slipped past it is
// removed again here, before it can outlive its generation entry.
func (c *Collection[T]) store(ctx context.Context, key string, gen uint64, buf []byte, ttl time.Duration) {
	if c.gens.Snapshot(key) != gen {
		c.log.Debug("fenced cache write", zap.String("key", key))
		return
	}
	if err := c.adapter.Set(ctx, key, buf, ttl); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	c.gens.Unpin(key)
	if c.gens.Snapshot(key) != gen {
		c.discard(ctx, key)
		return
	}
	c.written.Store(key, struct{}{})
}

// discard removes an entry that failed validation. A failed delete pins
// the key's generation so the fence cannot age out while the stale entry
// is still physically present.
func (c *Collection[T]) discard(ctx context.Context, key string) {
	if err := c.adapter.Delete(ctx, key); err != nil {
		c.gens.Pin(key)
		c.log.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
		return
	}
	c.gens.Unpin(key)
}

func expired(at int64) bool {
	return at != 0 && at <= time.Now().UnixNano()
}

func expiry(ttl time.Duration) int64 {
	return time.Now().Add(ttl).UnixNano()
}
