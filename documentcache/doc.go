// Package documentcache provides a read-through caching and request-batching
// facade for MongoDB-style document collections.
//
// # Overview
//
// This package implements a collection-level facade that sits in front of a
// document store's query interface. Concurrent lookups that arrive within a
// short scheduling window are coalesced into single store queries: individual
// id lookups merge into one $in query, filtered queries merge into one $or
// query partitioned back per filter client-side. Outcomes, including explicit
// not-found results, are cached per call when the caller supplies a TTL.
//
// # Key Features
//
//   - **Request batching**: Concurrent FindOneByID calls within one window
//     share a single $in query; concurrent FindManyByQuery calls share a
//     single $or query
//   - **Type-safe records**: Uses Go generics; the store's raw documents are
//     decoded into the caller's struct type
//   - **Per-call freshness**: TTL is a call option, not a collection setting;
//     calls without a TTL never touch the cache
//   - **Negative caching**: A store-confirmed absence is cached as an explicit
//     sentinel entry, distinct from a cache miss
//   - **Fenced invalidation**: DeleteFromCache bumps a per-key generation, so
//     a fetch already in flight cannot re-install the invalidated value
//   - **Pluggable storage**: Any cache.Adapter works; in-process and Redis
//     adapters ship with the module
//
// # Basic Usage
//
// Create a collection facade over a mongo driver collection:
//
//	articles, err := documentcache.NewMongo[Article](db.Collection("articles"))
//	if err != nil {
//		return err
//	}
//	defer articles.Close()
//
//	// Cached for a minute; concurrent callers share one store query.
//	article, err := articles.FindOneByID(ctx, id, documentcache.WithTTL(time.Minute))
//
//	// Positional batch: one slot per id, nil for absent or malformed ids.
//	docs, err := articles.FindManyByIDs(ctx, []any{idA, idB, idA})
//
//	// Filtered lookup; structurally equal filters share one cache entry.
//	active, err := articles.FindManyByQuery(ctx,
//		bson.M{"status": "active"}, documentcache.WithTTL(30*time.Second))
//
// # Identifier Outcomes
//
// Id lookups distinguish three outcomes:
//
//   - Malformed id (nil, wrong length, non-hex, wrong type): ErrInvalidID
//     from FindOneByID, a nil slot from FindManyByIDs. No cache or store IO
//     happens.
//   - Well-formed id with no record: ErrNotFound after at most one batched
//     store query; with a TTL the negative outcome is cached.
//   - Found: the decoded record.
//
// # Caching Behavior
//
// Each lookup with a TTL follows the same sequence:
//
//  1. Snapshot the key's invalidation generation
//  2. Probe the cache; serve a valid hit (positive or negative)
//  3. On a miss, join the current batch window and await the shared query
//  4. Write the outcome back unless the generation moved during the fetch
//
// Entries are stored as versioned envelopes carrying the generation and a
// logical expiry, so per-call TTLs hold exactly even on backends with coarse
// physical expiry. Corrupt, stale, or expired entries are deleted on read
// and treated as misses.
//
// # Invalidation
//
// DeleteFromCache takes a selector, either an id or a filter, and derives
// the exact key the matching load would use. The invalidation does not
// depend on the backend delete succeeding: a failed delete leaves the
// key's generation fence pinned until the stale entry is confirmed gone.
// FlushCache clears the whole collection namespace but must be enabled
// with WithFlushEnabled; disabled flushes report (false, nil) and touch
// nothing.
//
// # Integration with Dependency Injection
//
// Applications wiring several collections against one shared adapter can use
// the container in pkg/di:
//
//	container, err := di.NewContainerWithDefaults()
//	if err != nil {
//		return err
//	}
//	articles, err := di.NewCollection[Article](container, querier, "articles")
//
// # Error Handling
//
// Store errors are wrapped and propagated to every caller merged into the
// failing window. Cache adapter errors never fail a lookup: reads degrade to
// misses, writes are skipped, and both are logged at warn level.
//
// # See Also
//
// For adapter configuration see the cache package. For payload encodings see
// the codec package. For construction glue see pkg/di.
package documentcache
