// Package cache provides the storage adapter contract and the bundled adapter
// implementations for document caching.
//
// # Overview
//
// This package exports one main interface and two implementations:
//
//   - Adapter: A byte-oriented key/value store with per-entry TTLs
//   - NewAdapter: An in-process adapter backed by sturdyc's sharded LRU
//   - NewRedisAdapter: A Redis-backed adapter for sharing a cache across processes
//
// Adapters store opaque byte slices. Everything above the adapter, including
// entry encoding, expiry validation, and negative caching, is handled by the
// documentcache package, so an adapter only needs honest Get/Set/Delete
// semantics to participate.
//
// # Basic Usage
//
// The in-process adapter is constructed from a Config:
//
//	adapter, err := cache.NewAdapter(cache.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//
// For a shared cache, wrap an existing Redis client:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	adapter, err := cache.NewRedisAdapter(client)
//
// Either value is then passed to documentcache.WithCache.
//
// # Adapter Contract
//
// Implementations must follow three rules:
//
//   - Get reports a missing key as ok=false with a nil error. Errors are
//     reserved for transport or backend failures.
//   - Set with ttl <= 0 stores the entry without expiry. A positive ttl is a
//     physical upper bound; the caller may embed a shorter logical expiry
//     inside the value.
//   - Delete on an absent key succeeds.
//
// Adapters that can remove keys in bulk should also implement PrefixDeleter;
// cache flushes use it when present and fall back to per-key deletes
// otherwise.
//
// # Choosing a TTL
//
// Config.TTL is the physical lifetime ceiling for the in-process adapter.
// Individual lookups may request shorter lifetimes, which are enforced
// logically by the caller. Requests for a longer lifetime are capped at the
// configured ceiling, so size Config.TTL to the longest lifetime any lookup
// will ask for.
//
// # See Also
//
// For complete usage examples with cached collections, see the documentcache
// package. For the in-process implementation details, see internal/cacheinfra.
package cache
