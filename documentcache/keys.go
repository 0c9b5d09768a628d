package documentcache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// KeyCodec builds the cache keys a collection stores entries under. The
// three key shapes never collide: an id discriminator is 24 hex characters,
// a plain query discriminator starts with "{", and a hashed query
// discriminator is "q" followed by 16 hex characters.
//
// Structurally equal filters that differ only in key order share one
// canonical serialization and therefore one key; array element order stays
// significant.
type KeyCodec interface {
	// IDKey returns the key for a single-record entry.
	IDKey(collection string, id primitive.ObjectID) string
	// QueryKey returns the key for a filtered-query entry. canonicalFilter
	// is the canonical serialization of the normalized filter.
	QueryKey(collection, canonicalFilter string) string
	// CollectionPrefix returns the prefix every key of the collection
	// shares, used for whole-collection flushes.
	CollectionPrefix(collection string) string
}

// joinCodec is the default codec: "<namespace>:<collection>:<discriminator>".
// With hashedQueries set, query discriminators collapse to a fixed-width
// xxhash digest, bounding key length for large filters at the cost of
// human-readable keys.
type joinCodec struct {
	namespace     string
	hashedQueries bool
}

func newJoinCodec(namespace string, hashedQueries bool) joinCodec {
	return joinCodec{namespace: namespace, hashedQueries: hashedQueries}
}

func (c joinCodec) CollectionPrefix(collection string) string {
	return c.namespace + ":" + collection + ":"
}

func (c joinCodec) IDKey(collection string, id primitive.ObjectID) string {
	return c.CollectionPrefix(collection) + id.Hex()
}

func (c joinCodec) QueryKey(collection, canonicalFilter string) string {
	if c.hashedQueries {
		return c.CollectionPrefix(collection) + fmt.Sprintf("q%016x", xxhash.Sum64String(canonicalFilter))
	}
	return c.CollectionPrefix(collection) + canonicalFilter
}
