package documentcache

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Querier is the read surface the engine needs from a document store.
// Implementations must be safe for concurrent use; batch drains call them
// from multiple goroutines.
type Querier interface {
	// FindIDSet returns the records whose _id is in ids. Missing ids are
	// simply absent from the result, never an error. The result order is
	// unspecified.
	FindIDSet(ctx context.Context, ids []primitive.ObjectID) ([]bson.Raw, error)

	// Find returns every record matching filter in store-return order.
	// For a compound ($or) filter the store gives no indication of which
	// disjunct matched; partitioning happens client-side.
	Find(ctx context.Context, filter bson.D) ([]bson.Raw, error)
}

// MongoQuerier adapts a mongo.Collection to the Querier interface.
type MongoQuerier struct {
	coll *mongo.Collection
}

var _ Querier = (*MongoQuerier)(nil)

// NewMongoQuerier wraps a driver collection. The caller owns the client
// lifecycle.
func NewMongoQuerier(coll *mongo.Collection) *MongoQuerier {
	return &MongoQuerier{coll: coll}
}

// FindIDSet issues one $in query covering the id set.
func (q *MongoQuerier) FindIDSet(ctx context.Context, ids []primitive.ObjectID) ([]bson.Raw, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return q.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
}

// Find runs the filter and drains the cursor fully.
func (q *MongoQuerier) Find(ctx context.Context, filter bson.D) ([]bson.Raw, error) {
	cursor, err := q.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.coll.Name(), err)
	}

	var docs []bson.Raw
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("drain cursor %s: %w", q.coll.Name(), err)
	}
	return docs, nil
}
