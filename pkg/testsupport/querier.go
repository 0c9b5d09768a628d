// Package testsupport provides the shared fakes and builders the package
// tests are written against: an in-memory document store, a call-counting
// cache adapter, and deterministic identifier builders.
package testsupport

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/goliatone/go-document-cache/internal/bsonq"
)

// MemoryQuerier is an in-memory document store. Documents are returned in
// insertion order, filters are evaluated against every stored document, and
// every call is recorded so tests can assert how many physical queries a
// scenario produced.
type MemoryQuerier struct {
	mu         sync.Mutex
	docs       []bson.Raw
	byID       map[primitive.ObjectID]int
	idSetCalls [][]primitive.ObjectID
	findCalls  []bson.D
	failWith   error
}

// NewMemoryQuerier returns an empty store.
func NewMemoryQuerier() *MemoryQuerier {
	return &MemoryQuerier{byID: make(map[primitive.ObjectID]int)}
}

// Add marshals doc, assigns a fresh _id when it has none, and stores it.
func (q *MemoryQuerier) Add(doc any) (primitive.ObjectID, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("marshal document: %w", err)
	}

	id, ok := bsonq.RawID(bson.Raw(raw))
	if !ok {
		id = primitive.NewObjectID()
		var d bson.D
		if err := bson.Unmarshal(raw, &d); err != nil {
			return primitive.NilObjectID, fmt.Errorf("unmarshal document: %w", err)
		}
		d = append(bson.D{{Key: "_id", Value: id}}, d...)
		if raw, err = bson.Marshal(d); err != nil {
			return primitive.NilObjectID, fmt.Errorf("remarshal document: %w", err)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.byID[id] = len(q.docs)
	q.docs = append(q.docs, raw)
	return id, nil
}

// MustAdd is Add for tests; failures stop the test.
func (q *MemoryQuerier) MustAdd(t *testing.T, doc any) primitive.ObjectID {
	t.Helper()

	id, err := q.Add(doc)
	if err != nil {
		t.Fatalf("failed to add document: %v", err)
	}
	return id
}

// FindIDSet returns the stored documents whose _id is in ids, in insertion
// order. Missing ids are simply absent.
func (q *MemoryQuerier) FindIDSet(ctx context.Context, ids []primitive.ObjectID) ([]bson.Raw, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.idSetCalls = append(q.idSetCalls, append([]primitive.ObjectID(nil), ids...))
	if q.failWith != nil {
		return nil, q.failWith
	}

	want := make(map[primitive.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	var out []bson.Raw
	for _, raw := range q.docs {
		if id, ok := bsonq.RawID(raw); ok {
			if _, hit := want[id]; hit {
				out = append(out, raw)
			}
		}
	}
	return out, nil
}

// Find returns every stored document matching filter, in insertion order.
func (q *MemoryQuerier) Find(ctx context.Context, filter bson.D) ([]bson.Raw, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.findCalls = append(q.findCalls, filter)
	if q.failWith != nil {
		return nil, q.failWith
	}

	var out []bson.Raw
	for _, raw := range q.docs {
		var doc bson.D
		if err := bson.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal stored document: %w", err)
		}
		ok, err := bsonq.Match(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, raw)
		}
	}
	return out, nil
}

// FailWith makes every subsequent query fail with err; nil restores normal
// operation.
func (q *MemoryQuerier) FailWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failWith = err
}

// IDSetCalls returns a copy of every FindIDSet invocation's id list.
func (q *MemoryQuerier) IDSetCalls() [][]primitive.ObjectID {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]primitive.ObjectID, len(q.idSetCalls))
	copy(out, q.idSetCalls)
	return out
}

// FindCalls returns a copy of every Find invocation's filter.
func (q *MemoryQuerier) FindCalls() []bson.D {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]bson.D, len(q.findCalls))
	copy(out, q.findCalls)
	return out
}

// QueryCount returns the total number of store queries issued.
func (q *MemoryQuerier) QueryCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.idSetCalls) + len(q.findCalls)
}
