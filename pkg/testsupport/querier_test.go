package testsupport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMemoryQuerierAddAssignsID(t *testing.T) {
	store := NewMemoryQuerier()

	id := store.MustAdd(t, bson.M{"name": "no id"})
	if id.IsZero() {
		t.Fatal("expected a generated id, got the zero ObjectID")
	}

	docs, err := store.FindIDSet(context.Background(), []primitive.ObjectID{id})
	if err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
}

func TestMemoryQuerierPreservesExplicitID(t *testing.T) {
	store := NewMemoryQuerier()
	want := OID(0x42)

	got := store.MustAdd(t, bson.D{{Key: "_id", Value: want}, {Key: "name", Value: "explicit"}})
	if got != want {
		t.Errorf("expected id %s to be preserved, got %s", want.Hex(), got.Hex())
	}
}

func TestMemoryQuerierFindIDSetInsertionOrder(t *testing.T) {
	store := NewMemoryQuerier()
	first := store.MustAdd(t, bson.M{"name": "first"})
	store.MustAdd(t, bson.M{"name": "second"})
	third := store.MustAdd(t, bson.M{"name": "third"})

	// Request in reverse order; results come back in insertion order.
	docs, err := store.FindIDSet(context.Background(), []primitive.ObjectID{third, first})
	if err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if got := docs[0].Lookup("name").StringValue(); got != "first" {
		t.Errorf("expected first stored document first, got %q", got)
	}
	if got := docs[1].Lookup("name").StringValue(); got != "third" {
		t.Errorf("expected third stored document second, got %q", got)
	}

	// Missing ids are simply absent.
	docs, err = store.FindIDSet(context.Background(), []primitive.ObjectID{OID(0xFF)})
	if err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no documents for an absent id, got %d", len(docs))
	}
}

func TestMemoryQuerierFind(t *testing.T) {
	store := NewMemoryQuerier()
	store.MustAdd(t, bson.M{"name": "a", "status": "active"})
	store.MustAdd(t, bson.M{"name": "b", "status": "idle"})
	store.MustAdd(t, bson.M{"name": "c", "status": "active"})

	docs, err := store.Find(context.Background(), bson.D{{Key: "status", Value: "active"}})
	if err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(docs))
	}
	if got := docs[0].Lookup("name").StringValue(); got != "a" {
		t.Errorf("expected match a first, got %q", got)
	}
	if got := docs[1].Lookup("name").StringValue(); got != "c" {
		t.Errorf("expected match c second, got %q", got)
	}
}

func TestMemoryQuerierRecordsCalls(t *testing.T) {
	store := NewMemoryQuerier()
	id := store.MustAdd(t, bson.M{"name": "tracked"})
	ctx := context.Background()

	if _, err := store.FindIDSet(ctx, []primitive.ObjectID{id}); err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}
	filter := bson.D{{Key: "name", Value: "tracked"}}
	if _, err := store.Find(ctx, filter); err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}

	idCalls := store.IDSetCalls()
	if len(idCalls) != 1 || len(idCalls[0]) != 1 || idCalls[0][0] != id {
		t.Errorf("unexpected recorded id calls: %v", idCalls)
	}
	findCalls := store.FindCalls()
	if len(findCalls) != 1 {
		t.Errorf("expected 1 recorded filter, got %d", len(findCalls))
	}
	if got := store.QueryCount(); got != 2 {
		t.Errorf("expected 2 queries total, got %d", got)
	}
}

func TestMemoryQuerierFailWith(t *testing.T) {
	store := NewMemoryQuerier()
	id := store.MustAdd(t, bson.M{"name": "flaky"})
	ctx := context.Background()

	storeErr := errors.New("store down")
	store.FailWith(storeErr)

	if _, err := store.FindIDSet(ctx, []primitive.ObjectID{id}); !errors.Is(err, storeErr) {
		t.Errorf("expected injected error from FindIDSet, got %v", err)
	}
	if _, err := store.Find(ctx, bson.D{{Key: "name", Value: "flaky"}}); !errors.Is(err, storeErr) {
		t.Errorf("expected injected error from Find, got %v", err)
	}

	// Failing calls are still recorded.
	if got := store.QueryCount(); got != 2 {
		t.Errorf("expected failing queries to be counted, got %d", got)
	}

	store.FailWith(nil)
	if _, err := store.FindIDSet(ctx, []primitive.ObjectID{id}); err != nil {
		t.Errorf("expected recovery after FailWith(nil), got %v", err)
	}
}

func TestSpyAdapterRoundtrip(t *testing.T) {
	spy := NewSpyAdapter()
	ctx := context.Background()

	if _, ok, err := spy.Get(ctx, "missing"); ok || err != nil {
		t.Errorf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	value := []byte("payload")
	if err := spy.Set(ctx, "key", value, time.Minute); err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}

	got, ok, err := spy.Get(ctx, "key")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, value) {
		t.Errorf("expected %q, got %q", value, got)
	}

	// Returned bytes are copies; mutating them must not reach the store.
	got[0] = 'X'
	again, _, _ := spy.Get(ctx, "key")
	if !bytes.Equal(again, value) {
		t.Errorf("expected stored value to be unaffected, got %q", again)
	}

	if err := spy.Delete(ctx, "key"); err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}
	if _, ok, _ := spy.Get(ctx, "key"); ok {
		t.Error("expected miss after delete")
	}

	if spy.Gets() != 4 || spy.Sets() != 1 || spy.Deletes() != 1 {
		t.Errorf("unexpected counters: %d gets %d sets %d deletes", spy.Gets(), spy.Sets(), spy.Deletes())
	}
}

func TestSpyAdapterFailures(t *testing.T) {
	spy := NewSpyAdapter()
	ctx := context.Background()

	getErr := errors.New("get down")
	setErr := errors.New("set down")
	spy.FailGets(getErr)
	spy.FailSets(setErr)

	if _, _, err := spy.Get(ctx, "key"); !errors.Is(err, getErr) {
		t.Errorf("expected injected get error, got %v", err)
	}
	if err := spy.Set(ctx, "key", []byte("v"), 0); !errors.Is(err, setErr) {
		t.Errorf("expected injected set error, got %v", err)
	}
	if spy.Len() != 0 {
		t.Errorf("expected failing sets to store nothing, got %d entries", spy.Len())
	}

	spy.FailGets(nil)
	spy.FailSets(nil)
	if err := spy.Set(ctx, "key", []byte("v"), 0); err != nil {
		t.Errorf("expected recovery after FailSets(nil), got %v", err)
	}
	if keys := spy.Keys(); len(keys) != 1 || keys[0] != "key" {
		t.Errorf("unexpected keys: %v", keys)
	}

	delErr := errors.New("delete down")
	spy.FailDeletes(delErr)
	if err := spy.Delete(ctx, "key"); !errors.Is(err, delErr) {
		t.Errorf("expected injected delete error, got %v", err)
	}
	if spy.Len() != 1 {
		t.Errorf("expected failing deletes to leave the entry, got %d entries", spy.Len())
	}

	spy.FailDeletes(nil)
	if err := spy.Delete(ctx, "key"); err != nil {
		t.Errorf("expected recovery after FailDeletes(nil), got %v", err)
	}
	if spy.Len() != 0 {
		t.Errorf("expected delete to remove the entry, got %d entries", spy.Len())
	}
}

func TestOIDDeterminism(t *testing.T) {
	if OID(5) != OID(5) {
		t.Error("expected OID to be deterministic for a seed")
	}
	if OID(5) == OID(6) {
		t.Error("expected distinct seeds to produce distinct ids")
	}
	if hex := OIDHex(0xAB); len(hex) != 24 {
		t.Errorf("expected 24-char hex form, got %q", hex)
	}
	if OIDHex(0xAB) != OID(0xAB).Hex() {
		t.Error("expected OIDHex to match OID().Hex()")
	}
}
