package di

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/goliatone/go-document-cache/cache"
	"github.com/goliatone/go-document-cache/documentcache"
	"github.com/goliatone/go-document-cache/pkg/testsupport"
)

// User represents a test model for integration tests
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Name     string             `bson:"name"`
	Email    string             `bson:"email"`
	CreateTs int64              `bson:"create_ts"`
}

// TestEndToEndCachedCollectionFlow tests the complete integration flow
// using the DI container to wire up cached collection operations
func TestEndToEndCachedCollectionFlow(t *testing.T) {
	config := cache.Config{
		Capacity:           100,
		NumShards:          4,
		TTL:                time.Minute,
		EvictionPercentage: 10,
		EvictionInterval:   0,
	}

	container, err := NewContainer(config)
	if err != nil {
		t.Fatalf("Failed to create DI container: %v", err)
	}

	// Create the backing store fake and populate with test data
	store := testsupport.NewMemoryQuerier()
	testUser := User{
		Name:     "Test User",
		Email:    "test@example.com",
		CreateTs: time.Now().Unix(),
	}
	userID := store.MustAdd(t, testUser)

	// Create cached collection using the DI container
	users, err := NewCollection[User](container, store, "users")
	if err != nil {
		t.Fatalf("Failed to create cached collection: %v", err)
	}
	defer users.Close()

	ctx := context.Background()
	ttl := documentcache.WithTTL(30 * time.Second)

	// Test 1: FindOneByID - First call should hit the backing store
	user1, err := users.FindOneByID(ctx, userID, ttl)
	if err != nil {
		t.Fatalf("First FindOneByID failed: %v", err)
	}

	if user1.Name != testUser.Name || user1.Email != testUser.Email {
		t.Errorf("First FindOneByID returned incorrect user: got %+v, expected %+v", user1, testUser)
	}

	// Verify the backing store was called
	if calls := len(store.IDSetCalls()); calls != 1 {
		t.Errorf("Expected backing store to be queried once, got %d queries", calls)
	}

	// Test 2: FindOneByID again - Should be served from cache (same call count)
	user2, err := users.FindOneByID(ctx, userID, ttl)
	if err != nil {
		t.Fatalf("Second FindOneByID failed: %v", err)
	}

	if user2.Name != testUser.Name {
		t.Errorf("Second FindOneByID returned incorrect user: got %+v, expected %+v", user2, testUser)
	}

	// Verify the backing store was NOT called again (cache hit)
	if calls := len(store.IDSetCalls()); calls != 1 {
		t.Errorf("Expected backing store to still be queried once (cache hit), got %d queries", calls)
	}

	// Test 3: FindManyByQuery - Should hit backing store first time
	matches1, err := users.FindManyByQuery(ctx, bson.M{"email": "test@example.com"}, ttl)
	if err != nil {
		t.Fatalf("First FindManyByQuery failed: %v", err)
	}

	if len(matches1) != 1 {
		t.Errorf("First FindManyByQuery returned unexpected results: got %d users", len(matches1))
	}

	if calls := len(store.FindCalls()); calls != 1 {
		t.Errorf("Expected 1 filtered store query, got %d", calls)
	}

	// Test 4: FindManyByQuery again - Should be served from cache
	matches2, err := users.FindManyByQuery(ctx, bson.M{"email": "test@example.com"}, ttl)
	if err != nil {
		t.Fatalf("Second FindManyByQuery failed: %v", err)
	}

	if len(matches2) != 1 {
		t.Errorf("Second FindManyByQuery returned unexpected results: got %d users", len(matches2))
	}

	if calls := len(store.FindCalls()); calls != 1 {
		t.Errorf("Expected cached query to not reach the store, got %d queries", calls)
	}

	// Test 5: FindManyByIDs - Cached id is served from cache, only the new
	// id reaches the store
	otherID := store.MustAdd(t, User{Name: "Other User", Email: "other@example.com"})

	recs, err := users.FindManyByIDs(ctx, []any{userID, otherID}, ttl)
	if err != nil {
		t.Fatalf("FindManyByIDs failed: %v", err)
	}

	if len(recs) != 2 || recs[0] == nil || recs[1] == nil {
		t.Fatalf("FindManyByIDs returned unexpected slots: %+v", recs)
	}

	idCalls := store.IDSetCalls()
	if len(idCalls) != 2 {
		t.Fatalf("Expected 2 id queries total, got %d", len(idCalls))
	}
	if len(idCalls[1]) != 1 || idCalls[1][0] != otherID {
		t.Errorf("Expected second id query to cover only the miss, got %v", idCalls[1])
	}
}

// TestCacheExpiryFlow tests that cache entries lapse after their logical TTL
func TestCacheExpiryFlow(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("Failed to create DI container: %v", err)
	}

	store := testsupport.NewMemoryQuerier()
	userID := store.MustAdd(t, User{
		Name:     "Expiry Test User",
		Email:    "expiry@example.com",
		CreateTs: time.Now().Unix(),
	})

	users, err := NewCollection[User](container, store, "users")
	if err != nil {
		t.Fatalf("Failed to create cached collection: %v", err)
	}
	defer users.Close()

	ctx := context.Background()
	shortTTL := documentcache.WithTTL(100 * time.Millisecond)

	// First call - should hit the backing store
	if _, err := users.FindOneByID(ctx, userID, shortTTL); err != nil {
		t.Fatalf("First FindOneByID failed: %v", err)
	}

	if got := store.QueryCount(); got != 1 {
		t.Errorf("Expected 1 store query, got %d", got)
	}

	// Second call immediately - should be served from cache
	if _, err := users.FindOneByID(ctx, userID, shortTTL); err != nil {
		t.Fatalf("Second FindOneByID failed: %v", err)
	}

	if got := store.QueryCount(); got != 1 {
		t.Errorf("Expected cached access to not increase queries, got %d", got)
	}

	// Wait for the logical TTL to lapse
	time.Sleep(200 * time.Millisecond)

	// Third call after expiry - should hit the backing store again
	if _, err := users.FindOneByID(ctx, userID, shortTTL); err != nil {
		t.Fatalf("Third FindOneByID failed: %v", err)
	}

	if got := store.QueryCount(); got != 2 {
		t.Errorf("Expected 2 store queries after expiry, got %d", got)
	}
}

// TestInvalidationFlow verifies that invalidation through the container-wired
// collection is immediately visible
func TestInvalidationFlow(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("Failed to create DI container: %v", err)
	}

	store := testsupport.NewMemoryQuerier()
	userID := store.MustAdd(t, User{Name: "Invalidate Me", Email: "old@example.com"})

	users, err := NewCollection[User](container, store, "users", documentcache.WithFlushEnabled())
	if err != nil {
		t.Fatalf("Failed to create cached collection: %v", err)
	}
	defer users.Close()

	ctx := context.Background()
	ttl := documentcache.WithTTL(time.Hour)

	// Populate the cache
	if _, err := users.FindOneByID(ctx, userID, ttl); err != nil {
		t.Fatalf("FindOneByID failed: %v", err)
	}

	// Targeted invalidation forces the next load back to the store
	if err := users.DeleteFromCache(ctx, userID); err != nil {
		t.Fatalf("DeleteFromCache failed: %v", err)
	}

	if _, err := users.FindOneByID(ctx, userID, ttl); err != nil {
		t.Fatalf("Post-invalidation FindOneByID failed: %v", err)
	}

	if got := store.QueryCount(); got != 2 {
		t.Errorf("Expected invalidation to force a store query, got %d total", got)
	}

	// Collection-wide flush does the same for every entry
	flushed, err := users.FlushCache(ctx)
	if err != nil {
		t.Fatalf("FlushCache failed: %v", err)
	}
	if !flushed {
		t.Fatal("Expected FlushCache to report the flush happened")
	}

	if _, err := users.FindOneByID(ctx, userID, ttl); err != nil {
		t.Fatalf("Post-flush FindOneByID failed: %v", err)
	}

	if got := store.QueryCount(); got != 3 {
		t.Errorf("Expected post-flush load to hit the store, got %d total", got)
	}
}

// TestErrorPropagation verifies that errors from the backing store are
// properly propagated and never cached
func TestErrorPropagation(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("Failed to create DI container: %v", err)
	}

	store := testsupport.NewMemoryQuerier()
	userID := store.MustAdd(t, User{Name: "Flaky", Email: "flaky@example.com"})

	users, err := NewCollection[User](container, store, "users")
	if err != nil {
		t.Fatalf("Failed to create cached collection: %v", err)
	}
	defer users.Close()

	ctx := context.Background()
	ttl := documentcache.WithTTL(time.Minute)

	storeErr := errors.New("store unavailable")
	store.FailWith(storeErr)

	// The store failure surfaces to the caller
	if _, err := users.FindOneByID(ctx, userID, ttl); !errors.Is(err, storeErr) {
		t.Errorf("Expected store error to propagate, got %v", err)
	}

	// Failures are not cached: the next call reaches the store again
	if _, err := users.FindOneByID(ctx, userID, ttl); !errors.Is(err, storeErr) {
		t.Errorf("Expected repeated store error, got %v", err)
	}
	if got := store.QueryCount(); got != 2 {
		t.Errorf("Expected both failing calls to reach the store, got %d queries", got)
	}

	// Once the store recovers the collection serves records again
	store.FailWith(nil)
	user, err := users.FindOneByID(ctx, userID, ttl)
	if err != nil {
		t.Fatalf("FindOneByID after recovery failed: %v", err)
	}
	if user.Name != "Flaky" {
		t.Errorf("Unexpected record after recovery: %+v", user)
	}

	// A confirmed absence is different: ErrNotFound, and it is cacheable
	absentID := testsupport.OID(0xEE)
	if _, err := users.FindOneByID(ctx, absentID, ttl); !errors.Is(err, documentcache.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for absent id, got %v", err)
	}
}

// TestDifferentCollectionTypes verifies the container works with different
// record types sharing one cache
func TestDifferentCollectionTypes(t *testing.T) {
	type Post struct {
		ID    primitive.ObjectID `bson:"_id,omitempty"`
		Title string             `bson:"title"`
		Body  string             `bson:"body"`
	}

	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("Failed to create DI container: %v", err)
	}

	userStore := testsupport.NewMemoryQuerier()
	userID := userStore.MustAdd(t, User{Name: "Shared", Email: "shared@example.com"})

	postStore := testsupport.NewMemoryQuerier()
	postID := postStore.MustAdd(t, Post{Title: "Hello", Body: "World"})

	users, err := NewCollection[User](container, userStore, "users")
	if err != nil {
		t.Fatalf("Failed to create users collection: %v", err)
	}
	defer users.Close()

	posts, err := NewCollection[Post](container, postStore, "posts")
	if err != nil {
		t.Fatalf("Failed to create posts collection: %v", err)
	}
	defer posts.Close()

	ctx := context.Background()
	ttl := documentcache.WithTTL(time.Minute)

	user, err := users.FindOneByID(ctx, userID, ttl)
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if user.Name != "Shared" {
		t.Errorf("Retrieved user mismatch: got %+v", user)
	}

	post, err := posts.FindOneByID(ctx, postID, ttl)
	if err != nil {
		t.Fatalf("Failed to get post: %v", err)
	}
	if post.Title != "Hello" {
		t.Errorf("Retrieved post mismatch: got %+v", post)
	}

	// Both collections share the adapter but their keys never collide:
	// cached repeats stay off their respective stores
	if _, err := users.FindOneByID(ctx, userID, ttl); err != nil {
		t.Fatalf("Cached user lookup failed: %v", err)
	}
	if _, err := posts.FindOneByID(ctx, postID, ttl); err != nil {
		t.Fatalf("Cached post lookup failed: %v", err)
	}

	if got := userStore.QueryCount(); got != 1 {
		t.Errorf("Expected 1 user store query, got %d", got)
	}
	if got := postStore.QueryCount(); got != 1 {
		t.Errorf("Expected 1 post store query, got %d", got)
	}
}
