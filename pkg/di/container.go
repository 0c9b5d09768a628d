package di

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/goliatone/go-document-cache/cache"
	"github.com/goliatone/go-document-cache/documentcache"
)

// Container provides dependency injection for document cache components.
// It manages the shared cache adapter, logger, and key namespace, and
// provides factory functions for creating cached collections that all store
// their entries in the same underlying cache.
type Container struct {
	adapter   cache.Adapter
	config    cache.Config
	logger    *zap.Logger
	namespace string
}

// Option customizes a container before it is returned.
type Option func(*Container)

// WithLogger sets the logger every collection created through the container
// inherits.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithNamespace sets the cache key namespace every collection created
// through the container inherits.
func WithNamespace(namespace string) Option {
	return func(c *Container) {
		c.namespace = namespace
	}
}

// WithAdapter replaces the container's cache adapter. This is how a shared
// Redis adapter is wired in; the config-built in-process adapter is
// discarded.
func WithAdapter(adapter cache.Adapter) Option {
	return func(c *Container) {
		c.adapter = adapter
	}
}

// NewContainer creates a new DI container with the provided cache
// configuration. It initializes the shared in-process adapter using the
// sturdyc backend; every collection created through the container stores
// its entries there, scoped by its collection name.
func NewContainer(config cache.Config, opts ...Option) (*Container, error) {
	adapter, err := cache.NewAdapter(config)
	if err != nil {
		return nil, err
	}

	c := &Container{
		adapter: adapter,
		config:  config,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewContainerWithDefaults creates a new DI container using default
// configuration. This is a convenience constructor for typical use cases
// where custom configuration is not required.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

// Adapter returns the shared cache adapter instance. This allows access to
// the underlying cache for advanced use cases.
func (c *Container) Adapter() cache.Adapter {
	return c.adapter
}

// Config returns a copy of the cache configuration used by this container.
// This is useful for debugging and monitoring purposes.
func (c *Container) Config() cache.Config {
	return c.config
}

// Logger returns the logger collections inherit, or nil when none was set.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// NewCollection creates a cached collection over the provided querier,
// wired to the container's shared adapter, logger, and namespace. Options
// are applied after the container wiring and may override it.
//
// Since Go methods cannot have type parameters, this is provided as a
// package-level function. Example: NewCollection[User](container, querier, "users")
func NewCollection[T any](container *Container, q documentcache.Querier, collection string, opts ...documentcache.Option) (*documentcache.Collection[T], error) {
	base := []documentcache.Option{documentcache.WithCache(container.adapter)}
	if container.logger != nil {
		base = append(base, documentcache.WithLogger(container.logger))
	}
	if container.namespace != "" {
		base = append(base, documentcache.WithNamespace(container.namespace))
	}
	return documentcache.New[T](q, collection, append(base, opts...)...)
}

// NewMongoCollection creates a cached collection directly over a mongo
// collection handle, named after it.
// Example: NewMongoCollection[User](container, client.Database("app").Collection("users"))
func NewMongoCollection[T any](container *Container, coll *mongo.Collection, opts ...documentcache.Option) (*documentcache.Collection[T], error) {
	if coll == nil {
		return nil, errors.New("di: nil mongo collection")
	}
	return NewCollection[T](container, documentcache.NewMongoQuerier(coll), coll.Name(), opts...)
}
