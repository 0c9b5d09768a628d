package documentcache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/goliatone/go-document-cache/cache"
	"github.com/goliatone/go-document-cache/codec"
)

// DefaultNamespace prefixes every cache key unless WithNamespace overrides it.
const DefaultNamespace = "doccache"

type options struct {
	adapter         cache.Adapter
	namespace       string
	keyCodec        KeyCodec
	hashedQueryKeys bool
	payload         codec.Codec
	logger          *zap.Logger
	debug           bool
	flushEnabled    bool
	batchWindow     time.Duration
	maxBatch        int
	genRetention    time.Duration
}

func defaultOptions() options {
	return options{
		namespace: DefaultNamespace,
		payload:   codec.BSON{},
	}
}

// validate runs at construction; option mistakes surface as one error
// instead of misbehavior at first use.
func (o options) validate(collection string, q Querier) error {
	return validation.Errors{
		"collection":            validation.Validate(collection, validation.Required),
		"querier":               validation.Validate(q, validation.Required),
		"namespace":             validation.Validate(o.namespace, validation.Required),
		"batchWindow":           validation.Validate(int64(o.batchWindow), validation.Min(int64(0))),
		"maxBatch":              validation.Validate(o.maxBatch, validation.Min(0)),
		"invalidationRetention": validation.Validate(int64(o.genRetention), validation.Min(int64(0))),
	}.Filter()
}

// Option configures a Collection at construction time.
type Option func(*options)

// WithCache installs the cache adapter. Without it each Collection builds
// its own in-process adapter with default settings; pass a shared adapter
// to pool memory across collections (keys are namespaced, so entries never
// collide).
func WithCache(adapter cache.Adapter) Option {
	return func(o *options) { o.adapter = adapter }
}

// WithNamespace overrides the key namespace. Collections sharing one
// persistent backend under different namespaces are fully isolated.
func WithNamespace(namespace string) Option {
	return func(o *options) { o.namespace = namespace }
}

// WithKeyCodec installs a custom key codec. When set, WithNamespace and
// WithHashedQueryKeys have no effect; key layout belongs to the codec.
func WithKeyCodec(kc KeyCodec) Option {
	return func(o *options) { o.keyCodec = kc }
}

// WithHashedQueryKeys stores query entries under a fixed-width hash of the
// canonical filter instead of the filter text itself. Key length stays
// bounded for arbitrarily large filters; keys stop being human-readable.
func WithHashedQueryKeys() Option {
	return func(o *options) { o.hashedQueryKeys = true }
}

// WithCodec selects the payload encoding for cache entries. The default is
// BSON; all collections reading a shared persistent cache must agree on it.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.payload = c }
}

// WithLogger installs a logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDebug builds a development logger when none was supplied via
// WithLogger. Window drains, fenced writes, and self-heal deletes log at
// debug level.
func WithDebug() Option {
	return func(o *options) { o.debug = true }
}

// WithFlushEnabled permits FlushCache to clear the collection's entries.
// Flushing is disabled by default and reports (false, nil) without
// touching any entry.
func WithFlushEnabled() Option {
	return func(o *options) { o.flushEnabled = true }
}

// WithBatchWindow sets how long the first lookup of a window waits for
// peers before the batch drains. Zero selects the default (1ms).
func WithBatchWindow(window time.Duration) Option {
	return func(o *options) { o.batchWindow = window }
}

// WithMaxBatch caps distinct keys per physical store query; a full window
// drains early. Zero selects the default (100).
func WithMaxBatch(n int) Option {
	return func(o *options) { o.maxBatch = n }
}

// WithInvalidationRetention sets how long an idle invalidation fence is
// remembered before the janitor retires it. Align it with the longest TTL
// passed to WithTTL; a fence retired while its entry is still cacheable
// costs one extra store round trip on the next lookup. Zero selects the
// default (1h).
func WithInvalidationRetention(d time.Duration) Option {
	return func(o *options) { o.genRetention = d }
}

type callOptions struct {
	ttl time.Duration
}

// CallOption configures a single lookup.
type CallOption func(*callOptions)

// WithTTL caches this call's outcome, positive or negative, for the given
// duration. Without it (or with a non-positive duration) the call neither
// reads nor writes the cache.
func WithTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) { o.ttl = ttl }
}

func applyCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
