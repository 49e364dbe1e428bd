package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/csverma610/medkit/internal/schema"
)

// Cache is one caller's session against its module store. The store is
// opened lazily on the first fetch that needs it and held until Close.
//
// A failed open is logged once and disables caching for the rest of the
// session; fetches keep working by always computing.
type Cache struct {
	cfg     Config
	log     zerolog.Logger
	metrics *Metrics

	mu      sync.Mutex
	store   *Store
	openErr error
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the session logger. Defaults to the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithMetrics attaches cache counters.
func WithMetrics(m *Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New returns a session for cfg. Nothing touches the disk until a fetch
// needs the store.
func New(cfg Config, opts ...Option) *Cache {
	c := &Cache{cfg: cfg, log: log.Logger}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With().
		Str("module", cfg.Module()).
		Str("session", uuid.NewString()).
		Logger()
	return c
}

// Config returns the session's storage configuration.
func (c *Cache) Config() Config { return c.cfg }

// Open eagerly opens the store. It returns nil when caching is disabled and
// the open error otherwise; callers may ignore it since fetches degrade to
// computing on their own.
func (c *Cache) Open(ctx context.Context) error {
	if c == nil || !c.cfg.Enabled() {
		return nil
	}
	c.handle(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openErr
}

func (c *Cache) handle(ctx context.Context) *Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		return c.store
	}
	if c.openErr != nil {
		return nil
	}
	s, err := OpenStore(ctx, c.cfg.Path(), c.cfg.StoreOptions())
	if err != nil {
		c.openErr = err
		c.metrics.storeFailure(ctx, c.cfg.Module())
		c.log.Warn().Err(err).Str("path", c.cfg.Path()).Msg("cache store unavailable; continuing without cache")
		return nil
	}
	c.store = s
	c.log.Debug().Str("path", c.cfg.Path()).Msg("cache store opened")
	return s
}

// Close releases the store if one was opened. It is safe to call on a nil
// session and more than once.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.store
	c.store = nil
	return s.Close()
}

// Fetch returns the cached value for components when one exists and decodes
// under codec, and otherwise calls compute and stores its result.
//
// Errors from compute are returned unchanged and nothing is stored. Storage
// and decode problems never surface: they are logged and the fetch falls back
// to compute. A nil session always computes.
func Fetch[T any](ctx context.Context, c *Cache, codec schema.Codec[T], components []string, compute func(context.Context) (T, error)) (T, error) {
	if c == nil || !c.cfg.Enabled() {
		return compute(ctx)
	}
	key := KeyFrom(components...)
	module := c.cfg.Module()
	lg := c.log.With().Str("key", shortKey(key)).Logger()

	store := c.handle(ctx)
	if store != nil && !c.cfg.Overwrite() {
		if v, ok := lookup(ctx, c, store, codec, key, lg); ok {
			c.metrics.hit(ctx, module)
			lg.Debug().Msg("cache hit")
			return v, nil
		}
	}
	c.metrics.miss(ctx, module)

	c.metrics.generation(ctx, module)
	v, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if store == nil {
		return v, nil
	}

	b, err := codec.Encode(v)
	if err != nil {
		lg.Warn().Err(err).Str("stage", "encode").Msg("result not cached")
		return v, nil
	}
	if err := store.Put(ctx, Entry{Key: key, Value: b, SchemaVersion: codec.Version}); err != nil {
		c.metrics.storeFailure(ctx, module)
		lg.Warn().Err(err).Str("stage", "put").Msg("result not cached")
		return v, nil
	}
	lg.Debug().Int("bytes", len(b)).Msg("cache stored")
	return v, nil
}

func lookup[T any](ctx context.Context, c *Cache, store *Store, codec schema.Codec[T], key string, lg zerolog.Logger) (T, bool) {
	var zero T
	module := c.cfg.Module()
	e, found, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, schema.ErrDecode):
		c.metrics.decodeFailure(ctx, module)
		lg.Warn().Err(err).Str("stage", "decompress").Msg("corrupt cache entry; regenerating")
		return zero, false
	case err != nil:
		c.metrics.storeFailure(ctx, module)
		lg.Warn().Err(err).Str("stage", "get").Msg("cache read failed; regenerating")
		return zero, false
	case !found:
		lg.Debug().Msg("cache miss")
		return zero, false
	}
	if e.SchemaVersion != codec.Version {
		c.metrics.decodeFailure(ctx, module)
		lg.Warn().Err(ErrStaleEntry).
			Str("stored_version", e.SchemaVersion).
			Str("version", codec.Version).
			Msg("stale cache entry; regenerating")
		return zero, false
	}
	v, err := codec.Decode(e.Value)
	if err != nil {
		c.metrics.decodeFailure(ctx, module)
		lg.Warn().Err(err).Str("stage", "decode").Msg("corrupt cache entry; regenerating")
		return zero, false
	}
	return v, true
}

// FetchOnce opens a session for cfg, fetches, and closes the store on every
// path, including a panicking compute.
func FetchOnce[T any](ctx context.Context, cfg Config, codec schema.Codec[T], components []string, compute func(context.Context) (T, error), opts ...Option) (T, error) {
	c := New(cfg, opts...)
	defer c.Close()
	return Fetch(ctx, c, codec, components, compute)
}
