package cmdtrigger

import (
	"context"
	"sync/atomic"

	"github.com/kataras/cmdtrigger/desc"

	"github.com/jackc/pgx/v5/tracelog"
)

// Engine ties the pieces together: a Store for definitions, a Cache for
// firing lookups and an Invoker for running the trigger procedures.
// Create one with the New function. All of its methods are safe for
// concurrent use.
type Engine struct {
	store   *Store
	cache   *Cache
	invoker Invoker

	logger    tracelog.Logger
	authorize func(ctx context.Context) error
	role      atomic.Int32 // desc.ReplicationRole, widened for atomic access.
}

// Option is an Engine configuration option for the New function.
type Option func(*Engine, *Config)

// WithLogger sets the logger used for registration warnings and veto
// reports. The default engine is silent.
func WithLogger(logger tracelog.Logger) Option {
	return func(e *Engine, _ *Config) {
		e.logger = logger
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg *Config) Option {
	return func(_ *Engine, dst *Config) {
		*dst = *cfg
	}
}

// WithAuthorizer sets the privilege gate for mutating operations,
// see Store.HandleAuthorization.
func WithAuthorizer(fn func(ctx context.Context) error) Option {
	return func(e *Engine, _ *Config) {
		e.authorize = fn
	}
}

// New creates an Engine over the given catalog. The invoker resolves and
// runs trigger procedures; pass a Registry when procedures live in-process.
func New(catalog Catalog, invoker Invoker, opts ...Option) (*Engine, error) {
	cfg := DefaultConfig()

	e := &Engine{invoker: invoker}
	for _, opt := range opts {
		opt(e, cfg)
	}

	e.store = NewStore(catalog, cfg)
	e.store.logger = e.logger
	e.store.authorize = e.authorize

	role, err := cfg.Role()
	if err != nil {
		return nil, err
	}
	e.role.Store(int32(role))

	e.cache = NewCache(catalog, e.ReplicationRole)
	// Every committed definition change flips the cache stale. The next
	// firing pass rebuilds from the catalog, never this goroutine.
	e.store.OnChange(e.cache.Invalidate)

	return e, nil
}

// Store exposes the registration layer (Register, Drop, Rename and friends).
func (e *Engine) Store() *Store { return e.store }

// Cache exposes the firing cache, mainly for external invalidation
// sources such as a database change listener.
func (e *Engine) Cache() *Cache { return e.cache }

// ReplicationRole reports the session replication role the engine fires
// under.
func (e *Engine) ReplicationRole() desc.ReplicationRole {
	return desc.ReplicationRole(e.role.Load())
}

// SetReplicationRole changes the session replication role. The firing
// cache notices the mismatch on its next lookup and rebuilds, so triggers
// filtered by the old role never fire under the new one.
func (e *Engine) SetReplicationRole(role desc.ReplicationRole) {
	e.role.Store(int32(role))
}

func (e *Engine) log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	if e.logger != nil {
		e.logger.Log(ctx, level, msg, data)
	}
}
