package di

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-cache/aggregate"
	"github.com/goliatone/go-ledger-cache/cache"
	"github.com/goliatone/go-ledger-cache/internal/amqp"
	"github.com/goliatone/go-ledger-cache/internal/config"
	"github.com/goliatone/go-ledger-cache/internal/httpapi"
	"github.com/goliatone/go-ledger-cache/internal/logging"
	"github.com/goliatone/go-ledger-cache/internal/storage"
	"github.com/goliatone/go-ledger-cache/ledger"
	"github.com/goliatone/go-ledger-cache/model"
	"github.com/goliatone/go-ledger-cache/query"
	"github.com/goliatone/go-ledger-cache/report"
	"github.com/goliatone/go-ledger-cache/repositorycache"
)

// Container builds and owns the ledger's components from one configuration.
// Everything it opens is released by Close.
type Container struct {
	config        config.Config
	logger        *slog.Logger
	db            *bun.DB
	ownsDB        bool
	layer         *cache.Layer
	ownsLayer     bool
	keySerializer cache.KeySerializer
	queries       *query.Queries
	totals        *aggregate.Service
	users         *repositorycache.CachedRepository[*model.User]
	ledger        *ledger.Service
}

// Option customises a Container.
type Option func(*Container)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDB uses an already open database instead of opening storage from the
// configuration. The caller keeps ownership of db.
func WithDB(db *bun.DB) Option {
	return func(c *Container) {
		c.db = db
	}
}

// WithCacheLayer uses layer instead of building one from the configuration.
// The caller keeps ownership of layer.
func WithCacheLayer(layer *cache.Layer) Option {
	return func(c *Container) {
		c.layer = layer
	}
}

// NewContainer opens storage and the cache backend and wires the services.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	c := &Container{
		config:        cfg,
		logger:        slog.Default(),
		keySerializer: cache.NewDefaultKeySerializer(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.db == nil {
		db, err := storage.Open(ctx, cfg.Storage, logging.Component(c.logger, logging.ComponentStorage))
		if err != nil {
			return nil, err
		}
		c.db = db
		c.ownsDB = true
	}

	if c.layer == nil {
		layer, err := cache.NewLayerFromConfig(cfg.Cache, c.logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.layer = layer
		c.ownsLayer = true
	}

	c.queries = query.New(c.db)

	totalsOpts := []aggregate.Option{
		aggregate.WithTTL(cfg.Cache.DefaultTTL),
		aggregate.WithUserLookup(c.queries),
		aggregate.WithLogger(logging.Component(c.logger, logging.ComponentAggregate)),
	}
	if cfg.Cache.SingleFlight {
		totalsOpts = append(totalsOpts, aggregate.WithSingleFlight())
	}
	c.totals = aggregate.NewService(c.queries, c.layer, totalsOpts...)

	c.users = NewCachedRepository(c, storage.NewUserRepository(c.db))
	c.ledger = ledger.NewService(c.db, c.users, c.totals, ledger.WithLogger(logging.Component(c.logger, logging.ComponentLedger)))

	logging.Component(c.logger, logging.ComponentApp).Info("container ready",
		logging.FieldBackend, cfg.Cache.Backend,
		"driver", cfg.Storage.Driver,
		"single_flight", cfg.Cache.SingleFlight,
	)
	return c, nil
}

// NewContainerWithDefaults builds a container from config.Default().
func NewContainerWithDefaults(ctx context.Context, opts ...Option) (*Container, error) {
	return NewContainer(ctx, config.Default(), opts...)
}

func (c *Container) Config() config.Config                     { return c.config }
func (c *Container) Logger() *slog.Logger                      { return c.logger }
func (c *Container) DB() *bun.DB                               { return c.db }
func (c *Container) CacheLayer() *cache.Layer                  { return c.layer }
func (c *Container) KeySerializer() cache.KeySerializer        { return c.keySerializer }
func (c *Container) Queries() *query.Queries                   { return c.queries }
func (c *Container) Totals() *aggregate.Service                { return c.totals }
func (c *Container) Ledger() *ledger.Service                   { return c.ledger }
func (c *Container) Users() repository.Repository[*model.User] { return c.users }

// HTTPServer returns the API server over the container's services.
func (c *Container) HTTPServer() *httpapi.Server {
	return httpapi.NewServer(c.totals, c.queries, c.ledger, c.logger)
}

// Notifier returns the SMTP notifier when a mail host is configured and a
// log notifier otherwise.
func (c *Container) Notifier() report.Notifier {
	if c.config.Mail.Enabled() {
		return report.NewMailNotifier(c.config.Mail)
	}
	return report.NewLogNotifier(c.logger)
}

// ReportJob builds the monthly report job. A nil notifier uses Notifier().
func (c *Container) ReportJob(notifier report.Notifier) *report.Job {
	if notifier == nil {
		notifier = c.Notifier()
	}
	return report.NewJob(c.queries, c.ledger, notifier,
		report.WithCurrency(c.config.Report.Currency),
		report.WithLogger(logging.Component(c.logger, logging.ComponentReport)),
	)
}

// Scheduler builds the report scheduler publishing through publisher.
func (c *Container) Scheduler(publisher report.Publisher) *report.Scheduler {
	return report.NewScheduler(c.queries, publisher, c.logger)
}

// AMQPClient connects to the configured broker.
func (c *Container) AMQPClient() (*amqp.Client, error) {
	return amqp.NewClient(c.config.AMQP, c.logger)
}

// Close releases the cache layer and database the container opened itself.
func (c *Container) Close() error {
	var errs []error
	if c.layer != nil && c.ownsLayer {
		if err := c.layer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.db != nil && c.ownsDB {
		if err := c.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewCachedRepository wraps base with the container's cache layer and key
// serializer.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[*model.User](container, baseUserRepository)
func NewCachedRepository[T any](c *Container, base repository.Repository[T], opts ...repositorycache.Option[T]) *repositorycache.CachedRepository[T] {
	opts = append([]repositorycache.Option[T]{
		repositorycache.WithKeySerializer[T](c.keySerializer),
		repositorycache.WithLogger[T](logging.Component(c.logger, logging.ComponentRepoCache)),
	}, opts...)
	return repositorycache.New(base, c.layer, opts...)
}
