// Package di wires the sync engine together: durable store, remote gateway,
// connectivity oracle, shared cache and flight group, per-entity
// repositories, and the queue reconciler. It manages singleton instances and
// owns their lifecycle from construction to Close.
package di

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goliatone/go-offline-sync/cache"
	"github.com/goliatone/go-offline-sync/connectivity"
	"github.com/goliatone/go-offline-sync/flight"
	"github.com/goliatone/go-offline-sync/internal/gatewayinfra"
	"github.com/goliatone/go-offline-sync/internal/storeinfra"
	"github.com/goliatone/go-offline-sync/model"
	"github.com/goliatone/go-offline-sync/pkg/config"
	"github.com/goliatone/go-offline-sync/repository"
)

// Container provides dependency injection for the sync engine components. It
// manages the shared cache, flight group, store and gateway singletons, and
// a query/command repository pair per entity type.
type Container struct {
	cfg     *config.Config
	log     *slog.Logger
	cache   cache.Store
	flights *flight.Group

	store   *storeinfra.Store
	gateway repository.RemoteGateway
	oracle  repository.ConnectivityOracle
	probe   *connectivity.Probe

	queries    map[model.EntityType]*repository.QueryRepository
	commands   map[model.EntityType]*repository.CommandRepository
	reconciler *repository.Reconciler

	syncCancel context.CancelFunc
	syncDone   chan struct{}
	closeOnce  sync.Once
}

// Option overrides a container dependency, mainly for tests and embedders
// that bring their own implementations.
type Option func(*Container)

// WithGateway replaces the HTTP gateway built from the configuration.
func WithGateway(gw repository.RemoteGateway) Option {
	return func(c *Container) { c.gateway = gw }
}

// WithOracle replaces the connectivity oracle built from the configuration.
func WithOracle(o repository.ConnectivityOracle) Option {
	return func(c *Container) { c.oracle = o }
}

// WithLogger replaces the logger derived from the configured log level.
func WithLogger(log *slog.Logger) Option {
	return func(c *Container) { c.log = log }
}

// New creates a container from cfg, opening the durable store and
// initializing its schema. The caller owns the container and must Close it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		cfg:      cfg,
		cache:    cache.NewStore(),
		flights:  flight.NewGroup(),
		queries:  make(map[model.EntityType]*repository.QueryRepository),
		commands: make(map[model.EntityType]*repository.CommandRepository),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.log == nil {
		c.log = newLogger(cfg.LogLevel)
	}

	store, err := openStore(ctx, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	c.store = store

	if c.gateway == nil {
		gw, err := gatewayinfra.New(gatewayinfra.Config{
			BaseURL: cfg.Gateway.BaseURL,
			Token:   cfg.Gateway.Token,
			UserID:  cfg.Gateway.UserID,
			Timeout: cfg.Gateway.Timeout,
			Logger:  c.log,
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("building gateway: %w", err)
		}
		c.gateway = gw
	}

	if c.oracle == nil {
		if cfg.Connectivity.Address != "" {
			probe := connectivity.NewProbe(connectivity.ProbeConfig{
				Address:     cfg.Connectivity.Address,
				Interval:    cfg.Connectivity.Interval,
				DialTimeout: cfg.Connectivity.DialTimeout,
			})
			c.probe = probe
			c.oracle = probe
		} else {
			// No probe target configured; assume online and let the platform
			// layer drive state through the Manual oracle if needed.
			c.oracle = connectivity.NewManual(true)
		}
	}

	deps := repository.Deps{
		Store:           c.store,
		Gateway:         c.gateway,
		Oracle:          c.oracle,
		Cache:           c.cache,
		Flights:         c.flights,
		Logger:          c.log,
		WaitTimeout:     cfg.Sync.WaitTimeout,
		FreshnessShort:  cfg.Cache.FreshnessShort,
		FreshnessMedium: cfg.Cache.FreshnessMedium,
		FreshnessLong:   cfg.Cache.FreshnessLong,
	}

	for _, entity := range []model.EntityType{model.EntityTransaction, model.EntityCalorie} {
		query, err := repository.NewQueryRepository(entity, deps)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		command, err := repository.NewCommandRepository(entity, deps)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		c.queries[entity] = query
		c.commands[entity] = command
	}

	reconciler, err := repository.NewReconciler(deps)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	c.reconciler = reconciler

	// Mutations and drains both warm the spending analysis through the
	// transaction query repository.
	refresher := func(ctx context.Context) {
		c.queries[model.EntityTransaction].RefreshAnalysis(ctx)
	}
	c.commands[model.EntityTransaction].SetAnalysisRefresher(refresher)
	c.reconciler.SetAnalysisRefresher(refresher)

	return c, nil
}

// Query returns the read repository for the given entity type.
func (c *Container) Query(entity model.EntityType) *repository.QueryRepository {
	return c.queries[entity]
}

// Command returns the write repository for the given entity type.
func (c *Container) Command(entity model.EntityType) *repository.CommandRepository {
	return c.commands[entity]
}

// Reconciler returns the sync queue reconciler.
func (c *Container) Reconciler() *repository.Reconciler {
	return c.reconciler
}

// Cache returns the shared in-memory cache.
func (c *Container) Cache() cache.Store {
	return c.cache
}

// Store returns the durable local store.
func (c *Container) Store() *storeinfra.Store {
	return c.store
}

// Config returns the configuration the container was built with.
func (c *Container) Config() *config.Config {
	return c.cfg
}

// StartAutoSync begins background reconciliation: the connectivity probe (if
// configured) starts checking, and the reconciler drains the queue on every
// offline-to-online transition until ctx is cancelled or Close is called.
func (c *Container) StartAutoSync(ctx context.Context) {
	if c.syncCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.syncCancel = cancel
	c.syncDone = make(chan struct{})

	if c.probe != nil {
		c.probe.Start(ctx)
	}
	go func() {
		defer close(c.syncDone)
		c.reconciler.Run(ctx)
	}()
}

// Close stops background work and releases the store. Safe to call more than
// once.
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.syncCancel != nil {
			c.syncCancel()
			<-c.syncDone
		}
		if c.probe != nil {
			c.probe.Stop()
		}
		err = c.store.Close()
	})
	return err
}

func openStore(ctx context.Context, path string) (*storeinfra.Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	store, err := storeinfra.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initializing store schema: %w", err)
	}
	return store, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
