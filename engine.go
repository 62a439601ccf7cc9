package points

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/points/account"
	"github.com/xraph/points/catalog"
	"github.com/xraph/points/plugin"
	"github.com/xraph/points/store"
)

// Engine is the points ledger and transition engine.
type Engine struct {
	store   store.Store
	catalog catalog.Catalog
	plugins *plugin.Registry
	logger  *slog.Logger

	// Background sweeper
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	billingCycle   time.Duration
	sweepInterval  time.Duration
	sweepBatchSize int
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		catalog:        catalog.Default(),
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		stopChan:       make(chan struct{}),
		sweepBatchSize: 200,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCatalog replaces the default cost and plan catalog.
func WithCatalog(c catalog.Catalog) Option {
	return func(e *Engine) {
		e.catalog = c
	}
}

// WithBillingCycle sets the validity window stamped on grants. The zero
// value means one calendar month.
func WithBillingCycle(d time.Duration) Option {
	return func(e *Engine) {
		e.billingCycle = d
	}
}

// WithSweepInterval enables the background expiration sweeper and sets how
// often it runs. Zero leaves the sweeper off; ExpireBatch remains callable
// by an external scheduler either way.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.sweepInterval = d
	}
}

// Catalog returns the engine's cost and plan catalog.
func (e *Engine) Catalog() catalog.Catalog { return e.catalog }

// Start migrates the store, initializes plugins, and begins the background
// sweeper when one is configured.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.catalog.Validate(); err != nil {
		return err
	}

	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	if e.sweepInterval > 0 {
		e.wg.Add(1)
		go e.sweepWorker(ctx)
	}

	e.logger.Info("points engine started",
		"sweep_interval", e.sweepInterval,
		"billing_cycle", e.billingCycle,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// sweepWorker periodically expires lapsed grants across all active
// accounts. Each account sweeps in its own locked transaction, so a slow
// or failing account never blocks the rest.
func (e *Engine) sweepWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.sweepAll(ctx)
		}
	}
}

func (e *Engine) sweepAll(ctx context.Context) {
	start := time.Now()
	swept := int64(0)
	offset := 0

	for {
		accounts, err := e.store.ListAccounts(ctx, account.ListOpts{
			Limit:  e.sweepBatchSize,
			Offset: offset,
		})
		if err != nil {
			e.logger.Error("sweep: list accounts failed", "error", err)
			return
		}
		if len(accounts) == 0 {
			break
		}

		for _, a := range accounts {
			res, err := e.ExpireBatch(ctx, a.OrganizationID)
			if err != nil {
				e.logger.Error("sweep: expire failed",
					"organization_id", a.OrganizationID,
					"error", err,
				)
				continue
			}
			swept += res.Expired
		}

		offset += len(accounts)
	}

	e.logger.Debug("sweep pass complete",
		"points_expired", swept,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}
