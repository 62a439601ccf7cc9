package extension

import (
	"time"

	"github.com/xraph/points"
	"github.com/xraph/points/plugin"
	"github.com/xraph/points/store"
)

// Option configures the Points Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a points.Option through to the underlying engine.
func WithEngineOption(opt points.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a points plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, points.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithSQLitePath backs the engine with a SQLite database at the given path.
func WithSQLitePath(path string) Option {
	return func(e *Extension) { e.config.SQLitePath = path }
}

// WithSweepInterval sets how often the background expiration sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}

// WithBillingCycle sets the validity window stamped on grants.
func WithBillingCycle(d time.Duration) Option {
	return func(e *Extension) { e.config.BillingCycle = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
