// Package extension provides the Forge extension adapter for Points.
//
// It implements the forge.Extension interface to integrate the Points
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.points" or "points"
// keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/points"
	"github.com/xraph/points/store"
	"github.com/xraph/points/store/memory"
	"github.com/xraph/points/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "points"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Points ledger and state-transition engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Points as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *points.Engine
	store      store.Store
	engineOpts []points.Option
}

// New creates a new Points Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Points engine.
// This is nil until Register is called.
func (e *Extension) Engine() *points.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Pick the store: programmatic store wins, then SQLite path, then memory.
	if e.store == nil {
		if e.config.SQLitePath != "" {
			s, err := sqlite.Open(e.config.SQLitePath)
			if err != nil {
				return err
			}
			e.store = s
		} else {
			e.store = memory.New()
		}
	}

	opts := e.buildEngineOpts()

	e.engine = points.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*points.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("points: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("points: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs points.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []points.Option {
	opts := make([]points.Option, 0, len(e.engineOpts)+2)

	if e.config.SweepInterval > 0 {
		opts = append(opts, points.WithSweepInterval(e.config.SweepInterval))
	}
	if e.config.BillingCycle > 0 {
		opts = append(opts, points.WithBillingCycle(e.config.BillingCycle))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("points: configuration is required but not found in config files; " +
				"ensure 'extensions.points' or 'points' key exists in your config")
		}

		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("points: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("sweep_interval", e.config.SweepInterval),
		forge.F("billing_cycle", e.config.BillingCycle),
		forge.F("sqlite_path", e.config.SQLitePath),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.points" first (namespaced pattern).
	if cm.IsSet("extensions.points") {
		if err := cm.Bind("extensions.points", &cfg); err == nil {
			e.Logger().Debug("points: loaded config from file",
				forge.F("key", "extensions.points"),
			)
			return cfg, true
		}
		e.Logger().Warn("points: failed to bind extensions.points config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "points" key.
	if cm.IsSet("points") {
		if err := cm.Bind("points", &cfg); err == nil {
			e.Logger().Debug("points: loaded config from file",
				forge.F("key", "points"),
			)
			return cfg, true
		}
		e.Logger().Warn("points: failed to bind points config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.SQLitePath == "" && programmaticConfig.SQLitePath != "" {
		yamlConfig.SQLitePath = programmaticConfig.SQLitePath
	}

	if yamlConfig.SweepInterval == 0 && programmaticConfig.SweepInterval != 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}
	if yamlConfig.BillingCycle == 0 && programmaticConfig.BillingCycle != 0 {
		yamlConfig.BillingCycle = programmaticConfig.BillingCycle
	}

	return e.mergeWithDefaults(yamlConfig)
}
