package extension

import "time"

// Config holds the Points extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.points" or "points" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// SweepInterval is how often the background expiration sweeper runs.
	// Zero disables the sweeper (default: 1h).
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// BillingCycle is the validity window stamped on grants. Zero means one
	// calendar month.
	BillingCycle time.Duration `json:"billing_cycle" mapstructure:"billing_cycle" yaml:"billing_cycle"`

	// SQLitePath, when set, backs the engine with a SQLite database at this
	// path instead of the in-memory store.
	SQLitePath string `json:"sqlite_path" mapstructure:"sqlite_path" yaml:"sqlite_path"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval: time.Hour,
	}
}
