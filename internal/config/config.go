// Package config defines service configuration structures and loading hooks.
package config

import (
	"runtime"
)

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Storage selects the book store: sqlite or memory.
	Storage string `koanf:"storage"`

	// SQLitePath is the database file used by the sqlite store.
	SQLitePath string `koanf:"sqlite_path"`

	// QueueSize bounds the rescore job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of rescore workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize caps how many pending rescore jobs are tracked.
	DedupeSize int `koanf:"dedupe_size"`

	// AdminToken guards the /admin routes. Empty disables them.
	AdminToken string `koanf:"admin_token"`

	// RescoreOnStart queues a rescore of every user at startup.
	RescoreOnStart bool `koanf:"rescore_on_start"`

	// PrivilegedAvailability is the availability label with its own weight.
	PrivilegedAvailability string `koanf:"privileged_availability"`

	// MissingTypeWeight and MissingPrivilegedWeight apply when a formula
	// leaves those weights out.
	MissingTypeWeight       float64 `koanf:"missing_type_weight"`
	MissingPrivilegedWeight float64 `koanf:"missing_privileged_weight"`

	// DefaultFormulaPath optionally names a JSON formula replacing the
	// built-in default formula.
	DefaultFormulaPath string `koanf:"default_formula_path"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		Storage:                 StorageSQLite,
		SQLitePath:              "readq.db",
		QueueSize:               1024,
		WorkerCount:             runtime.NumCPU(),
		DedupeSize:              10_000,
		PrivilegedAvailability:  "physical",
		MissingTypeWeight:       2,
		MissingPrivilegedWeight: 2,
	}
}
