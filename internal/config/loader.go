package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	model "github.com/okian/readq/internal/domain/model"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "READQ_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if READQ_CONFIG is set
//  3. env (prefix READQ_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Map env keys like READQ_QUEUE_SIZE -> queue_size (flat keys)
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that cannot fall back to a default.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Storage != StorageSQLite && c.Storage != StorageMemory:
		return fmt.Errorf("%w: storage must be %q or %q, got %q", ErrInvalidConfig, StorageSQLite, StorageMemory, c.Storage)
	case c.Storage == StorageSQLite && c.SQLitePath == "":
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}

// DefaultFormula reads the formula named by DefaultFormulaPath. It returns
// nil when no path is configured.
func (c *Config) DefaultFormula() (*model.FormulaConfig, error) {
	if c.DefaultFormulaPath == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(c.DefaultFormulaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	var f model.FormulaConfig
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: default formula %s: %w", ErrInvalidConfig, c.DefaultFormulaPath, err)
	}
	return &f, nil
}
