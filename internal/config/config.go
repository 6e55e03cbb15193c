// Package config reads the TOML run configuration consumed by
// cmd/entropyctl: input path, column count, engine choice, and the backend
// connection details. Grounded on the teacher's internal/parser/toml, which
// already establishes TOML as this codebase's configuration-surface
// library; this package reuses BurntSushi/toml for engine/run configuration
// instead of schema definition.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the decoded contents of a run's config.toml.
type Config struct {
	// Input is the path to the headerless k-column tabular source (spec §6
	// "Inputs consumed").
	Input string `toml:"input"`
	// K is the column count of Input.
	K int `toml:"k"`
	// Engine selects "tidcnt", "buc", or "auto" (default).
	Engine string `toml:"engine"`
	// Backend selects the TupleStore implementation: "memory" or "mysql".
	Backend string `toml:"backend"`
	// DSN is the MySQL/MariaDB/TiDB connection string, required when
	// Backend is "mysql".
	DSN string `toml:"dsn"`
	// Concurrency is decoded and kept on Config, but neither entropy.Run nor
	// cmd/entropyctl reads it: every run uses the sequential engines.
	Concurrency int `toml:"concurrency"`
}

// Load decodes path into a Config and validates the required fields.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Input == "" {
		return fmt.Errorf("input is required")
	}
	if c.K <= 0 {
		return fmt.Errorf("k must be positive, got %d", c.K)
	}
	switch c.Backend {
	case "", "memory":
		c.Backend = "memory"
	case "mysql":
		if c.DSN == "" {
			return fmt.Errorf("dsn is required when backend is mysql")
		}
	default:
		return fmt.Errorf("unknown backend %q (want memory or mysql)", c.Backend)
	}
	return nil
}
