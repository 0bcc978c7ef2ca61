// Package config loads this module's runtime configuration from a
// TOML file, the same way the teacher loads its authority/server
// configs with github.com/BurntSushi/toml.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/mc-fleet/corebus/dispatcher"
)

// Config is the set of knobs spec §6 enumerates: ring depth, frame
// width, an endpoint identity, and logging.
type Config struct {
	MemorySize     int    `toml:"memory_size"`
	MaxFrameLength int    `toml:"max_frame_length"`
	EndpointKey    string `toml:"endpoint_key"`
	CatalogPath    string `toml:"catalog_path"`

	Logging LoggingConfig `toml:"logging"`
}

// LoggingConfig selects the go-logging backend's level and output
// file, mirrored from the teacher's own config structs that carry a
// `Level`/`LogDir`-shaped sub-table.
type LoggingConfig struct {
	Level string `toml:"level"` // DEBUG, INFO, WARNING, ERROR, CRITICAL
	File  string `toml:"file"`  // empty means stderr
}

// Load parses path and fills in spec §6's documented defaults for any
// knob left unset. EndpointKey defaults to a fresh random uuid if
// empty, matching google/uuid's role noted in SPEC_FULL.md's DOMAIN
// STACK section.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Parse decodes TOML already in memory, for tests and embedded
// configuration.
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = dispatcher.DefaultMemorySize
	}
	if cfg.MaxFrameLength <= 0 {
		cfg.MaxFrameLength = dispatcher.DefaultMaxFrameLength
	}
	if cfg.EndpointKey == "" {
		cfg.EndpointKey = uuid.NewString()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
}
