// Package config provides shared configuration types for objsql.
// It is decoupled from CLI concerns so that anything embedding the engine can
// load a project configuration.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/objsql/pkg/adapter"
	"github.com/leapstack-labs/objsql/pkg/codec"
	"github.com/leapstack-labs/objsql/pkg/sqlfile"
)

// TargetConfig holds database target configuration.
type TargetConfig struct {
	Type string `koanf:"type" yaml:"type"` // sqlite, duckdb, postgres

	// File-based databases (SQLite, DuckDB)
	Database string `koanf:"database" yaml:"database,omitempty"` // file path or database name

	// Network databases
	Host     string `koanf:"host" yaml:"host,omitempty"`
	Port     int    `koanf:"port" yaml:"port,omitempty"`
	User     string `koanf:"user" yaml:"user,omitempty"`
	Password string `koanf:"password" yaml:"password,omitempty"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options" yaml:"options,omitempty"`

	// Params holds adapter-specific configuration (e.g., DuckDB extensions, SQLite pragmas)
	Params map[string]any `koanf:"params" yaml:"params,omitempty"`
}

// Validate checks if the target configuration is valid.
// It uses the adapter registry to determine which adapter types are available.
func (t *TargetConfig) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}

	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}

	return nil
}

// IsFileBased reports whether the target stores its data in a local file.
func (t *TargetConfig) IsFileBased() bool {
	switch strings.ToLower(t.Type) {
	case "sqlite", "duckdb":
		return true
	}
	return false
}

// AdapterConfig converts the target into an adapter configuration. For file
// based targets the database is the path of the file.
func (t *TargetConfig) AdapterConfig() adapter.Config {
	cfg := adapter.Config{
		Type:     strings.ToLower(t.Type),
		Host:     t.Host,
		Port:     t.Port,
		User:     t.User,
		Password: t.Password,
		Options:  t.Options,
		Params:   t.Params,
	}
	if t.IsFileBased() {
		cfg.Path = t.Database
	} else {
		cfg.Database = t.Database
	}
	return cfg
}

// EngineConfig holds the serialization settings of the engine.
type EngineConfig struct {
	// Compression above zero stores arrays as runs of equal values
	Compression int `koanf:"compression" yaml:"compression"`
	// FloatFormat is the %-style format used for floating point values
	FloatFormat string `koanf:"float_format" yaml:"float_format"`
	// LongStringThreshold moves longer strings out of line (0 disables)
	LongStringThreshold int `koanf:"long_string_threshold" yaml:"long_string_threshold"`
	// IgnoreVerification skips the type tag check of read values
	IgnoreVerification bool `koanf:"ignore_verification" yaml:"ignore_verification"`
}

// Validate checks the engine settings.
func (e *EngineConfig) Validate() error {
	if e.Compression < 0 {
		return fmt.Errorf("engine.compression must not be negative, got %d", e.Compression)
	}
	if e.LongStringThreshold < 0 {
		return fmt.Errorf("engine.long_string_threshold must not be negative, got %d", e.LongStringThreshold)
	}
	if e.FloatFormat != "" {
		if err := codec.ValidateFloatFormat(e.FloatFormat); err != nil {
			return fmt.Errorf("engine.float_format: %w", err)
		}
	}
	return nil
}

// Options converts the engine settings into sqlfile options.
func (e *EngineConfig) Options(logger *slog.Logger) sqlfile.Options {
	return sqlfile.Options{
		Logger:              logger,
		Compression:         e.Compression,
		FloatFormat:         e.FloatFormat,
		LongStringThreshold: e.LongStringThreshold,
		IgnoreVerification:  e.IgnoreVerification,
	}
}

// ProjectConfig holds the configuration of an objsql project.
type ProjectConfig struct {
	Target *TargetConfig `koanf:"target" yaml:"target"`
	Engine *EngineConfig `koanf:"engine" yaml:"engine"`
}

// Validate checks the target and engine sections.
func (c *ProjectConfig) Validate() error {
	if c.Target == nil {
		return fmt.Errorf("target is required")
	}
	if err := c.Target.Validate(); err != nil {
		return err
	}
	if c.Engine != nil {
		return c.Engine.Validate()
	}
	return nil
}
