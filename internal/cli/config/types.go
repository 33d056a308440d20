// Package config provides configuration management for the objsql CLI.
//
// The shared project types (TargetConfig, EngineConfig) live in
// internal/config and are re-exported here via type aliases for convenience.
package config

import (
	sharedcfg "github.com/leapstack-labs/objsql/internal/config"
)

// TargetConfig is an alias for the shared target configuration.
type TargetConfig = sharedcfg.TargetConfig

// EngineConfig is an alias for the shared engine configuration.
type EngineConfig = sharedcfg.EngineConfig

// Config holds all CLI configuration options.
type Config struct {
	Environment  string               `koanf:"environment"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"output"`
	Target       *TargetConfig        `koanf:"target"`
	Engine       *EngineConfig        `koanf:"engine"`
	Environments map[string]EnvConfig `koanf:"environments"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	Target *TargetConfig `koanf:"target"`
	Engine *EngineConfig `koanf:"engine"`
}

// Output modes.
const (
	OutputAuto     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	OutputText     = "text"
	OutputMarkdown = "markdown"
	OutputJSON     = "json"
)

// Default configuration values.
const (
	DefaultEnv    = ""
	DefaultOutput = OutputAuto
)
