package config

import "strings"

// Default configuration values.
const (
	DefaultTargetType          = "sqlite"
	DefaultDatabase            = "objects.db"
	DefaultFloatFormat         = "%g"
	DefaultLongStringThreshold = 255
	DefaultPostgresPort        = 5432
)

// DefaultProjectConfig returns the configuration written by objsql init.
func DefaultProjectConfig() *ProjectConfig {
	cfg := &ProjectConfig{
		Target: &TargetConfig{Type: DefaultTargetType, Database: DefaultDatabase},
		Engine: &EngineConfig{LongStringThreshold: DefaultLongStringThreshold},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset sections with their defaults.
func (c *ProjectConfig) ApplyDefaults() {
	if c == nil {
		return
	}
	if c.Target == nil {
		c.Target = &TargetConfig{}
	}
	c.Target.ApplyDefaults()
	if c.Engine == nil {
		c.Engine = &EngineConfig{}
	}
	c.Engine.ApplyDefaults()
}

// ApplyDefaults applies default values based on the target type.
func (t *TargetConfig) ApplyDefaults() {
	if t == nil {
		return
	}
	if t.Type == "" {
		t.Type = DefaultTargetType
	}
	if strings.EqualFold(t.Type, "postgres") && t.Port == 0 {
		t.Port = DefaultPostgresPort
	}
}

// ApplyDefaults applies default engine settings.
func (e *EngineConfig) ApplyDefaults() {
	if e == nil {
		return
	}
	if e.FloatFormat == "" {
		e.FloatFormat = DefaultFloatFormat
	}
}
