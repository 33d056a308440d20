package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/leapstack-labs/objsql/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/objsql/pkg/adapters/sqlite"
)

// writeConfig writes content as objsql.yaml into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "objsql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("database", "", "database")
	flags.Int("compression", 0, "compression")
	flags.String("float-format", "", "float format")
	flags.StringP("output", "o", "", "output")
	flags.BoolP("verbose", "v", false, "verbose")
	return flags
}

const envConfig = `target:
  type: sqlite
  database: base.db
engine:
  compression: 1
environments:
  ci:
    target:
      database: ":memory:"
  prod:
    target:
      type: postgres
      host: db.internal
      database: objects
      user: ${TEST_OBJSQL_USER}
      password: ${TEST_OBJSQL_PASSWORD}
    engine:
      float_format: "%.17g"
`

// TestExpandEnvVars tests the expandEnvVars function.
func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR_ONE", "value_one")
	t.Setenv("TEST_VAR_TWO", "value_two")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single variable", input: "${TEST_VAR_ONE}", expected: "value_one"},
		{name: "multiple variables", input: "${TEST_VAR_ONE}/${TEST_VAR_TWO}", expected: "value_one/value_two"},
		{name: "unset variable stays as-is", input: "${UNSET_VARIABLE}", expected: "${UNSET_VARIABLE}"},
		{name: "no variables", input: "plain string", expected: "plain string"},
		{name: "empty string", input: "", expected: ""},
		{name: "mixed set and unset", input: "${TEST_VAR_ONE}:${UNSET_VAR}", expected: "value_one:${UNSET_VAR}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "engine.float_format", envKey("OBJSQL_ENGINE_FLOAT_FORMAT"))
	assert.Equal(t, "target.database", envKey("OBJSQL_TARGET_DATABASE"))
	assert.Equal(t, "output", envKey("OBJSQL_OUTPUT"))
}

// TestMergeTargetConfig tests the MergeTargetConfig function.
func TestMergeTargetConfig(t *testing.T) {
	t.Run("nil base returns override", func(t *testing.T) {
		override := &TargetConfig{Type: "sqlite", Database: "test.db"}
		assert.Equal(t, override, MergeTargetConfig(nil, override))
	})

	t.Run("nil override returns base", func(t *testing.T) {
		base := &TargetConfig{Type: "sqlite", Database: "test.db"}
		assert.Equal(t, base, MergeTargetConfig(base, nil))
	})

	t.Run("override replaces base fields", func(t *testing.T) {
		base := &TargetConfig{
			Type:     "postgres",
			Database: "base",
			Host:     "localhost",
			Options:  map[string]string{"sslmode": "disable", "search_path": "public"},
		}
		override := &TargetConfig{
			Database: "override",
			Options:  map[string]string{"sslmode": "require"},
		}

		result := MergeTargetConfig(base, override)

		assert.Equal(t, "postgres", result.Type)
		assert.Equal(t, "override", result.Database)
		assert.Equal(t, "localhost", result.Host)
		assert.Equal(t, map[string]string{"sslmode": "require", "search_path": "public"}, result.Options)
		assert.Equal(t, "disable", base.Options["sslmode"], "base must not be modified")
	})
}

func TestMergeEngineConfig(t *testing.T) {
	base := &EngineConfig{Compression: 1, FloatFormat: "%g", LongStringThreshold: 255}
	result := MergeEngineConfig(base, &EngineConfig{FloatFormat: "%.17g", IgnoreVerification: true})

	assert.Equal(t, EngineConfig{Compression: 1, FloatFormat: "%.17g", LongStringThreshold: 255, IgnoreVerification: true}, *result)
	assert.Equal(t, "%g", base.FloatFormat)
	assert.Same(t, base, MergeEngineConfig(base, nil))
}

func TestLoadConfigWithTarget_Defaults(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "target:\n  type: sqlite\n")

	cfg, err := LoadConfigWithTarget(cfgPath, "", nil)
	require.NoError(t, err)

	assert.Equal(t, cfgPath, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
	assert.Equal(t, filepath.Dir(cfgPath), cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(filepath.Dir(cfgPath), "objects.db"), cfg.Target.Database)
	assert.Equal(t, OutputAuto, cfg.OutputFormat)
	assert.Equal(t, "%g", cfg.Engine.FloatFormat)
	assert.Equal(t, 255, cfg.Engine.LongStringThreshold)
	assert.Zero(t, cfg.Engine.Compression)
}

func TestLoadConfigWithTarget_Environments(t *testing.T) {
	t.Setenv("TEST_OBJSQL_USER", "writer")
	t.Setenv("TEST_OBJSQL_PASSWORD", "secret123")
	cfgPath := writeConfig(t, envConfig)

	t.Run("base target", func(t *testing.T) {
		ResetConfig()
		cfg, err := LoadConfigWithTarget(cfgPath, "", nil)
		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Target.Type)
		assert.Equal(t, filepath.Join(filepath.Dir(cfgPath), "base.db"), cfg.Target.Database)
		assert.Equal(t, 1, cfg.Engine.Compression)
	})

	t.Run("memory database is not resolved", func(t *testing.T) {
		ResetConfig()
		cfg, err := LoadConfigWithTarget(cfgPath, "ci", nil)
		require.NoError(t, err)
		assert.Equal(t, ":memory:", cfg.Target.Database)
	})

	t.Run("network target with env vars", func(t *testing.T) {
		ResetConfig()
		cfg, err := LoadConfigWithTarget(cfgPath, "prod", nil)
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Target.Type)
		assert.Equal(t, "objects", cfg.Target.Database)
		assert.Equal(t, "db.internal", cfg.Target.Host)
		assert.Equal(t, 5432, cfg.Target.Port)
		assert.Equal(t, "writer", cfg.Target.User)
		assert.Equal(t, "secret123", cfg.Target.Password)
		assert.Equal(t, "%.17g", cfg.Engine.FloatFormat)
		assert.Equal(t, 1, cfg.Engine.Compression)
	})

	t.Run("unknown environment keeps base target", func(t *testing.T) {
		ResetConfig()
		cfg, err := LoadConfigWithTarget(cfgPath, "nonexistent", nil)
		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Target.Type)
	})
}

func TestLoadConfigWithTarget_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{
			name:      "unknown type",
			content:   "target:\n  type: mysql\n",
			errSubstr: "invalid target configuration",
		},
		{
			name:      "bad float format",
			content:   "target:\n  type: sqlite\nengine:\n  float_format: \"%s\"\n",
			errSubstr: "invalid engine configuration",
		},
		{
			name:      "bad output",
			content:   "output: html\ntarget:\n  type: sqlite\n",
			errSubstr: "invalid output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			_, err := LoadConfigWithTarget(writeConfig(t, tt.content), "", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

// TestLoadConfigWithTarget_Precedence tests flags > env vars > config file.
func TestLoadConfigWithTarget_Precedence(t *testing.T) {
	cfgPath := writeConfig(t, "target:\n  type: sqlite\nengine:\n  compression: 1\n  float_format: \"%.6g\"\n")
	t.Setenv("OBJSQL_ENGINE_COMPRESSION", "2")
	t.Setenv("OBJSQL_ENGINE_FLOAT_FORMAT", "%.9g")

	t.Run("env overrides file", func(t *testing.T) {
		ResetConfig()
		cfg, err := LoadConfigWithTarget(cfgPath, "", nil)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Engine.Compression)
		assert.Equal(t, "%.9g", cfg.Engine.FloatFormat)
	})

	t.Run("unset flag falls back to env", func(t *testing.T) {
		ResetConfig()
		cfg, err := LoadConfigWithTarget(cfgPath, "", testFlags())
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Engine.Compression)
	})

	t.Run("flag overrides env", func(t *testing.T) {
		ResetConfig()
		flags := testFlags()
		require.NoError(t, flags.Set("compression", "3"))
		require.NoError(t, flags.Set("output", "json"))
		require.NoError(t, flags.Set("verbose", "true"))

		cfg, err := LoadConfigWithTarget(cfgPath, "", flags)
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Engine.Compression)
		assert.Equal(t, "%.9g", cfg.Engine.FloatFormat)
		assert.Equal(t, OutputJSON, cfg.OutputFormat)
		assert.True(t, cfg.Verbose)
	})

	t.Run("database flag is relative to the working directory", func(t *testing.T) {
		ResetConfig()
		flags := testFlags()
		require.NoError(t, flags.Set("database", "local.db"))

		cfg, err := LoadConfigWithTarget(cfgPath, "", flags)
		require.NoError(t, err)
		want, err := filepath.Abs("local.db")
		require.NoError(t, err)
		assert.Equal(t, want, cfg.Target.Database)
	})
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))

	logger := slog.New(slog.DiscardHandler)
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, GetLogger(ctx))
	assert.Equal(t, logger, ctx.Value(LoggerKey()))
}
