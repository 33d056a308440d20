// Package commands implements the objsql subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/objsql/internal/cli/config"
	"github.com/leapstack-labs/objsql/internal/cli/output"
	"github.com/leapstack-labs/objsql/internal/demo"
	"github.com/leapstack-labs/objsql/pkg/adapter"
	"github.com/leapstack-labs/objsql/pkg/sqlfile"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	File     *sqlfile.File
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with an open database and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx, err := NewCommandContextWithoutFile(cmd)
	if err != nil {
		return nil, nil, err
	}

	f, err := openFile(cmd, cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.File = f

	cleanup := func() {
		if err := f.Close(); err != nil {
			cmdCtx.Logger.Warn("failed to close database", "error", err.Error())
		}
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutFile creates a CommandContext without a database.
// Useful for commands that don't need database access.
func NewCommandContextWithoutFile(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}, nil
}

// getConfig returns the current configuration, loading it from the
// environment when no command loaded it yet.
func getConfig() (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	return config.LoadConfig("", nil)
}

func openFile(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*sqlfile.File, error) {
	if err := ensureDatabaseDir(cfg); err != nil {
		return nil, err
	}
	logger.Debug("opening database", "type", cfg.Target.Type, "database", cfg.Target.Database)
	return sqlfile.Open(cmd.Context(), cfg.Target.AdapterConfig(), demo.Registry(), cfg.Engine.Options(logger))
}

// ensureDatabaseDir creates the directory of a file database.
func ensureDatabaseDir(cfg *config.Config) error {
	if !cfg.Target.IsFileBased() || cfg.Target.Database == adapter.MemoryPath {
		return nil
	}
	dir := filepath.Dir(cfg.Target.Database)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}
