package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	intconfig "github.com/leapstack-labs/objsql/internal/config"
	"github.com/leapstack-labs/objsql/internal/demo"
	"github.com/leapstack-labs/objsql/pkg/sqlfile"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var targetType string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new objsql project",
		Long: `Initialize a new objsql project with a default configuration.

This creates:
  - objsql.yaml configuration file
  - the database with its metadata tables (file based targets only)

Network targets such as postgres are migrated on first use.`,
		Example: `  # Initialize in current directory
  objsql init

  # Initialize a DuckDB project in a new directory
  objsql init my-project --target-type duckdb

  # Force overwrite existing config
  objsql init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, targetType, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().StringVar(&targetType, "target-type", intconfig.DefaultTargetType, "Database type (sqlite|duckdb|postgres)")
	_ = cmd.RegisterFlagCompletionFunc("target-type", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"sqlite", "duckdb", "postgres"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// initTarget returns the target written by init for targetType.
func initTarget(targetType string) *intconfig.TargetConfig {
	t := &intconfig.TargetConfig{Type: strings.ToLower(targetType)}
	switch t.Type {
	case "duckdb":
		t.Database = "objects.duckdb"
	case "postgres":
		t.Host = "localhost"
		t.Database = "objsql"
		t.User = "${PGUSER}"
		t.Password = "${PGPASSWORD}"
	default:
		t.Database = intconfig.DefaultDatabase
	}
	t.ApplyDefaults()
	return t
}

func runInit(cmd *cobra.Command, dir, targetType string, force bool) error {
	cmdCtx, err := NewCommandContextWithoutFile(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	project := intconfig.DefaultProjectConfig()
	project.Target = initTarget(targetType)
	if err := project.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	path, err := intconfig.WriteFile(dir, project, force)
	if err != nil {
		return err
	}
	r.Success(fmt.Sprintf("Created %s", path))

	if !project.Target.IsFileBased() {
		r.Muted("Set PGUSER and PGPASSWORD before running objsql against this target.")
		return nil
	}

	target := *project.Target
	target.Database = filepath.Join(dir, target.Database)
	f, err := sqlfile.Open(cmd.Context(), target.AdapterConfig(), demo.Registry(), project.Engine.Options(cmdCtx.Logger))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() { _ = f.Close() }()

	version, err := f.Store().MigrationVersion(cmd.Context())
	if err != nil {
		return err
	}
	r.Success(fmt.Sprintf("Initialized %s database %s (schema version %d)", target.Type, target.Database, version))
	return nil
}
