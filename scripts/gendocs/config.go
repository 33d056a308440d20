package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/objsql/internal/config"
)

// generateConfigDocs generates the objsql.yaml reference.
func generateConfigDocs(outDir string) error {
	log.Printf("Generating config docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := generateConfigurationDoc(outDir); err != nil {
		return fmt.Errorf("failed to generate configuration.md: %w", err)
	}
	log.Printf("  Generated configuration.md")

	return nil
}

// ConfigField represents a configuration field definition.
type ConfigField struct {
	Name        string
	Type        string
	Default     string
	Description string
	Section     string // "top", "target", "postgres", "engine", "advanced"
}

// getConfigSchema returns the fields of objsql.yaml.
// This is based on internal/config/types.go and internal/cli/config/types.go.
func getConfigSchema() []ConfigField {
	return []ConfigField{
		{Name: "environment", Type: "string", Description: "Environment whose sections override target and engine", Section: "top"},
		{Name: "output", Type: "string", Default: "auto", Description: "Output format: auto, text, markdown, json", Section: "top"},
		{Name: "verbose", Type: "bool", Default: "false", Description: "Log debug messages to stderr", Section: "top"},

		{Name: "type", Type: "string", Default: config.DefaultTargetType, Description: "Database type: sqlite, duckdb, postgres", Section: "target"},
		{Name: "database", Type: "string", Default: config.DefaultDatabase, Description: "File path relative to the project, or database name for postgres", Section: "target"},

		{Name: "host", Type: "string", Description: "Database host", Section: "postgres"},
		{Name: "port", Type: "int", Default: fmt.Sprint(config.DefaultPostgresPort), Description: "Database port", Section: "postgres"},
		{Name: "user", Type: "string", Description: "Database username", Section: "postgres"},
		{Name: "password", Type: "string", Description: "Database password", Section: "postgres"},

		{Name: "options", Type: "map[string]string", Description: "Driver options such as sslmode and search_path", Section: "advanced"},
		{Name: "params", Type: "map[string]any", Description: "Adapter settings: SQLite pragmas and busy_timeout, DuckDB extensions and settings", Section: "advanced"},

		{Name: "compression", Type: "int", Default: "0", Description: "Store arrays as runs of equal values when above zero", Section: "engine"},
		{Name: "float_format", Type: "string", Default: config.DefaultFloatFormat, Description: "fmt verb used for floating point values", Section: "engine"},
		{Name: "long_string_threshold", Type: "int", Default: fmt.Sprint(config.DefaultLongStringThreshold), Description: "Strings longer than this go to the strings table (0 disables)", Section: "engine"},
		{Name: "ignore_verification", Type: "bool", Default: "false", Description: "Skip type checks of read values", Section: "engine"},
	}
}

func fieldRows(fields []ConfigField, section string) [][]string {
	var rows [][]string
	for _, f := range fields {
		if f.Section != section {
			continue
		}
		defVal := "-"
		if f.Default != "" {
			defVal = InlineCode(f.Default)
		}
		rows = append(rows, []string{InlineCode(f.Name), f.Type, defVal, f.Description})
	}
	return rows
}

// generateConfigurationDoc generates the configuration reference page.
func generateConfigurationDoc(outDir string) error {
	w := NewMarkdownWriter()

	w.Frontmatter("Configuration", "objsql configuration reference")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph("objsql is configured via `objsql.yaml` (or `objsql.yml`) in your project root.")

	fields := getConfigSchema()
	headers := []string{"Field", "Type", "Default", "Description"}

	w.Header(2, "Top-Level Settings")
	w.Table(headers, fieldRows(fields, "top"))

	w.Header(2, "Target")
	w.Paragraph("The `target` section selects the database the objects are stored in.")
	w.Table(headers, fieldRows(fields, "target"))

	w.Header(3, "PostgreSQL")
	w.Table(headers, fieldRows(fields, "postgres"))
	w.CodeBlock("yaml", `target:
  type: postgres
  host: localhost
  user: ${PGUSER}
  password: ${PGPASSWORD}
  database: objsql
  options:
    sslmode: disable`)

	w.Header(3, "Advanced")
	w.Table(headers, fieldRows(fields, "advanced"))
	w.CodeBlock("yaml", `target:
  type: duckdb
  database: objects.duckdb
  params:
    extensions: [json]
    settings:
      threads: 4`)

	w.Header(2, "Engine")
	w.Paragraph("The `engine` section controls how values are written. Reading adapts to what was stored.")
	w.Table(headers, fieldRows(fields, "engine"))

	w.Header(2, "Environments")
	w.Paragraph("Sections under `environments.<name>` are merged over the base sections when that environment is selected with `--env`, `--target` or `OBJSQL_ENVIRONMENT`.")
	w.CodeBlock("yaml", `target:
  type: sqlite
  database: objects.db

environments:
  ci:
    target:
      database: ":memory:"
  prod:
    target:
      type: postgres
      host: db.example.com
      user: ${PGUSER}
      password: ${PGPASSWORD}
      database: objsql
    engine:
      compression: 1`)

	w.Header(2, "Environment Variables")
	w.Paragraph("Use `${VAR_NAME}` syntax to reference environment variables in target fields.")

	filename := filepath.Join(outDir, "configuration.md")
	return os.WriteFile(filename, w.Bytes(), 0600)
}
