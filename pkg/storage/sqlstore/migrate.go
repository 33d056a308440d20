package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const metadataMigration = "migrations/00001_metadata.sql"

// Migrate creates or upgrades the metadata tables.
//
// Backends goose supports are migrated with it. Others get the initial schema
// applied once.
func (s *Store) Migrate(ctx context.Context) error {
	if s.dialect.Goose == "" {
		return s.applySchema(ctx)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(s.dialect.Goose); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the current migration version.
func (s *Store) MigrationVersion(ctx context.Context) (int64, error) {
	if s.dialect.Goose == "" {
		ok, err := s.hasMetadata(ctx)
		if err != nil || !ok {
			return 0, err
		}
		return 1, nil
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(s.dialect.Goose); err != nil {
		return 0, fmt.Errorf("failed to set dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, s.db)
}

func (s *Store) applySchema(ctx context.Context) error {
	ok, err := s.hasMetadata(ctx)
	if err != nil || ok {
		return err
	}
	for _, stmt := range schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	s.logger.Debug("initialized metadata schema", "dialect", s.dialect.Name)
	return nil
}

func (s *Store) hasMetadata(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`), "objsql_keys").Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return n > 0, nil
}

// schemaStatements returns the statements of the up part of the metadata migration.
func schemaStatements() []string {
	data, err := migrations.ReadFile(metadataMigration)
	if err != nil {
		panic(fmt.Sprintf("embedded migration missing: %v", err))
	}
	up := string(data)
	if i := strings.Index(up, "-- +goose Down"); i >= 0 {
		up = up[:i]
	}
	var stmts []string
	for _, part := range strings.Split(up, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			stmts = append(stmts, strings.Join(lines, "\n"))
		}
	}
	return stmts
}
