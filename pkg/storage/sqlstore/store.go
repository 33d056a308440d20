// Package sqlstore persists flattened write passes in a relational database.
//
// Every (class, version) pair gets a raw table and, when some members map to
// columns, a class table. The objsql_* metadata tables record keys, object
// infos, table layouts and out-of-line strings. Store implements core.Storage
// for read passes.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/leapstack-labs/objsql/pkg/adapter"
	"github.com/leapstack-labs/objsql/pkg/core"
	"go.uber.org/multierr"
)

// querier is the query surface shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a core.Storage over a database/sql connection.
// It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect *adapter.Dialect
	logger  *slog.Logger

	mu    sync.RWMutex
	descs map[string]*core.TableDescriptor
}

var _ core.Storage = (*Store)(nil)

// New creates a store. If logger is nil, a discard logger is used.
func New(db *sql.DB, dialect *adapter.Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger,
		descs:   make(map[string]*core.TableDescriptor),
	}
}

// q rewrites a query written with ? placeholders for the store's dialect.
func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

func (s *Store) ident(name string) string {
	return s.dialect.QuoteIdentifier(name)
}

// inTx runs fn in a transaction, committing when fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cerr)
		}
	}()
	return fn(tx)
}

// EnsureDescriptor records desc and creates its tables. A pair already stored
// with another layout is a schema mismatch.
func (s *Store) EnsureDescriptor(ctx context.Context, desc *core.TableDescriptor) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := s.ensureDescriptor(ctx, tx, desc)
		return err
	})
}

// ensureDescriptor returns the stored descriptor of desc's pair, recording it
// first when the pair is new. Its table names may differ from desc's.
func (s *Store) ensureDescriptor(ctx context.Context, q querier, desc *core.TableDescriptor) (*core.TableDescriptor, error) {
	stored, err := s.loadDescriptor(ctx, q, desc.ClassName, desc.Version)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		if !stored.SameLayout(desc) {
			return nil, core.Errorf(core.SchemaMismatch, "EnsureDescriptor", "class %s version %d already stored with another layout", desc.ClassName, desc.Version)
		}
		return stored, nil
	}

	placed, err := s.placeTables(ctx, q, desc)
	if err != nil {
		return nil, err
	}
	hasClassTable := 0
	if placed.HasClassTable() {
		hasClassTable = 1
	}
	if _, err := q.ExecContext(ctx, s.q(
		`INSERT INTO objsql_classes (class_name, version, class_table, raw_table, has_class_table) VALUES (?, ?, ?, ?, ?)`),
		placed.ClassName, placed.Version, placed.ClassTable, placed.RawTable, hasClassTable,
	); err != nil {
		return nil, fmt.Errorf("failed to record class %s version %d: %w", placed.ClassName, placed.Version, err)
	}
	for i, c := range placed.Columns {
		if _, err := q.ExecContext(ctx, s.q(
			`INSERT INTO objsql_columns (class_name, version, ordinal, column_name, member_name, type_tag, kind) VALUES (?, ?, ?, ?, ?, ?, ?)`),
			placed.ClassName, placed.Version, i, c.Name, c.Member, c.Tag, c.Kind.String(),
		); err != nil {
			return nil, fmt.Errorf("failed to record column %s of %s: %w", c.Name, placed.ClassTable, err)
		}
	}

	for _, ddl := range s.tableDDL(placed) {
		if _, err := q.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("failed to create tables of %s version %d: %w", placed.ClassName, placed.Version, err)
		}
	}
	s.logger.Debug("created class tables",
		"class", placed.ClassName,
		"version", placed.Version,
		"class_table", placed.ClassTable,
		"columns", len(placed.Columns))
	return placed, nil
}

// placeTables returns a copy of desc whose table names no recorded class
// uses. Distinct class names can share a base name, e.g. ns::Hit and ns__Hit;
// the later one gets a numeric suffix.
func (s *Store) placeTables(ctx context.Context, q querier, desc *core.TableDescriptor) (*core.TableDescriptor, error) {
	placed := *desc
	base := core.TableBaseName(desc.ClassName)
	for n := 2; ; n++ {
		var taken int
		classTable, rawTable := strings.ToLower(placed.ClassTable), strings.ToLower(placed.RawTable)
		if err := q.QueryRowContext(ctx, s.q(
			`SELECT COUNT(*) FROM objsql_classes WHERE LOWER(class_table) IN (?, ?) OR LOWER(raw_table) IN (?, ?)`),
			classTable, rawTable, classTable, rawTable,
		).Scan(&taken); err != nil {
			return nil, fmt.Errorf("failed to check table names of %s: %w", desc.ClassName, err)
		}
		if taken == 0 {
			return &placed, nil
		}
		placed.SetTableBase(fmt.Sprintf("%s_%d", base, n))
	}
}

// tableDDL returns the statements creating the tables of desc.
func (s *Store) tableDDL(desc *core.TableDescriptor) []string {
	var stmts []string
	if desc.HasClassTable() {
		cols := []string{"obj_id " + s.dialect.IDType + " PRIMARY KEY"}
		for _, c := range desc.Columns {
			cols = append(cols, s.ident(c.Name)+" TEXT")
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
			s.ident(desc.ClassTable), strings.Join(cols, ", ")))
	}
	stmts = append(stmts, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (obj_id %s NOT NULL, raw_id INTEGER NOT NULL, %s TEXT NOT NULL, %s TEXT NOT NULL, %s TEXT NOT NULL, PRIMARY KEY (obj_id, raw_id))",
		s.ident(desc.RawTable), s.dialect.IDType, s.ident("field"), s.ident("type"), s.ident("value")))
	return stmts
}

// loadDescriptor reads a stored descriptor, nil when the pair is unknown.
func (s *Store) loadDescriptor(ctx context.Context, q querier, className string, version int) (*core.TableDescriptor, error) {
	desc := &core.TableDescriptor{ClassName: className, Version: version}
	var hasClassTable int
	err := q.QueryRowContext(ctx, s.q(
		`SELECT class_table, raw_table, has_class_table FROM objsql_classes WHERE class_name = ? AND version = ?`),
		className, version,
	).Scan(&desc.ClassTable, &desc.RawTable, &hasClassTable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up class %s version %d: %w", className, version, err)
	}

	cols, err := s.loadColumns(ctx, q, className, version)
	if err != nil {
		return nil, err
	}
	desc.Columns = cols
	if (hasClassTable == 1) != desc.HasClassTable() {
		return nil, core.Errorf(core.SchemaMismatch, "FindTableDescriptor", "class %s version %d has inconsistent column metadata", className, version)
	}
	return desc, nil
}

func (s *Store) loadColumns(ctx context.Context, q querier, className string, version int) ([]core.ClassColumn, error) {
	rows, err := q.QueryContext(ctx, s.q(
		`SELECT column_name, member_name, type_tag, kind FROM objsql_columns WHERE class_name = ? AND version = ? ORDER BY ordinal`),
		className, version)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s version %d: %w", className, version, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []core.ClassColumn
	for rows.Next() {
		var c core.ClassColumn
		var kind string
		if err := rows.Scan(&c.Name, &c.Member, &c.Tag, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		c.Kind = core.ParseColumnKind(kind)
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return cols, nil
}

// FindTableDescriptor implements core.Storage. Found descriptors are cached;
// a stored layout never changes.
func (s *Store) FindTableDescriptor(ctx context.Context, className string, version int) (*core.TableDescriptor, error) {
	key := core.DescriptorKey(className, version)
	s.mu.RLock()
	d, ok := s.descs[key]
	s.mu.RUnlock()
	if ok {
		return d, nil
	}

	d, err := s.loadDescriptor(ctx, s.db, className, version)
	if err != nil || d == nil {
		return nil, err
	}
	s.mu.Lock()
	s.descs[key] = d
	s.mu.Unlock()
	return d, nil
}
