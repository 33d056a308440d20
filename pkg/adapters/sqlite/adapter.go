// Package sqlite provides the default SQLite storage adapter for objsql.
//
// It uses the pure Go modernc.org/sqlite driver, so objsql files need no cgo.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/objsql/pkg/adapter"

	_ "modernc.org/sqlite" // sqlite driver
)

// MemoryPath is the path of an in-memory database.
const MemoryPath = adapter.MemoryPath

// Dialect is the SQLite dialect.
var Dialect = &adapter.Dialect{
	Name:        "sqlite",
	Placeholder: adapter.PlaceholderQuestion,
	Goose:       "sqlite3",
	IDType:      "INTEGER",
}

// Params holds SQLite-specific configuration.
// Parsed from adapter.Config.Params using mapstructure.
type Params struct {
	// Pragmas applied to every connection (e.g., synchronous: NORMAL)
	Pragmas map[string]string `mapstructure:"pragmas"`

	// BusyTimeout in milliseconds
	BusyTimeout int `mapstructure:"busy_timeout"`
}

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Dialect returns the SQL dialect for this adapter.
func (a *Adapter) Dialect() *adapter.Dialect {
	return Dialect
}

// Connect opens the database file at cfg.Path, creating it when missing.
// An empty path opens an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}
	path := cfg.Path
	if path == "" {
		path = MemoryPath
	}

	db, err := sql.Open("sqlite", buildDSN(path, params))
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a database of its own.
		db.SetMaxOpenConns(1)
	}

	a.DB = db
	a.Cfg = cfg
	if err := a.Ping(ctx); err != nil {
		return err
	}
	a.Logger.Debug("opened sqlite database", slog.String("path", path))
	return nil
}

func parseParams(raw map[string]any) (*Params, error) {
	p := &Params{BusyTimeout: 5000}
	if len(raw) == 0 {
		return p, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create params decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid sqlite params: %w", err)
	}
	return p, nil
}

// buildDSN adds the connection pragmas to path. Foreign keys are always on
// and file databases use WAL unless a journal_mode pragma is given.
func buildDSN(path string, p *Params) string {
	pragmas := map[string]string{
		"foreign_keys": "1",
		"busy_timeout": fmt.Sprint(p.BusyTimeout),
	}
	if path != MemoryPath {
		pragmas["journal_mode"] = "WAL"
	}
	for k, v := range p.Pragmas {
		pragmas[k] = v
	}

	names := make([]string, 0, len(pragmas))
	for k := range pragmas {
		names = append(names, k)
	}
	sort.Strings(names)

	q := url.Values{}
	for _, k := range names {
		q.Add("_pragma", fmt.Sprintf("%s(%s)", k, pragmas[k]))
	}
	return "file:" + path + "?" + q.Encode()
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
