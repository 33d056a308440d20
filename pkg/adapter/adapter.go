// Package adapter provides the database connections object graphs are stored in.
//
// Concrete adapters live in pkg/adapters/ and register themselves on import:
//
//	import _ "github.com/leapstack-labs/objsql/pkg/adapters/sqlite"
package adapter

import (
	"context"
	"database/sql"
)

// MemoryPath is the path of an in-memory database for file based adapters.
const MemoryPath = ":memory:"

// Config locates the database of a store.
type Config struct {
	// Type names a registered adapter.
	Type string
	// Path is the database file of file based adapters, in-memory when empty.
	Path string

	Host     string
	Port     int
	Database string
	User     string
	Password string

	// Options are connection string settings such as sslmode.
	Options map[string]string
	// Params are adapter specific settings, decoded with mapstructure.
	Params map[string]any
}

// Adapter opens and owns one database connection pool.
type Adapter interface {
	// Connect establishes a connection to the database.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection.
	Close() error

	// Conn returns the connection pool, nil before Connect.
	Conn() *sql.DB

	// Dialect returns the SQL differences of the backend.
	Dialect() *Dialect
}
