package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/objsql/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		params   *Params
		expected string
	}{
		{
			name:     "memory",
			path:     MemoryPath,
			params:   &Params{BusyTimeout: 5000},
			expected: "file::memory:?_pragma=busy_timeout%285000%29&_pragma=foreign_keys%281%29",
		},
		{
			name:     "file uses wal",
			path:     "objects.db",
			params:   &Params{BusyTimeout: 100},
			expected: "file:objects.db?_pragma=busy_timeout%28100%29&_pragma=foreign_keys%281%29&_pragma=journal_mode%28WAL%29",
		},
		{
			name:     "pragma override",
			path:     "objects.db",
			params:   &Params{BusyTimeout: 100, Pragmas: map[string]string{"journal_mode": "DELETE"}},
			expected: "file:objects.db?_pragma=busy_timeout%28100%29&_pragma=foreign_keys%281%29&_pragma=journal_mode%28DELETE%29",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildDSN(tt.path, tt.params))
		})
	}
}

func TestParseParams(t *testing.T) {
	p, err := parseParams(nil)
	require.NoError(t, err)
	assert.Equal(t, 5000, p.BusyTimeout)

	p, err = parseParams(map[string]any{
		"busy_timeout": "250",
		"pragmas":      map[string]any{"synchronous": "NORMAL"},
	})
	require.NoError(t, err)
	assert.Equal(t, 250, p.BusyTimeout)
	assert.Equal(t, map[string]string{"synchronous": "NORMAL"}, p.Pragmas)

	_, err = parseParams(map[string]any{"extensions": []any{"json"}})
	assert.Error(t, err)
}

func TestAdapter_Connect(t *testing.T) {
	ctx := context.Background()

	t.Run("in-memory", func(t *testing.T) {
		adp := New(nil)
		require.NoError(t, adp.Connect(ctx, adapter.Config{}))
		defer func() { _ = adp.Close() }()

		var fk int
		require.NoError(t, adp.Conn().QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		assert.Equal(t, 1, fk)
	})

	t.Run("file-based", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "objects.db")
		adp := New(nil)
		require.NoError(t, adp.Connect(ctx, adapter.Config{Path: path}))
		defer func() { _ = adp.Close() }()

		require.NoError(t, adp.Exec(ctx, "CREATE TABLE t (id INTEGER)"))
		_, err := os.Stat(path)
		assert.NoError(t, err)

		var mode string
		require.NoError(t, adp.Conn().QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", mode)
	})
}

func TestAdapter_Registered(t *testing.T) {
	a, err := adapter.NewAdapter(adapter.Config{Type: "sqlite"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Adapter{}, a)
	assert.Equal(t, "sqlite3", a.Dialect().Goose)
}
