package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitTarget(t *testing.T) {
	tests := []struct {
		targetType string
		wantType   string
		wantDB     string
		wantPort   int
	}{
		{targetType: "sqlite", wantType: "sqlite", wantDB: "objects.db"},
		{targetType: "DuckDB", wantType: "duckdb", wantDB: "objects.duckdb"},
		{targetType: "postgres", wantType: "postgres", wantDB: "objsql", wantPort: 5432},
	}

	for _, tt := range tests {
		t.Run(tt.targetType, func(t *testing.T) {
			target := initTarget(tt.targetType)
			assert.Equal(t, tt.wantType, target.Type)
			assert.Equal(t, tt.wantDB, target.Database)
			assert.Equal(t, tt.wantPort, target.Port)
			assert.Equal(t, tt.wantType != "postgres", target.IsFileBased())
		})
	}
}
