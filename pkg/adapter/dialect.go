package adapter

import (
	"fmt"
	"strings"
)

// PlaceholderStyle is the bind parameter syntax of a backend.
type PlaceholderStyle int

// Placeholder styles.
const (
	// PlaceholderQuestion uses ? for every parameter (sqlite, duckdb).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar uses $1, $2, ... (postgres).
	PlaceholderDollar
)

// Dialect holds the SQL differences between storage backends.
type Dialect struct {
	Name        string
	Placeholder PlaceholderStyle
	// Goose is the migration dialect name. Empty means migrations are not
	// supported and the embedded schema is applied directly.
	Goose string
	// IDType is the column type of object ids.
	IDType string
}

// FormatPlaceholder returns the placeholder for the 1-based parameter index.
func (d *Dialect) FormatPlaceholder(index int) string {
	if d.Placeholder == PlaceholderDollar {
		return fmt.Sprintf("$%d", index)
	}
	return "?"
}

// Placeholders returns n comma separated placeholders starting at index from.
func (d *Dialect) Placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range n {
		parts[i] = d.FormatPlaceholder(from + i)
	}
	return strings.Join(parts, ", ")
}

// QuoteIdentifier quotes a table or column name.
func (d *Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Rebind rewrites the ? placeholders of query into the dialect's style.
func (d *Dialect) Rebind(query string) string {
	if d.Placeholder != PlaceholderDollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.FormatPlaceholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
