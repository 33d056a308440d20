package commands

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/leapstack-labs/objsql/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewClassesCommand creates the classes command.
func NewClassesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "List stored class tables",
		Long: `List every stored class version with its tables, columns and row counts.

A class without columns keeps all of its members in the raw table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClasses(cmd)
		},
	}
}

type classJSON struct {
	ClassName  string   `json:"class"`
	Version    int      `json:"version"`
	ClassTable string   `json:"class_table,omitempty"`
	RawTable   string   `json:"raw_table"`
	Columns    []string `json:"columns"`
	Rows       int64    `json:"rows"`
	RawEntries int64    `json:"raw_entries"`
}

func runClasses(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	classes, err := cmdCtx.File.Classes(cmd.Context())
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	out := make([]classJSON, 0, len(classes))
	for _, c := range classes {
		cols := make([]string, 0, len(c.Desc.Columns))
		for _, col := range c.Desc.Columns {
			cols = append(cols, col.Name)
		}
		cj := classJSON{
			ClassName:  c.Desc.ClassName,
			Version:    c.Desc.Version,
			RawTable:   c.Desc.RawTable,
			Columns:    cols,
			Rows:       c.Rows,
			RawEntries: c.RawEntries,
		}
		if c.Desc.HasClassTable() {
			cj.ClassTable = c.Desc.ClassTable
		}
		out = append(out, cj)
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Classes (%d total)", len(out)))
	rows := make([][]any, 0, len(out))
	for _, c := range out {
		table := c.ClassTable
		if table == "" {
			table = "-"
		}
		rows = append(rows, []any{
			c.ClassName,
			c.Version,
			table,
			strings.Join(c.Columns, ", "),
			humanize.Comma(c.Rows),
			humanize.Comma(c.RawEntries),
		})
	}
	r.Table([]string{"Class", "Version", "Table", "Columns", "Rows", "Raw entries"}, rows)
	return nil
}
