package commands

import (
	"fmt"

	"github.com/leapstack-labs/objsql/internal/cli/output"
	"github.com/leapstack-labs/objsql/pkg/structure"
	"github.com/spf13/cobra"
)

// NewDumpCommand creates the dump command.
func NewDumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <key>",
		Short: "Print the structure tree of a stored key",
		Long: `Read a stored key and print the structure tree of the read pass:
objects, class versions, members and the stored values they consumed.

The tree is printed as YAML, or as JSON with --output json.`,
		Example: `  objsql dump event-1
  objsql dump event-1 --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, args[0])
		},
	}
}

func runDump(cmd *cobra.Command, name string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	root, err := cmdCtx.File.ReadStructure(cmd.Context(), name)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(root)
	case output.ModeMarkdown:
		r.Header(1, fmt.Sprintf("Structure of %s", name))
		r.Println("```yaml")
		if err := structure.Dump(r.Out(), root); err != nil {
			return err
		}
		r.Println("```")
		return nil
	default:
		return structure.Dump(r.Out(), root)
	}
}
