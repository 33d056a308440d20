package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <key>...",
		Aliases: []string{"rm"},
		Short:   "Delete stored keys",
		Long:    `Delete keys together with their objects, class rows, raw entries and long strings.`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			for _, name := range args {
				if err := cmdCtx.File.DeleteKey(cmd.Context(), name); err != nil {
					return fmt.Errorf("failed to delete %q: %w", name, err)
				}
				cmdCtx.Renderer.Success(fmt.Sprintf("Deleted %s", name))
			}
			return nil
		},
	}
}
