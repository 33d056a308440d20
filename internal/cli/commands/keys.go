package commands

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/leapstack-labs/objsql/internal/cli/output"
	"github.com/leapstack-labs/objsql/pkg/core"
	"github.com/spf13/cobra"
)

// NewKeysCommand creates the keys command.
func NewKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List stored keys",
		Long: `List every stored key with its class and object id range.

Output adapts to environment:
  - Terminal: Styled table
  - Piped/Scripted: Markdown table (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # List keys
  objsql keys

  # List keys as JSON
  objsql keys --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeys(cmd)
		},
	}
}

// keyJSON is the JSON representation of a key.
type keyJSON struct {
	ID         int64     `json:"id"`
	UUID       string    `json:"uuid"`
	Name       string    `json:"name"`
	ClassName  string    `json:"class"`
	FirstObjID int64     `json:"first_obj_id"`
	LastObjID  int64     `json:"last_obj_id"`
	Objects    int64     `json:"objects"`
	CreatedAt  time.Time `json:"created_at"`
}

func runKeys(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	keys, err := cmdCtx.File.Keys(cmd.Context())
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	if r.EffectiveMode() == output.ModeJSON {
		out := make([]keyJSON, 0, len(keys))
		for _, k := range keys {
			out = append(out, keyJSON{
				ID:         k.ID,
				UUID:       k.UUID,
				Name:       k.Name,
				ClassName:  k.ClassName,
				FirstObjID: k.FirstObjID,
				LastObjID:  k.LastObjID,
				Objects:    objectCount(k),
				CreatedAt:  k.CreatedAt,
			})
		}
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Keys (%d total)", len(keys)))
	if len(keys) == 0 {
		r.Muted("No keys stored. Run 'objsql demo' to write sample events.")
		return nil
	}
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []any{
			k.Name,
			k.ClassName,
			fmt.Sprintf("%d-%d", k.FirstObjID, k.LastObjID),
			objectCount(k),
			humanize.Time(k.CreatedAt),
		})
	}
	r.Table([]string{"Name", "Class", "Object IDs", "Objects", "Created"}, rows)
	return nil
}

func objectCount(k core.Key) int64 {
	return k.LastObjID - k.FirstObjID + 1
}
