package commands

import (
	"fmt"

	"github.com/leapstack-labs/objsql/internal/cli/output"
	"github.com/leapstack-labs/objsql/internal/demo"
	"github.com/spf13/cobra"
)

// NewDemoCommand creates the demo command.
func NewDemoCommand() *cobra.Command {
	var events int
	var prefix string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Write sample events",
		Long: `Write sample events as keys named <prefix>-<n>.

Each event holds an embedded vertex, two tracks that share a calibration and
reference each other, and a custom streamed calibration class.`,
		Example: `  objsql demo --events 10
  objsql keys`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if events < 1 {
				return fmt.Errorf("--events must be at least 1, got %d", events)
			}
			return runDemo(cmd, prefix, events)
		},
	}

	cmd.Flags().IntVarP(&events, "events", "n", 3, "Number of events to write")
	cmd.Flags().StringVar(&prefix, "prefix", "event", "Key name prefix")
	return cmd
}

func runDemo(cmd *cobra.Command, prefix string, events int) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	type written struct {
		Key     string `json:"key"`
		First   int64  `json:"first_obj_id"`
		Last    int64  `json:"last_obj_id"`
		Objects int64  `json:"objects"`
	}
	out := make([]written, 0, events)
	for i := 1; i <= events; i++ {
		name := fmt.Sprintf("%s-%d", prefix, i)
		key, err := cmdCtx.File.WriteObject(cmd.Context(), name, demo.Sample(int64(i)), nil)
		if err != nil {
			return err
		}
		out = append(out, written{Key: key.Name, First: key.FirstObjID, Last: key.LastObjID, Objects: objectCount(key)})
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}
	for _, w := range out {
		r.Success(fmt.Sprintf("Wrote %s (objects %d-%d)", w.Key, w.First, w.Last))
	}
	return nil
}
