package commands

import (
	"fmt"
	"runtime"
	"time"

	"github.com/leapstack-labs/objsql/internal/cli/output"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	var jobs int

	cmd := &cobra.Command{
		Use:   "check [key]...",
		Short: "Verify that stored keys read back",
		Long: `Read every stored key (or the given ones) through a full read pass and
report the keys that fail. Reads run concurrently.`,
		Example: `  # Check all keys with 4 readers
  objsql check --jobs 4

  # Check one key
  objsql check event-1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, jobs)
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.GOMAXPROCS(0), "Number of concurrent reads")
	return cmd
}

// checkResult is the outcome of reading one key.
type checkResult struct {
	Key      string `json:"key"`
	Class    string `json:"class,omitempty"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

func runCheck(cmd *cobra.Command, names []string, jobs int) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if len(names) == 0 {
		keys, err := cmdCtx.File.Keys(ctx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			names = append(names, k.Name)
		}
	}

	results := make([]checkResult, len(names))
	var g errgroup.Group
	g.SetLimit(max(jobs, 1))
	for i, name := range names {
		g.Go(func() error {
			start := time.Now()
			_, cl, err := cmdCtx.File.ReadObject(ctx, name, nil)
			res := checkResult{Key: name, Duration: time.Since(start).Round(time.Microsecond).String()}
			if err != nil {
				res.Error = err.Error()
				cmdCtx.Logger.Warn("key failed to read", "key", name, "error", err.Error())
			} else {
				res.Class = cl.Name()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(results); err != nil {
			return err
		}
	} else {
		rows := make([][]any, 0, len(results))
		for _, res := range results {
			status := "ok"
			if res.Error != "" {
				status = res.Error
			}
			rows = append(rows, []any{res.Key, res.Class, res.Duration, status})
		}
		r.Header(1, fmt.Sprintf("Checked %d keys", len(results)))
		r.Table([]string{"Key", "Class", "Duration", "Status"}, rows)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d keys failed to read", failed, len(results))
	}
	return nil
}
