package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/shapeq/internal/domain"
)

func init() {
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "concurrent", "Scheduler: concurrent or sequential")
	runCmd.Flags().StringVar(&runBackend, "backend", "", "Delay service URL for the sequential scheduler (default: start one in-process)")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Do not draw the progress bar")
	rootCmd.AddCommand(runCmd)
}

var (
	runMode    string
	runBackend string
	runQuiet   bool
)

var runCmd = &cobra.Command{
	Use:   "run KIND...",
	Short: "Submit tasks at once and print when each one finishes",
	Long: `Submit every KIND at t=0 to one scheduler and print each event with the
time elapsed since submission, until all tasks have finished or failed.

  shapeq run --mode concurrent circle triangle    # circle at 1s, triangle at 3s
  shapeq run --mode sequential circle triangle    # circle at 1s, triangle at 4s`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rt, err := startLocal(cfg, runBackend)
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer rt.Close()

	sch, err := rt.scheduler(runMode)
	if err != nil {
		return err
	}
	kinds, err := parseKinds(rt.Catalog, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var progress io.Writer = os.Stderr
	if runQuiet {
		progress = io.Discard
	}
	return runTasks(ctx, os.Stdout, progress, sch, kinds)
}

// runTasks submits kinds to sch and prints events until every task is
// terminal or ctx ends.
func runTasks(ctx context.Context, out, progress io.Writer, sch domain.Scheduler, kinds []domain.TaskKind) error {
	events, unsubscribe := sch.Subscribe(len(kinds)*4 + 8)
	defer unsubscribe()

	start := time.Now()
	pending := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		task, err := sch.Submit(k)
		if err != nil {
			return err
		}
		pending[task.ID] = true
	}

	pb := newProgressBar(progress, start, len(kinds))
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	done, failed := 0, 0
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			pb.finish()
			return ctx.Err()
		case now := <-ticker.C:
			pb.render(done, now)
		case ev, ok := <-events:
			if !ok {
				pb.finish()
				return domain.ErrSchedulerClosed
			}
			if !pending[ev.Task.ID] {
				continue
			}
			pb.finish()
			fmt.Fprintf(out, "%s  %-9s  %-12s  %s", formatElapsed(time.Since(start)), ev.Type, ev.Task.ID, ev.Task.Label)
			if ev.Error != "" {
				fmt.Fprintf(out, "  (%s)", ev.Error)
			}
			fmt.Fprintln(out)
			if ev.Type.IsTerminal() {
				delete(pending, ev.Task.ID)
				done++
				if ev.Type == domain.EventFailed {
					failed++
				}
			}
		}
	}
	pb.finish()

	fmt.Fprintf(out, "%d task(s) finished in %s", done, formatElapsed(time.Since(start)))
	if failed > 0 {
		fmt.Fprintf(out, ", %d failed", failed)
	}
	fmt.Fprintln(out)
	return nil
}
