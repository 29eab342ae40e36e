package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tutu-network/shapeq/internal/tui"
)

func init() {
	watchCmd.Flags().StringVar(&watchBackend, "backend", "", "Delay service URL for the sequential scheduler (default: start one in-process)")
	rootCmd.AddCommand(watchCmd)
}

var watchBackend string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive side-by-side view of both schedulers",
	Long: `Open a terminal view with one pane per scheduler. Each key press
submits the same kind to both, so overlapping and additive durations can
be compared live. Logs go to the log file while the view is open.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The terminal belongs to the view.
	cfg.Logging.Outputs = []string{"file"}

	rt, err := startLocal(cfg, watchBackend)
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer rt.Close()

	app := tui.New(rt.Catalog, rt.Concurrent, rt.Sequential)
	defer app.Stop()

	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
