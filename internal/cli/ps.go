package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/shapeq/internal/domain"
)

func init() {
	psCmd.Flags().StringVar(&psAddr, "addr", "", "Control API address (default from config)")
	psCmd.Flags().StringVarP(&psMode, "mode", "m", "concurrent", "Scheduler: concurrent or sequential")
	rootCmd.AddCommand(psCmd)
}

var (
	psAddr string
	psMode string
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "Show the queue and finished tasks of a running server",
	RunE:  runPs,
}

func runPs(cmd *cobra.Command, args []string) error {
	addr := psAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr = net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	}

	snap, err := fetchSnapshot(&http.Client{Timeout: 5 * time.Second}, "http://"+addr, psMode)
	if err != nil {
		return err
	}
	return printSnapshot(os.Stdout, snap, time.Now())
}

func fetchSnapshot(hc *http.Client, baseURL, mode string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	resp, err := hc.Get(baseURL + "/api/" + mode + "/state")
	if err != nil {
		return snap, fmt.Errorf("is `shapeq serve` running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return snap, fmt.Errorf("GET state: %d %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode state: %w", err)
	}
	return snap, nil
}

func printSnapshot(out io.Writer, snap domain.Snapshot, now time.Time) error {
	if snap.Pending() == 0 && len(snap.Completed) == 0 && len(snap.Failed) == 0 {
		fmt.Fprintf(out, "No tasks submitted to the %s scheduler.\n", snap.Scheduler)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tID\tKIND\tLABEL\tTIME")
	row := func(state string, t domain.TaskInstance, d time.Duration) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", state, t.ID, t.Kind, t.Label, d.Round(time.Millisecond))
	}
	for _, t := range snap.InFlight {
		row("in-flight", t, now.Sub(t.SubmittedAt))
	}
	for _, t := range snap.Queue {
		row("queued", t, now.Sub(t.SubmittedAt))
	}
	for _, t := range snap.Completed {
		row("completed", t, t.Elapsed())
	}
	for _, t := range snap.Failed {
		row("failed", t, t.Elapsed())
	}
	return w.Flush()
}
