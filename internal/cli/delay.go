package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tutu-network/shapeq/internal/daemon"
)

func init() {
	delayCmd.Flags().StringVar(&delayHost, "host", "", "Host to listen on (overrides config)")
	delayCmd.Flags().IntVar(&delayPort, "port", 0, "Port to listen on (overrides config)")
	delayCmd.Flags().StringVar(&delayOrigin, "origin", "", "Trusted browser origin (overrides config)")
	rootCmd.AddCommand(delayCmd)
}

var (
	delayHost   string
	delayPort   int
	delayOrigin string
)

var delayCmd = &cobra.Command{
	Use:   "delay",
	Short: "Run the delay simulation service alone",
	Long: `Serve GET /rectangle, /circle, /triangle and /line, each answering with
its own name after the catalog duration. Requests from browser origins other
than the trusted one are rejected.`,
	RunE: runDelay,
}

func runDelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if delayHost != "" {
		cfg.Delay.Host = delayHost
	}
	if delayPort > 0 {
		cfg.Delay.Port = delayPort
	}
	if delayOrigin != "" {
		cfg.Delay.AllowedOrigin = delayOrigin
	}
	cfg.Journal.Enabled = false

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.ServeDelay(context.Background())
}
