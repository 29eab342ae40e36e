package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tutu-network/shapeq/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoDelay, "no-delay", false, "Do not run the embedded delay service")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost    string
	servePort    int
	serveNoDelay bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler control API",
	Long: `Start the control API at localhost:7878 together with the delay
simulation service at localhost:3001 that the sequential scheduler calls.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveNoDelay {
		cfg.Delay.Embedded = false
	}

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Serve(context.Background())
}
