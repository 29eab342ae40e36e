package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tutu-network/shapeq/internal/daemon"
	"github.com/tutu-network/shapeq/internal/domain"
	"github.com/tutu-network/shapeq/internal/infra/catalog"
)

// loadConfig reads the config file and applies global flags.
func loadConfig() (daemon.Config, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// localRuntime is a daemon whose sequential scheduler talks to a delay
// service running in this process on a free port.
type localRuntime struct {
	*daemon.Daemon
	delay *http.Server
}

// startLocal builds a daemon for in-process runs. When backendURL is empty
// a private delay service is started and the backend points at it.
func startLocal(cfg daemon.Config, backendURL string) (*localRuntime, error) {
	cfg.Journal.Enabled = false

	var ln net.Listener
	if backendURL == "" {
		var err error
		ln, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("listen for local delay service: %w", err)
		}
		backendURL = "http://" + ln.Addr().String()
		cfg.Backend.Origin = cfg.Delay.AllowedOrigin
	}
	cfg.Backend.BaseURL = backendURL

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		if ln != nil {
			ln.Close()
		}
		return nil, err
	}

	rt := &localRuntime{Daemon: d}
	if ln != nil {
		rt.delay = &http.Server{Handler: d.Delay.Handler(), ReadTimeout: 30 * time.Second}
		go func() {
			if err := rt.delay.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.Logger.Sugar().Warnf("local delay service: %v", err)
			}
		}()
	}
	return rt, nil
}

// Close tears the schedulers down before stopping the delay service.
func (rt *localRuntime) Close() {
	rt.Daemon.Close()
	if rt.delay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rt.delay.Shutdown(ctx)
	}
}

// scheduler returns the daemon scheduler for mode.
func (rt *localRuntime) scheduler(mode string) (domain.Scheduler, error) {
	switch mode {
	case "concurrent":
		return rt.Concurrent, nil
	case "sequential":
		return rt.Sequential, nil
	default:
		return nil, fmt.Errorf("%w: %q (want concurrent or sequential)", domain.ErrUnknownScheduler, mode)
	}
}

// parseKinds converts command-line arguments into catalog kinds.
func parseKinds(cat *catalog.Catalog, args []string) ([]domain.TaskKind, error) {
	kinds := make([]domain.TaskKind, 0, len(args))
	for _, a := range args {
		k, err := cat.ParseKind(a)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// formatElapsed renders a duration as seconds with millisecond precision.
func formatElapsed(d time.Duration) string {
	return fmt.Sprintf("%6.3fs", d.Seconds())
}
