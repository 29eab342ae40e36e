package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/tutu-network/shapeq/internal/api"
	"github.com/tutu-network/shapeq/internal/health"
	"github.com/tutu-network/shapeq/internal/infra/backend"
	"github.com/tutu-network/shapeq/internal/infra/catalog"
	_ "github.com/tutu-network/shapeq/internal/infra/metrics" // Register Prometheus metrics
	"github.com/tutu-network/shapeq/internal/infra/observability"
	"github.com/tutu-network/shapeq/internal/infra/scheduler"
	"github.com/tutu-network/shapeq/internal/infra/sqlite"
)

// Daemon is the shapeq runtime. It wires together all services.
type Daemon struct {
	Config     Config
	Logger     *zap.Logger
	Catalog    *catalog.Catalog
	Journal    *sqlite.DB // nil when [journal] is disabled
	Backend    *backend.Client
	Concurrent *scheduler.Concurrent
	Sequential *scheduler.Sequential
	Server     *api.Server
	Delay      *api.DelayServer
	Health     *health.Checker

	recorders []*sqlite.Recorder
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Option customizes daemon construction.
type Option func(*buildOptions)

type buildOptions struct {
	logger *zap.Logger
	clock  clockwork.Clock
}

// WithLogger uses logger instead of building one from [logging].
func WithLogger(l *zap.Logger) Option {
	return func(o *buildOptions) { o.logger = l }
}

// WithClock drives scheduler timers and the delay service from clk.
func WithClock(clk clockwork.Clock) Option {
	return func(o *buildOptions) { o.clock = clk }
}

// New creates and initializes a Daemon with all services wired.
func New(opts ...Option) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg, opts...)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config, opts ...Option) (*Daemon, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}

	logger := o.logger
	if logger == nil {
		l, err := observability.SetupLogger(cfg.LogConfig())
		if err != nil {
			return nil, fmt.Errorf("setup logger: %w", err)
		}
		logger = l
	}

	cat, err := cfg.BuildCatalog()
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}

	// No client timeout: a backend that never answers holds the worker
	// until Close cancels the call.
	client := backend.New(cfg.Backend.BaseURL, cfg.Backend.Origin, &http.Client{})

	schedOpts := []scheduler.Option{scheduler.WithClock(o.clock), scheduler.WithLogger(logger)}
	d := &Daemon{
		Config:     cfg,
		Logger:     logger,
		Catalog:    cat,
		Backend:    client,
		Concurrent: scheduler.NewConcurrent(cat, schedOpts...),
		Sequential: scheduler.NewSequential(cat, client, schedOpts...),
		Delay:      api.NewDelayServer(cat, cfg.Delay.AllowedOrigin, o.clock, logger),
	}

	srv := api.NewServer(cat, logger, d.Concurrent, d.Sequential)
	srv.SetCORSOrigins(cfg.API.CORSOrigins)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	checks := []health.Check{}
	if cfg.Journal.Enabled {
		db, err := sqlite.Open(sqlite.MemoryPath)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		d.Journal = db
		d.recorders = []*sqlite.Recorder{
			sqlite.NewRecorder(db, d.Concurrent, logger),
			sqlite.NewRecorder(db, d.Sequential, logger),
		}
		srv.SetJournal(db)
		checks = append(checks, health.JournalCheck(db))
	}
	if addr, err := client.Addr(); err == nil {
		checks = append(checks, health.BackendCheck(addr, 2*time.Second))
	}
	d.Health = health.NewChecker(logger, checks...)
	srv.SetHealth(d.Health)
	d.Server = srv

	logger.Debug("daemon wired",
		zap.Int("kinds", cat.Len()),
		zap.Bool("journal", cfg.Journal.Enabled),
		zap.String("backend", client.BaseURL()))
	return d, nil
}

// APIAddr returns the control API listen address.
func (d *Daemon) APIAddr() string {
	return net.JoinHostPort(d.Config.API.Host, strconv.Itoa(d.Config.API.Port))
}

// DelayAddr returns the delay service listen address.
func (d *Daemon) DelayAddr() string {
	return net.JoinHostPort(d.Config.Delay.Host, strconv.Itoa(d.Config.Delay.Port))
}

// Serve starts the control API (and the embedded delay service when
// configured) and blocks until ctx ends or SIGINT/SIGTERM arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	healthDone := make(chan struct{})
	go func() {
		defer close(healthDone)
		d.Health.Run(ctx)
	}()
	defer func() {
		cancel()
		<-healthDone
	}()

	servers := []*namedServer{{
		name: "api",
		srv: &http.Server{
			Addr:        d.APIAddr(),
			Handler:     d.Server.Handler(),
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 2 * time.Minute,
		},
	}}
	if d.Config.Delay.Embedded {
		servers = append(servers, d.delayServer())
	}

	if d.Config.Telemetry.Prometheus {
		d.Logger.Info("metrics enabled", zap.String("url", "http://"+d.APIAddr()+"/metrics"))
	}
	return d.run(ctx, servers)
}

// ServeDelay runs only the delay simulation service.
func (d *Daemon) ServeDelay(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.run(ctx, []*namedServer{d.delayServer()})
}

// Close shuts down all daemon resources. Pending concurrent timers are
// cancelled and the in-flight sequential result is discarded.
func (d *Daemon) Close() {
	d.closeOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		if d.Concurrent != nil {
			_ = d.Concurrent.Close()
		}
		if d.Sequential != nil {
			_ = d.Sequential.Close()
		}
		for _, r := range d.recorders {
			r.Stop()
		}
		if d.Journal != nil {
			_ = d.Journal.Close()
		}
		_ = d.Logger.Sync()
	})
}

// ─── HTTP lifecycle ─────────────────────────────────────────────────────────

type namedServer struct {
	name string
	srv  *http.Server
}

func (d *Daemon) delayServer() *namedServer {
	return &namedServer{
		name: "delay",
		srv: &http.Server{
			Addr:        d.DelayAddr(),
			Handler:     d.Delay.Handler(),
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 2 * time.Minute,
		},
	}
}

// run listens on every server, then shuts all of them down when ctx ends or
// one of them fails.
func (d *Daemon) run(ctx context.Context, servers []*namedServer) error {
	errCh := make(chan error, len(servers))
	for _, s := range servers {
		// Streams and delayed responses end with ctx.
		s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
		ln, err := net.Listen("tcp", s.srv.Addr)
		if err != nil {
			d.shutdown(servers)
			return fmt.Errorf("listen %s on %s: %w", s.name, s.srv.Addr, err)
		}
		d.Logger.Info("serving", zap.String("server", s.name), zap.String("addr", ln.Addr().String()))
		go func(s *namedServer, ln net.Listener) {
			if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s server: %w", s.name, err)
			}
		}(s, ln)
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	d.shutdown(servers)
	return err
}

func (d *Daemon) shutdown(servers []*namedServer) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, s := range servers {
		if err := s.srv.Shutdown(ctx); err != nil {
			d.Logger.Warn("shutdown", zap.String("server", s.name), zap.Error(err))
		}
	}
}
