package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/geoflow/geoflow/core/config"
	"github.com/geoflow/geoflow/core/infrastructure/di"
	"github.com/geoflow/geoflow/core/infrastructure/logging"
	transporthttp "github.com/geoflow/geoflow/core/infrastructure/transport/http"
	"github.com/geoflow/geoflow/core/logger"
	"github.com/geoflow/geoflow/core/observability"
)

const (
	defaultPort    = "8080"
	connectTimeout = 10 * time.Second
	shutdownBudget = 10 * time.Second
)

// Runtime represents the GeoFlow runtime server
type Runtime struct {
	cfg       *config.Config
	port      string
	version   string
	telemetry bool

	container  *di.Container
	httpServer *transporthttp.Server
	providers  *observability.Providers

	stopOnce sync.Once
	stopErr  error
}

// NewRuntime wires the runtime from cfg. Store connections are opened here
// so a misconfigured backend fails before the port is bound.
func NewRuntime(cfg *config.Config, port, version string, opts ...RuntimeOption) (*Runtime, error) {
	if port == "" {
		port = defaultPort
	}
	if cfg == nil {
		cfg = config.Default()
	}

	r := &Runtime{
		cfg:       cfg,
		port:      port,
		version:   version,
		telemetry: true,
	}
	for _, opt := range opts {
		opt(r)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.container = container

	log := logging.New("runtime")
	log.Infof("Session store: %s", container.Store.Name())
	log.Infof("Loaded %d workflow template(s)", len(container.Selector.Templates()))
	return r, nil
}

// Start starts the runtime server and blocks until SIGTERM/SIGINT
func (r *Runtime) Start() error {
	if err := r.StartAsync(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	<-quit

	return r.Stop()
}

// StartAsync starts the runtime server without blocking
func (r *Runtime) StartAsync() error {
	log := logger.New("runtime")
	ctx := context.Background()

	if r.telemetry {
		providers, err := observability.Setup(ctx, r.version)
		if err != nil {
			return log.Errorf("failed to set up telemetry: %w", err)
		}
		r.providers = providers
	}

	if err := r.container.Start(ctx); err != nil {
		r.abortStart()
		return err
	}

	var opts []transporthttp.ServerOption
	if r.container.RateLimiter != nil {
		rl := r.cfg.Server.RateLimit
		opts = append(opts, transporthttp.WithRateLimit(transporthttp.RateLimitOptions{
			Limiter:  r.container.RateLimiter,
			Prefix:   r.cfg.Store.KeyPrefix,
			Requests: rl.Requests,
			Window:   rl.Window,
		}))
		log.Infof("Rate limiting enabled: %d request(s) per %s", rl.Requests, rl.Window)
	}

	r.httpServer = transporthttp.NewServer(r.port, opts...)
	shutdownCtx, shutdown := context.WithCancel(ctx)
	r.httpServer.SetShutdownFunc(shutdown)
	transporthttp.RegisterRoutes(r.httpServer.Router(), r.container.WorkflowService, r.container.Driver, r.version, shutdownCtx)

	if err := r.httpServer.StartAsync(); err != nil {
		shutdown()
		r.httpServer = nil
		r.abortStart()
		return log.Errorf("%w", err)
	}
	return nil
}

// abortStart releases what a failed StartAsync already acquired. A later Stop
// finds nothing left to release.
func (r *Runtime) abortStart() {
	log := logging.New("runtime")
	if err := r.container.Close(); err != nil {
		log.PrintError("Error closing container", err)
	}
	if r.providers != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
		defer cancel()
		if err := r.providers.Shutdown(ctx); err != nil {
			log.PrintError("Error shutting down telemetry", err)
		}
		r.providers = nil
	}
}

// ReloadTemplates re-reads the workflow template file. Existing sessions keep their steps.
func (r *Runtime) ReloadTemplates() error {
	log := logger.New("runtime")
	if err := r.container.Selector.Reload(); err != nil {
		return log.Errorf("template reload failed, keeping previous templates: %w", err)
	}
	log.Successf("Reloaded %d workflow template(s)", len(r.container.Selector.Templates()))
	return nil
}

// Port returns the port the runtime serves on
func (r *Runtime) Port() string {
	return r.port
}

// Config returns the configuration the runtime was built from
func (r *Runtime) Config() *config.Config {
	return r.cfg
}

// Stop drains HTTP traffic first, then stops the driver and flushes telemetry.
// Safe to call more than once.
func (r *Runtime) Stop() error {
	r.stopOnce.Do(func() {
		log := logging.New("runtime")
		log.Infof("Shutting down runtime")

		var httpErr error
		if r.httpServer != nil {
			httpErr = r.httpServer.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
		defer cancel()

		var g errgroup.Group
		g.Go(r.container.Close)
		if r.providers != nil {
			g.Go(func() error { return r.providers.Shutdown(ctx) })
		}
		if err := g.Wait(); err != nil {
			log.Warnf("Error during shutdown: %v", err)
			r.stopErr = err
			return
		}
		r.stopErr = httpErr
	})
	return r.stopErr
}
