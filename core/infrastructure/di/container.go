package di

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/geoflow/geoflow/core/application/driver"
	"github.com/geoflow/geoflow/core/application/overlay"
	"github.com/geoflow/geoflow/core/application/services"
	"github.com/geoflow/geoflow/core/application/templates"
	"github.com/geoflow/geoflow/core/config"
	"github.com/geoflow/geoflow/core/domain"
	"github.com/geoflow/geoflow/core/domain/interfaces"
	"github.com/geoflow/geoflow/core/infrastructure/store"
	"github.com/geoflow/geoflow/core/infrastructure/transport/http/middleware"
	"github.com/geoflow/geoflow/core/logger"
)

// Container holds all dependencies
type Container struct {
	Config          *config.Config
	Selector        *templates.Selector
	Store           interfaces.SessionStore
	Driver          *driver.Driver
	WorkflowService *services.WorkflowService
	RateLimiter     middleware.RateLimiter

	// limiterClient is closed separately when it is not the store's own connection
	limiterClient *redis.Client

	closeOnce sync.Once
	closeErr  error
}

// NewContainer wires the application from cfg. Nothing runs until Start.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	log := logger.New("di")

	selector, err := templates.LoadSelector(cfg.Templates.File)
	if err != nil {
		return nil, log.Errorf("failed to load workflow templates: %w", err)
	}

	sessionStore, err := store.New(ctx, StoreOptions(cfg))
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config:   cfg,
		Selector: selector,
		Store:    sessionStore,
	}

	if cfg.Server.RateLimit.Enabled {
		if err := c.openRateLimiter(ctx); err != nil {
			_ = sessionStore.Close()
			return nil, err
		}
	}

	c.Driver = driver.New(DriverConfig(cfg), selector, driver.WithStore(sessionStore))
	c.WorkflowService = services.NewWorkflowService(c.Driver, selector, MapConfig(cfg))
	return c, nil
}

func (c *Container) openRateLimiter(ctx context.Context) error {
	if rs, ok := c.Store.(*store.RedisStore); ok {
		c.RateLimiter = middleware.NewRedisRateLimiter(rs.Client())
		return nil
	}

	opts, err := redis.ParseURL(c.Config.Store.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid redis url for rate limiter: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("rate limiter redis unreachable: %w", err)
	}
	c.limiterClient = client
	c.RateLimiter = middleware.NewRedisRateLimiter(client)
	return nil
}

// Start restores persisted sessions and starts the driver loop
func (c *Container) Start(ctx context.Context) error {
	return c.Driver.Start(ctx)
}

// Close stops the driver, then releases store and limiter connections in
// parallel. Later calls return the first result.
func (c *Container) Close() error {
	c.closeOnce.Do(func() {
		if c.Driver != nil {
			c.Driver.Stop()
		}

		var g errgroup.Group
		if c.Store != nil {
			g.Go(c.Store.Close)
		}
		if c.limiterClient != nil {
			g.Go(c.limiterClient.Close)
		}
		c.closeErr = g.Wait()
	})
	return c.closeErr
}

// DriverConfig maps the workflow section onto driver settings
func DriverConfig(cfg *config.Config) driver.Config {
	dc := driver.DefaultConfig()
	dc.StepDelay = cfg.Workflow.StepDelay
	dc.WorkflowDelay = cfg.Workflow.WorkflowDelay
	dc.StrictEdits = cfg.Workflow.StrictEdits
	return dc
}

// StoreOptions maps the store section onto backend options
func StoreOptions(cfg *config.Config) store.Options {
	return store.Options{
		Backend:     cfg.Store.Backend,
		RedisURL:    cfg.Store.RedisURL,
		PostgresURL: cfg.Store.PostgresURL,
		KeyPrefix:   cfg.Store.KeyPrefix,
	}
}

// MapConfig overlays the configured viewport on the stock map settings
func MapConfig(cfg *config.Config) overlay.MapConfig {
	mc := overlay.Config()
	mc.Center = domain.Coordinates{Lat: cfg.Map.CenterLat, Lng: cfg.Map.CenterLng}
	mc.Zoom = cfg.Map.Zoom
	return mc
}
