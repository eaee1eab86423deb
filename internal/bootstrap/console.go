package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/target/opsconsole/config"
	"github.com/target/opsconsole/internal/adapters/backend"
	"github.com/target/opsconsole/internal/observability/metrics"
	"github.com/target/opsconsole/internal/observability/statsd"
	"github.com/target/opsconsole/internal/ports"
	"github.com/target/opsconsole/internal/seed"
	"github.com/target/opsconsole/internal/service"
)

// Console holds the service graph for one operator console.
// Build it once with NewConsole and pass it by reference.
type Console struct {
	Config    config.AppConfig
	Sessions  *service.SessionManager
	Directory *service.DirectoryCache
	Users     *service.BiometricDirectory
	// Resolver maps recognized keys to identities: the fallback set merged over the user list.
	Resolver *service.Resolver
	Metrics  *metrics.Console

	backend *backend.Client
	store   ports.DeviceStore
	logger  *slog.Logger

	mu      sync.Mutex
	login   *service.LoginController
	closers []io.Closer
}

// ConsoleOverrides replaces adapters NewConsole would otherwise build from config.
// Tests use it to run the graph against stubs.
type ConsoleOverrides struct {
	Store    ports.DeviceStore
	Camera   ports.Camera
	Detector ports.Detector
	Sink     statsd.Sink
}

// NewConsole builds the console from cfg. When cfg.Directory.WarmOnStart is set it also loads
// the employee and user directories; load failures are logged and leave the caches empty.
func NewConsole(ctx context.Context, cfg config.AppConfig, logger *slog.Logger, overrides ...ConsoleOverrides) (*Console, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var ov ConsoleOverrides
	if len(overrides) > 0 {
		ov = overrides[0]
	}

	c := &Console{Config: cfg, logger: logger}
	if err := c.build(ctx, ov); err != nil {
		return nil, errors.Join(err, c.Close())
	}

	if cfg.Directory.WarmOnStart {
		if err := c.Warm(ctx); err != nil {
			logger.WarnContext(ctx, "directory warm-up incomplete", "error", err)
		}
	}
	return c, nil
}

func (c *Console) build(ctx context.Context, ov ConsoleOverrides) error {
	cfg := c.Config

	sink := ov.Sink
	if sink == nil {
		client, err := statsd.NewClient(ctx, statsd.Config{
			Enabled:    cfg.Observability.Metrics.IsEnabled(),
			Address:    cfg.Observability.Metrics.StatsdAddress,
			Prefix:     cfg.Observability.Metrics.Prefix,
			GlobalTags: cfg.Observability.Metrics.Tags,
			Logger:     c.logger,
		})
		if err != nil {
			return fmt.Errorf("create metrics client: %w", err)
		}
		c.closers = append(c.closers, client)
		sink = client
	}
	c.Metrics = metrics.NewConsole(sink)

	hc, err := NewHTTPClient(ctx, cfg.Backend, c.logger)
	if err != nil {
		return fmt.Errorf("create backend http client: %w", err)
	}
	c.backend, err = backend.NewClient(backend.Config{
		BaseURL:         cfg.Backend.BaseURL,
		HTTPClient:      hc,
		UsersExpression: cfg.Backend.UsersExpression,
		Logger:          c.logger,
	})
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}

	c.store = ov.Store
	if c.store == nil {
		store, closer, err := OpenStore(ctx, StoreConfig{
			Store:    cfg.Store,
			Postgres: cfg.Postgres,
			Redis:    cfg.Redis,
			Logger:   c.logger,
		})
		if err != nil {
			return fmt.Errorf("open device store: %w", err)
		}
		c.closers = append(c.closers, closer)
		c.store = store
	}

	fallback, err := seed.Load(cfg.Directory.FallbackFile)
	if err != nil {
		return fmt.Errorf("load fallback identities: %w", err)
	}

	c.Sessions = service.NewSessionManager(service.SessionManagerOptions{
		Gateway: c.backend,
		Store:   c.store,
		Metrics: c.Metrics,
		Logger:  c.logger,
	})
	c.Directory = service.NewDirectoryCache(service.DirectoryCacheOptions{
		Client:  c.backend,
		Metrics: c.Metrics,
		Logger:  c.logger,
	})
	c.Users = service.NewBiometricDirectory(c.backend, c.logger)
	c.Resolver = service.NewResolver(fallback, c.Users, c.logger)

	if ov.Camera != nil || ov.Detector != nil {
		c.login = c.newLoginController(ov.Camera, ov.Detector)
	}
	return nil
}

// Warm loads the employee directory and the biometric user list concurrently.
func (c *Console) Warm(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		_, err := c.Directory.Load(ctx)
		return err
	})
	g.Go(func() error {
		return c.Users.Refresh(ctx)
	})
	return g.Wait()
}

// Login returns the login controller, building the capture machine on first use.
// It fails when the capture section of the config is incomplete.
func (c *Console) Login() (*service.LoginController, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.login != nil {
		return c.login, nil
	}

	capCfg := c.Config.Capture
	if err := capCfg.Validate(); err != nil {
		return nil, fmt.Errorf("biometric capture is not configured: %w", err)
	}
	cam, err := NewCamera(capCfg)
	if err != nil {
		return nil, fmt.Errorf("create camera: %w", err)
	}
	det, err := NewDetector(capCfg, c.logger)
	if err != nil {
		return nil, fmt.Errorf("create detector: %w", err)
	}
	c.login = c.newLoginController(cam, det)
	return c.login, nil
}

func (c *Console) newLoginController(cam ports.Camera, det ports.Detector) *service.LoginController {
	capCfg := c.Config.Capture
	machine := service.NewCaptureMachine(service.CaptureMachineOptions{
		Camera:        cam,
		Detector:      det,
		Resolver:      c.Resolver,
		Sessions:      c.Sessions,
		Policy:        capCfg.RetryPolicy(),
		MinConfidence: capCfg.MinConfidence,
		FrameWidth:    capCfg.FrameWidth,
		FrameHeight:   capCfg.FrameHeight,
		Metrics:       c.Metrics,
		Logger:        c.logger,
	})
	return service.NewLoginController(c.Sessions, machine, c.logger)
}

// Close stops capture and releases store and metrics connections.
func (c *Console) Close() error {
	c.mu.Lock()
	login := c.login
	closers := c.closers
	c.login, c.closers = nil, nil
	c.mu.Unlock()

	if login != nil {
		login.Close()
	}
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
