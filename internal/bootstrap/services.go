package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/clipforge/clipforge/config"
	"github.com/clipforge/clipforge/internal/adapters/reaper"
	"github.com/clipforge/clipforge/internal/adapters/worker"
	"github.com/clipforge/clipforge/internal/bus"
	"github.com/clipforge/clipforge/internal/core"
	"github.com/clipforge/clipforge/internal/data"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/observability/notify/pagerduty"
	"github.com/clipforge/clipforge/internal/observability/notify/slack"
	"github.com/clipforge/clipforge/internal/observability/statsd"
	"github.com/clipforge/clipforge/internal/domain/model"
	"github.com/clipforge/clipforge/internal/service"
	"github.com/clipforge/clipforge/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Streams       *service.StreamService
	Tokens        *service.TokenService
	DeadLetters   core.DeadLetterRepository
	Workspace     *worker.Workspace
	Bus           core.EventBus
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildServices wires repositories and services from the given dependencies.
func BuildServices(deps ServiceDeps) (ServiceContainer, error) {
	if deps.Config == nil {
		return ServiceContainer{}, errors.New("app config is required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database connection is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	observability := buildObservability(logger, deps.Config.Observability)

	eventBus, err := buildEventBus(deps.RedisClient, logger)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build event bus: %w", err)
	}

	workspace, err := worker.NewWorkspace(deps.Config.Storage.TempDir, deps.Config.Storage.DownloadsDir)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create workspace: %w", err)
	}

	jobRepo := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger})

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:            jobRepo,
		DefaultLease:    deps.Config.Worker.Lease,
		Bus:             eventBus,
		Logger:          logger,
		FailureNotifier: observability.FailureNotifier,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}

	streams, err := service.NewStreamService(service.StreamServiceOptions{
		Repo:   jobRepo,
		Bus:    eventBus,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create stream service: %w", err)
	}

	var tokens *service.TokenService
	if deps.Config.Token.Secret != "" {
		tokens, err = service.NewTokenService(service.TokenServiceOptions{
			Secret: deps.Config.Token.Secret,
			TTL:    deps.Config.Token.TTL,
		})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("create token service: %w", err)
		}
	} else if deps.Config.IsHTTPServerEnabled() {
		logger.Warn("TOKEN_SECRET is empty; download links will be disabled")
	}

	return ServiceContainer{
		Jobs:          jobs,
		Streams:       streams,
		Tokens:        tokens,
		DeadLetters:   data.NewDeadLetterRepo(deps.DB),
		Workspace:     workspace,
		Bus:           eventBus,
		Observability: observability,
	}, nil
}

// buildEventBus prefers the Redis-backed bus so progress events reach every
// replica; without Redis the in-process bus serves a single node.
//
//nolint:ireturn // the bus implementation is chosen at runtime.
func buildEventBus(client redis.UniversalClient, logger *slog.Logger) (core.EventBus, error) {
	if client == nil {
		logger.Warn("redis unavailable; using in-process event bus")
		return bus.NewMemoryBus(), nil
	}
	return bus.NewRedisBus(bus.RedisBusOptions{Client: client, Logger: logger})
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "clipforge",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:      deps.cfg.Config,
		Services:    deps.cfg.Services,
		DB:          deps.cfg.DB,
		RedisClient: deps.cfg.RedisClient,
		Logger:      deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "download worker",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
				return nil
			}
			return runWorkers(ctx, deps.cfg, deps.logger)
		},
	}
}

// runWorkers starts one runner per job type and blocks until both stop.
func runWorkers(ctx context.Context, cfg *ServiceOrchestrationConfig, logger *slog.Logger) error {
	lister, err := buildPlaylistLister(cfg, logger)
	if err != nil {
		return fmt.Errorf("build playlist lister: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)
	for _, jobType := range []model.JobType{model.JobTypeVideo, model.JobTypePlaylist} {
		opts := worker.RunnerOptions{
			DB:              cfg.DB,
			Logger:          logger,
			JobType:         jobType,
			Lease:           cfg.Config.Worker.Lease,
			Concurrency:     cfg.Config.Worker.Concurrency,
			MaxJobDuration:  cfg.Config.Worker.MaxJobDuration,
			YtdlpBin:        cfg.Config.Media.YtdlpBin,
			FfmpegBin:       cfg.Config.Media.FfmpegBin,
			Workspace:       cfg.Services.Workspace,
			Jobs:            cfg.Services.Jobs,
			Metrics:         cfg.Services.Observability.MetricsSink,
			FailureNotifier: cfg.Services.Observability.FailureNotifier,
		}
		if jobType == model.JobTypePlaylist {
			opts.Lister = lister
		}

		runner, err := worker.NewRunner(opts)
		if err != nil {
			return fmt.Errorf("create %s runner: %w", jobType, err)
		}
		group.Go(func() error { return runner.Run(ctx) })
	}

	return group.Wait()
}

// buildPlaylistLister wraps the yt-dlp flat lister in the Redis cache when
// Redis is available.
//
//nolint:ireturn // the lister implementation depends on available backends.
func buildPlaylistLister(cfg *ServiceOrchestrationConfig, logger *slog.Logger) (core.PlaylistLister, error) {
	inner := media.NewYtdlpLister(&media.ExecRunner{}, cfg.Config.Media.YtdlpBin)
	if cfg.RedisClient == nil {
		return inner, nil
	}
	return media.NewCachedLister(media.CachedListerOptions{
		Inner:  inner,
		Cache:  data.NewRedisCacheRepo(cfg.RedisClient),
		TTL:    cfg.Config.Media.PlaylistCacheTTL,
		Logger: logger,
	})
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
				return nil
			}
			runner, err := reaper.NewRunner(reaper.RunnerOptions{
				DB:        deps.cfg.DB,
				Config:    deps.cfg.Config.Reaper,
				Logger:    deps.logger,
				Artifacts: deps.cfg.Services.Workspace,
				Metrics:   deps.cfg.Services.Observability.MetricsSink,
			})
			if err != nil {
				return fmt.Errorf("create reaper runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		jobService:  cfg.Services.Jobs,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	jobService  *service.JobService
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context:    shutdownCtx,
			Server:     cfg.httpServer,
			JobService: cfg.jobService,
			Logger:     cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
