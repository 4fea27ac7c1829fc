package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipforge/clipforge/config"
	httpx "github.com/clipforge/clipforge/internal/http"
	"github.com/clipforge/clipforge/internal/service"
)

const (
	httpReadTimeout = 30 * time.Second
	httpIdleTimeout = 120 * time.Second

	// httpShutdownTimeout bounds the drain of in-flight requests on shutdown.
	httpShutdownTimeout = 10 * time.Second
)

// HTTPServerConfig contains dependencies for the HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// StartHTTPServer builds the router and starts serving in the background.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Jobs:        cfg.Services.Jobs,
		Streams:     cfg.Services.Streams,
		Tokens:      cfg.Services.Tokens,
		Artifacts:   cfg.Services.Workspace,
		DeadLetters: cfg.Services.DeadLetters,
		DB:          cfg.DB,
		Redis:       cfg.RedisClient,
		KeepAlive:   cfg.Config.HTTP.StreamKeepAlive,
		Logger:      logger,
	})

	addr := cfg.Config.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}

	// WriteTimeout stays unset: event stream responses are held open for
	// the lifetime of the subscription.
	server := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: httpReadTimeout,
		IdleTimeout: httpIdleTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context    context.Context
	Server     *http.Server
	JobService *service.JobService
	Logger     *slog.Logger
}

// ShutdownHTTPServer stops job notification listeners, then drains the server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.JobService != nil {
		cfg.JobService.StopAllListeners()
	}

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(parent, httpShutdownTimeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
		return err
	}

	logger.Info("http server stopped")
	return nil
}
