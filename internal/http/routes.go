package httpx

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipforge/clipforge/internal/core"
	"github.com/clipforge/clipforge/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs        *service.JobService
	Streams     *service.StreamService
	Tokens      *service.TokenService
	Artifacts   ArtifactStore
	DeadLetters core.DeadLetterRepository

	// Readiness probe targets
	DB    *sql.DB
	Redis redis.UniversalClient

	KeepAlive time.Duration // SSE keep-alive interval
	Logger    *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Jobs, DeadLetters: services.DeadLetters}
	mux.HandleFunc("POST /api/jobs", jobHandlers.CreateJob)
	mux.HandleFunc("GET /api/jobs", jobHandlers.ListJobs)
	mux.HandleFunc("GET /api/jobs/stats", jobHandlers.Stats)
	mux.HandleFunc("GET /api/jobs/{id}", jobHandlers.GetJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", jobHandlers.DeleteJob)
	mux.HandleFunc("GET /api/dead-letters", jobHandlers.ListDeadLetters)
	mux.HandleFunc("GET /api/dead-letters/{id}", jobHandlers.GetDeadLetter)

	if services.Streams != nil {
		streamHandlers := &StreamHandlers{
			Svc:       services.Streams,
			Logger:    logger,
			KeepAlive: services.KeepAlive,
		}
		mux.HandleFunc("GET /api/jobs/{id}/events", streamHandlers.StreamEvents)
	}

	if services.Tokens != nil && services.Artifacts != nil {
		fileHandlers := &FileHandlers{Tokens: services.Tokens, Artifacts: services.Artifacts}
		mux.HandleFunc("GET /api/jobs/{id}/files/{file}/link", fileHandlers.SignDownload)
		mux.HandleFunc("GET /api/jobs/{id}/files/{file}", fileHandlers.Download)
	}

	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)
	readiness := &HealthHandlers{DB: services.DB, Redis: services.Redis}
	mux.HandleFunc("GET /readyz", readiness.Ready)

	return Logging(logger)(Recover(logger)(mux))
}
