package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wwfm-app/wwfm/internal/api/handlers"
	mw "github.com/wwfm-app/wwfm/internal/api/middleware"
	"github.com/wwfm-app/wwfm/internal/buildconfig"
	"github.com/wwfm-app/wwfm/internal/config"
	"github.com/wwfm-app/wwfm/internal/domain"
	"github.com/wwfm-app/wwfm/internal/service"
	"github.com/wwfm-app/wwfm/internal/store"
	"go.uber.org/zap"
)

// Pinger reports database liveness for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router         *chi.Mux
	QueueProcessor *service.QueueProcessor
	startTime      time.Time
	requestCount   atomic.Int64
	errorCount     atomic.Int64
}

// Services bundles the engine components built from a store pool.
type Services struct {
	Users      domain.UserStore
	Submission *service.SubmissionService
	Links      *service.LinkService
	Queue      *service.QueueProcessor
}

// NewServices wires stores and services from config. It is shared by the
// HTTP server and the queue CLI.
func NewServices(db store.Pool, logger *zap.Logger) *Services {
	userStore := store.NewUserStore(db)
	solutionStore := store.NewSolutionStore(db)
	observationStore := store.NewObservationStore(db)
	linkStore := store.NewLinkStore(db)
	queueStore := store.NewQueueStore(db)
	followUpStore := store.NewFollowUpStore(db)

	gate := service.NewTransitionGate(linkStore, config.TransitionThreshold(), logger)
	aggregator := service.NewAggregator(observationStore, linkStore, logger)
	pipeline := service.NewAggregationPipeline(gate, aggregator, logger)

	subCfg := service.DefaultSubmissionConfig()
	subCfg.Retry.MaxAttempts = config.AggregationRetryAttempts()
	subCfg.Retry.Backoff = func(attempt int) time.Duration {
		return time.Duration(attempt) * config.AggregationRetryBase()
	}
	subCfg.AutoApproveThreshold = config.AutoApproveThreshold()
	subCfg.FollowUpDelay = config.FollowUpDelay()

	queueCfg := service.QueueConfig{
		BatchSize:    config.QueueBatchSize(),
		MaxAttempts:  config.QueueMaxAttempts(),
		Interval:     config.QueueInterval(),
		StuckTimeout: config.QueueStuckTimeout(),
	}

	return &Services{
		Users:      userStore,
		Submission: service.NewSubmissionService(solutionStore, observationStore, linkStore, queueStore, followUpStore, pipeline, subCfg, logger),
		Links:      service.NewLinkService(linkStore),
		Queue:      service.NewQueueProcessor(queueStore, pipeline, queueCfg, logger),
	}
}

func NewApp(db store.Pool, pinger Pinger, logger *zap.Logger) *App {
	svcs := NewServices(db, logger)

	userHandler := handlers.NewUserHandler(svcs.Users)
	submissionHandler := handlers.NewSubmissionHandler(svcs.Submission, logger)
	aggregatesHandler := handlers.NewAggregatesHandler(svcs.Links)
	queueHandler := handlers.NewQueueHandler(svcs.Queue, logger)

	r := chi.NewRouter()

	app := &App{
		Router:         r,
		QueueProcessor: svcs.Queue,
		startTime:      time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(pinger))
	r.Get("/metrics", app.metricsHandler())
	r.Handle("/metrics/prometheus", promhttp.Handler())

	// Bootstrap endpoint, no auth
	r.Post("/v1/users", userHandler.Create)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mw.APIKeyAuth(svcs.Users))

			r.Post("/submissions", submissionHandler.Submit)
			r.Get("/goals/{goalID}/variants/{variantID}/aggregates", aggregatesHandler.Get)
		})

		r.Route("/admin/queue", func(r chi.Router) {
			r.Use(mw.AdminKeyAuth(config.AdminAPIKey()))

			r.Post("/process", queueHandler.Process)
			r.Post("/reap", queueHandler.Reap)
			r.Get("/metrics", queueHandler.Metrics)
		})
	})

	return app
}

func healthHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"build": buildconfig.VersionInfo()}
		if err := pinger.Ping(r.Context()); err != nil {
			resp["status"] = "error"
			resp["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["status"] = "ok"
		writeJSON(w, http.StatusOK, resp)
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		writeJSON(w, http.StatusOK, response)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Ensure stores satisfy interfaces at compile time.
var (
	_ domain.UserStore        = (*store.UserStore)(nil)
	_ domain.SolutionStore    = (*store.SolutionStore)(nil)
	_ domain.ObservationStore = (*store.ObservationStore)(nil)
	_ domain.LinkStore        = (*store.LinkStore)(nil)
	_ domain.QueueStore       = (*store.QueueStore)(nil)
	_ domain.FollowUpStore    = (*store.FollowUpStore)(nil)
)
