package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/haldanelabs/nightshift/internal/api/handlers"
	mw "github.com/haldanelabs/nightshift/internal/api/middleware"
	"github.com/haldanelabs/nightshift/internal/config"
	"github.com/haldanelabs/nightshift/internal/domain"
	"github.com/haldanelabs/nightshift/internal/extract"
	"github.com/haldanelabs/nightshift/internal/service"
	"github.com/haldanelabs/nightshift/internal/store"
)

// App holds the router and the background sweeper for lifecycle management.
type App struct {
	Router  *chi.Mux
	Sweeper *service.Sweeper

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	learningStore := store.NewLearningStore(db)
	beliefStore := store.NewBeliefStore(db)
	conflictStore := store.NewConflictStore(db)
	outcomeStore := store.NewOutcomeStore(db)
	observationStore := store.NewObservationStore(db)
	jobStore := store.NewSleepJobStore(db)
	sessionStore := store.NewSessionContextStore(db)

	// External extraction client
	var extractor domain.Extractor
	switch config.ExtractorProvider() {
	case "mock":
		extractor = extract.NewMockExtractor()
		logger.Info("extraction client initialized", zap.String("provider", "mock"))
	default:
		extractor = extract.NewHTTPClient(config.ExtractionURL(), config.ExtractionAPIKey())
		logger.Info("extraction client initialized",
			zap.String("provider", "http"),
			zap.String("url", config.ExtractionURL()))
	}
	extractor = extract.NewRateLimited(extractor, config.ExtractionRPS(), config.ExtractionBurst())

	// Services
	classifier := service.NewKeywordClassifier()
	consolidator := service.NewConsolidator(learningStore, observationStore, extractor, classifier, logger)
	former := service.NewBeliefFormer(beliefStore, learningStore, conflictStore, classifier, logger)
	outcomeSvc := service.NewOutcomeService(outcomeStore, learningStore, beliefStore, logger)

	engineCfg := service.DefaultEngineConfig()
	engineCfg.BudgetMS = config.SleepBudgetMS()
	engineCfg.DecayRate = config.DecayRate()
	engineCfg.DecayStartDays = config.DecayStartDays()
	engine := service.NewSleepEngine(engineCfg, consolidator, former, outcomeSvc,
		learningStore, beliefStore, conflictStore, outcomeStore, jobStore, sessionStore, logger)

	sweeper := service.NewSweeper(engine, learningStore, config.SweepInterval(), config.WorkerCount(), logger)

	// Handlers
	sleepHandler := handlers.NewSleepHandler(engine, jobStore)
	sessionHandler := handlers.NewSessionHandler(sessionStore)
	observationHandler := handlers.NewObservationHandler(observationStore)
	outcomeHandler := handlers.NewOutcomeHandler(outcomeSvc)
	knowledgeHandler := handlers.NewKnowledgeHandler(learningStore, beliefStore, conflictStore, former)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Sweeper:   sweeper,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health and metrics (no auth)
	r.Get("/health", healthHandler(db))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1/users/{userID}", func(r chi.Router) {
		r.Post("/sleep", sleepHandler.TriggerRun)
		r.Get("/jobs/latest", sleepHandler.GetLatestJob)
		r.Get("/session", sessionHandler.Get)

		r.Post("/observations", observationHandler.Create)

		r.Route("/outcomes", func(r chi.Router) {
			r.Post("/", outcomeHandler.Create)
			r.Post("/{id}/feedback", outcomeHandler.RecordFeedback)
		})

		r.Get("/learnings", knowledgeHandler.ListLearnings)
		r.Get("/conflicts", knowledgeHandler.ListConflicts)
		r.Route("/beliefs", func(r chi.Router) {
			r.Get("/", knowledgeHandler.ListBeliefs)
			r.Post("/backfill", knowledgeHandler.BackfillBeliefs)
		})
	})

	return app
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
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

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.LearningStore       = (*store.LearningStore)(nil)
	_ domain.BeliefStore         = (*store.BeliefStore)(nil)
	_ domain.ConflictStore       = (*store.ConflictStore)(nil)
	_ domain.OutcomeStore        = (*store.OutcomeStore)(nil)
	_ domain.ObservationStore    = (*store.ObservationStore)(nil)
	_ domain.SleepJobStore       = (*store.SleepJobStore)(nil)
	_ domain.SessionContextStore = (*store.SessionContextStore)(nil)
	_ domain.Extractor           = (*extract.HTTPClient)(nil)
	_ domain.Extractor           = (*extract.MockExtractor)(nil)
	_ domain.Extractor           = (*extract.RateLimited)(nil)

	_ domain.SimilarityClassifier = (*service.KeywordClassifier)(nil)
)
