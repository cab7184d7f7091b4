package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/herdsync/engine/internal/config"
	"github.com/herdsync/engine/internal/gateway"
	"github.com/herdsync/engine/internal/handlers"
	"github.com/herdsync/engine/internal/lifecycle"
	custommw "github.com/herdsync/engine/internal/middleware"
	"github.com/herdsync/engine/internal/models"
	"github.com/herdsync/engine/internal/observability"
	"github.com/herdsync/engine/internal/repository"
	"github.com/herdsync/engine/internal/services"
	"github.com/herdsync/engine/internal/state"
	enginesync "github.com/herdsync/engine/internal/sync"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.GetLogger()
	if cfg.LogFile != "" {
		logger.LogToFile(cfg.LogFile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetry, err := observability.Initialize(ctx, observability.NewConfig("herdsync-engine", handlers.Version))
	if err != nil {
		logger.Warnf("telemetry init failed: %v", err)
	}

	// Initialize database
	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Repositories
	pregRepo := repository.NewPregnancyRecordRepository(db)
	weightRepo := repository.NewWeightRecordRepository(db)
	heatRepo := repository.NewHeatRecordRepository(db)
	crumbRepo := repository.NewBreadcrumbRepository(db)

	pregSessions := repository.NewSessionRepository(db, models.FamilyPregnancy)
	weightSessions := repository.NewSessionRepository(db, models.FamilyWeight)
	heatSessions := repository.NewSessionRepository(db, models.FamilyHeat)

	// Lifecycle guard and status hub
	guard := lifecycle.NewGuard()
	hub := services.NewStatusHub()
	go hub.Run()

	// Credentials and device identity
	dataDir := filepath.Dir(cfg.DatabasePath)
	credentials, err := services.NewCredentialService(filepath.Join(dataDir, "token"))
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}
	deviceID, err := cfg.DeviceID()
	if err != nil {
		log.Fatalf("Failed to load device id: %v", err)
	}

	// Gateway to the remote API
	probe := gateway.NewHTTPProbe(cfg.Remote.BaseURL)
	client := gateway.NewClient(cfg.Remote.BaseURL, deviceID, credentials, probe,
		gateway.WithRetries(uint64(cfg.Remote.RetryAttempts)),
		gateway.WithRetryDelay(cfg.RetryDelay()),
		gateway.WithAuthExpiredHandler(func() {
			hub.Publish(services.Event{Type: services.EventAuthExpired})
		}),
	)

	syncMetrics, err := observability.NewSyncMetrics()
	if err != nil {
		logger.Warnf("sync metrics init failed: %v", err)
	}

	// Sync orchestrator
	families := map[models.Family]enginesync.FamilySet{
		models.FamilyPregnancy: {Store: pregRepo, Sessions: pregSessions},
		models.FamilyWeight:    {Store: weightRepo, Sessions: weightSessions},
		models.FamilyHeat:      {Store: heatRepo, Sessions: heatSessions},
	}
	orchestrator := enginesync.NewOrchestrator(
		families, client, credentials, guard, db,
		syncMetrics, enginesync.NewSummaryNotifier(client),
	)

	// Session trackers, one per family
	pregTracker := state.NewTracker(models.FamilyPregnancy, pregRepo, pregSessions, crumbRepo,
		guard, orchestrator, state.PregnancyStats, state.PregnancyDraftFromCrumb)
	weightTracker := state.NewTracker(models.FamilyWeight, weightRepo, weightSessions, crumbRepo,
		guard, orchestrator, state.WeightStats, state.WeightDraftFromCrumb)
	heatTracker := state.NewTracker(models.FamilyHeat, heatRepo, heatSessions, crumbRepo,
		guard, orchestrator, state.HeatStats, state.HeatDraftFromCrumb)

	// Resume any session a crash left behind before the API opens.
	for family, restore := range map[models.Family]func(context.Context) (bool, error){
		models.FamilyPregnancy: pregTracker.Restore,
		models.FamilyWeight:    weightTracker.Restore,
		models.FamilyHeat:      heatTracker.Restore,
	} {
		resumed, err := restore(ctx)
		if err != nil {
			logger.Errorf("restore for %s failed: %v", family, err)
		} else if resumed {
			logger.Infof("resumed interrupted %s session", family)
		}
	}

	// Periodic sync
	scheduler := enginesync.NewScheduler(orchestrator, cfg.SyncInterval())
	if cfg.Sync.Enabled {
		scheduler.Start(ctx)
	}

	// Handlers
	healthHandler := handlers.NewHealthHandler(db)
	syncHandler := handlers.NewSyncHandler(orchestrator, hub)
	appStateHandler := handlers.NewAppStateHandler(guard)
	authHandler := handlers.NewAuthHandler(credentials)
	adminHandler := handlers.NewAdminHandler(db)
	wsHandler := handlers.NewWebSocketHandler(hub)
	dueHandler := handlers.NewDueHandler(pregRepo)

	pregHandler := handlers.NewSessionHandler(pregTracker, pregRepo, hub,
		func() *models.PregnancyRecord { return &models.PregnancyRecord{} })
	weightHandler := handlers.NewSessionHandler(weightTracker, weightRepo, hub,
		func() *models.WeightRecord { return &models.WeightRecord{} })
	heatHandler := handlers.NewSessionHandler(heatTracker, heatRepo, hub,
		func() *models.HeatRecord { return &models.HeatRecord{} })

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(observability.TracingMiddleware("herdsync-engine"))
	if httpMetrics, err := observability.NewHTTPMetrics(); err == nil {
		r.Use(observability.MetricsMiddleware(httpMetrics))
	}
	r.Use(custommw.APIKeyAuth(cfg.Security.APIKey, cfg.Security.APIKeyHeader))

	// Routes
	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)
	r.Get("/api/version", handlers.VersionHandler)
	r.Get("/ws", wsHandler.HandleConnection)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/pregnancy", pregHandler.Routes())
		r.Get("/pregnancy/records/due", dueHandler.ListDue)
		r.Mount("/weight", weightHandler.Routes())
		r.Mount("/heat", heatHandler.Routes())

		r.Get("/sync/status", syncHandler.GetStatus)
		r.Post("/sync/trigger", syncHandler.TriggerSync)

		r.Get("/app-state", appStateHandler.Get)
		r.Post("/app-state", appStateHandler.Update)

		r.Get("/auth/status", authHandler.Status)
		r.Post("/auth/token", authHandler.SetToken)
		r.Delete("/auth/token", authHandler.ClearToken)

		r.Post("/admin/reset", adminHandler.ResetDevice)
	})

	// Create server
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("herdsync engine %s listening on %s", handlers.Version, cfg.ServerAddress)
		logger.Infof("database: %s", cfg.DatabasePath)
		logger.Infof("remote API: %s", cfg.Remote.BaseURL)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// The daemon counts as mounted once everything is wired; foreground is
	// the UI shell's call.
	guard.SetMounted(true)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	guard.SetMounted(false)
	if cfg.Sync.Enabled {
		scheduler.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("telemetry shutdown: %v", err)
		}
	}

	logger.Info("stopped")
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	if cfg.UsePostgres() {
		observability.Info("using PostgreSQL database")
		return repository.NewPostgresDB(cfg.DatabaseURL)
	}
	observability.Info("using SQLite database")
	return repository.NewSQLiteDB(cfg.DatabasePath)
}
