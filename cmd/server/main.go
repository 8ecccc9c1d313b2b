package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prepdrill/prepdrill-backend/internal/config"
	"github.com/prepdrill/prepdrill-backend/internal/database"
	"github.com/prepdrill/prepdrill-backend/internal/engine"
	"github.com/prepdrill/prepdrill-backend/internal/handler"
	"github.com/prepdrill/prepdrill-backend/internal/logger"
	"github.com/prepdrill/prepdrill-backend/internal/repository"
	"github.com/prepdrill/prepdrill-backend/internal/router"
	"github.com/prepdrill/prepdrill-backend/internal/service"
	"github.com/prepdrill/prepdrill-backend/internal/validator"
	"github.com/prepdrill/prepdrill-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("instance_id", cfg.InstanceID).
		Msg("Starting PrepDrill Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)
	subjectRepo := repository.NewSubjectRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	durationRuleRepo := repository.NewDurationRuleRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	sessionStore := repository.NewRedisSessionStore(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	subjectService := service.NewSubjectService(subjectRepo)
	durationService := service.NewDurationService(durationRuleRepo, log)
	questionService := service.NewQuestionService(questionRepo)
	attemptService := service.NewAttemptService(attemptRepo, rdb, log)
	sessionService := service.NewSessionService(
		cfg,
		durationService,
		questionService,
		sessionStore,
		attemptService,
		rdb,
		engine.SystemClock{},
		engine.SystemScheduler{},
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:         handler.NewAuthHandler(authService, userRepo, adminRepo),
		Session:      handler.NewSessionHandler(sessionService),
		Attempt:      handler.NewAttemptHandler(attemptService),
		Subject:      handler.NewSubjectHandler(subjectService),
		DurationRule: handler.NewDurationRuleHandler(durationService),
		WS:           handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	syncWorker := worker.NewAttemptSyncWorker(attemptRepo, rdb, log)
	go syncWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the sync worker and wait for the persist queue to drain.
	// Live timed sessions keep their state in Redis: on restart they resume
	// from the stored expiration instant, not a fresh duration.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
