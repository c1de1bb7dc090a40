package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"participa/api/internal/accounts"
	"participa/api/internal/app"
	"participa/api/internal/audit"
	"participa/api/internal/config"
	"participa/api/internal/email"
	"participa/api/internal/guard"
	"participa/api/internal/logging"
	"participa/api/internal/ratelimit"
	"participa/api/internal/realtime"
	"participa/api/internal/revisions"
	"participa/api/internal/search"
	"participa/api/internal/session"
	"participa/api/internal/store"
)

func main() {
	logger, err := logging.New()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.RevisionsDir, 0o755); err != nil {
		logger.Fatal("failed to create revisions dir", zap.Error(err))
	}

	dataStore := store.NewPostgresStore(db)
	revisionSvc := revisions.New(cfg.RevisionsDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, logger)
	go searchService.ReindexAllFromPG(ctx)

	// Redis carries refresh sessions, rate-limit counters and the change
	// feed. The platform runs without it: sessions fall back to Postgres,
	// limits fail open and clients poll instead of streaming.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid redis url", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, continuing without it", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		}
		cancel()
	}

	var (
		sessions *session.RedisStore
		limiter  *ratelimit.Limiter
		hub      *realtime.Hub
	)
	if redisClient != nil {
		defer redisClient.Close()
		sessions = session.NewRedisStoreWithClient(redisClient)
		limiter = ratelimit.New(redisClient, logger, map[string]int{
			ratelimit.ActionSubmission:   cfg.SubmissionsPerDay,
			ratelimit.ActionVote:         cfg.VotesPerDay,
			ratelimit.ActionRegistration: cfg.RegistrationsPerDay,
		})
		hub = realtime.NewHub(redisClient, logger)
		if err := hub.Start(ctx); err != nil {
			logger.Warn("change feed unavailable", zap.Error(err))
			hub = nil
		} else {
			defer hub.Stop()
		}
	}

	recorder := audit.NewRecorder(dataStore, logger, 256)
	defer recorder.Close()

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	deps := app.Deps{
		Store:     dataStore,
		Accounts:  accounts.NewService(dataStore),
		Email:     emailService,
		Search:    searchService,
		Revisions: revisionSvc,
		Audit:     recorder,
	}
	if sessions != nil {
		deps.Sessions = sessions
	}
	if limiter != nil {
		deps.Limiter = limiter
		deps.Guard = guard.New(limiter, recorder)
	} else {
		deps.Guard = guard.New(nil, recorder)
	}
	if hub != nil {
		deps.Hub = hub
	}

	service := app.New(cfg, logger, deps)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go service.RunSweeper(sweepCtx, time.Hour)

	var httpServer *app.HTTPServer
	if hub != nil {
		httpServer = app.NewHTTPServer(service, logger, cfg.CORSOrigin, hub)
	} else {
		httpServer = app.NewHTTPServer(service, logger, cfg.CORSOrigin, nil)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("participa api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}
