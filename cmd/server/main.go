package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ThanhSi1008/tilevania-sub000/internal/achievement"
	"github.com/ThanhSi1008/tilevania-sub000/internal/auth"
	"github.com/ThanhSi1008/tilevania-sub000/internal/config"
	"github.com/ThanhSi1008/tilevania-sub000/internal/handler"
	"github.com/ThanhSi1008/tilevania-sub000/internal/kafka"
	"github.com/ThanhSi1008/tilevania-sub000/internal/metrics"
	"github.com/ThanhSi1008/tilevania-sub000/internal/postgres"
	"github.com/ThanhSi1008/tilevania-sub000/internal/ranking"
	"github.com/ThanhSi1008/tilevania-sub000/internal/redis"
	"github.com/ThanhSi1008/tilevania-sub000/internal/service"
	"github.com/ThanhSi1008/tilevania-sub000/internal/store"
	"github.com/ThanhSi1008/tilevania-sub000/internal/websocket"
	"github.com/ThanhSi1008/tilevania-sub000/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Local development reads secrets from .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env file", "error", err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// Initialize the store
	var st store.Store
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		st = store.NewMemory()
	default:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		postgresRepo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer postgresRepo.Close()
		logger.Info("connected to PostgreSQL")

		// Run database migrations
		if err := postgresRepo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		st = postgresRepo
	}

	// Initialize Redis. The interfaces stay nil when it is disabled.
	var (
		leaderboardCache service.LeaderboardCache
		rankingCache     ranking.Cache
	)
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		redisCache, err := redis.NewLeaderboardCache(ctx, &cfg.Redis, logger)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		leaderboardCache, rankingCache = redisCache, redisCache
		logger.Info("connected to Redis")
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(cfg.WebSocket.BroadcastLimit, m, logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize services
	tokens := auth.NewTokenIssuer(&cfg.Auth)
	userService := service.NewUserService(st, auth.NewHasher(cfg.Auth.BcryptCost), tokens, logger)
	sessionService := service.NewSessionService(st, &cfg.Session, m, wsHub, logger)
	profileService := service.NewProfileService(st, logger)
	progressService := service.NewProgressService(st, logger)
	levelService := service.NewLevelService(st, logger)
	leaderboardService := service.NewLeaderboardService(leaderboardCache, st, &cfg.Leaderboard, m, logger)
	achievementEngine := achievement.NewEngine(st, achievement.DefaultRegistry(), m, wsHub, logger)
	rankingEngine := ranking.NewEngine(st, rankingCache, wsHub, m, cfg.Leaderboard.LockTTL, logger)

	// Seed the catalog
	if err := levelService.Seed(ctx, cfg.Catalog.Levels); err != nil {
		logger.Error("failed to seed levels", "error", err)
		os.Exit(1)
	}
	if err := achievementEngine.Seed(ctx, cfg.Catalog.Achievements); err != nil {
		logger.Error("failed to seed achievements", "error", err)
		os.Exit(1)
	}

	// Start the recompute worker; it warms the cache from the stored snapshot
	recomputeWorker := worker.NewRecomputeWorker(rankingEngine, cfg.Leaderboard.RecomputeInterval, logger)
	if cfg.Leaderboard.RecomputeEnabled {
		if err := recomputeWorker.Start(ctx); err != nil {
			logger.Error("failed to start recompute worker", "error", err)
			os.Exit(1)
		}
	} else if err := rankingEngine.WarmCache(ctx); err != nil {
		logger.Warn("failed to warm leaderboard cache", "error", err)
	}

	// Initialize Kafka consumer for stats ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, sessionService, m, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(handler.Deps{
		Users:        userService,
		Sessions:     sessionService,
		Profiles:     profileService,
		Progress:     progressService,
		Levels:       levelService,
		Leaderboard:  leaderboardService,
		Achievements: achievementEngine,
		Ranking:      rankingEngine,
		Tokens:       tokens,
		AdminKey:     cfg.Auth.AdminKey,
		Hub:          wsHub,
		Upgrader:     websocket.NewUpgrader(cfg.WebSocket.AllowedOrigins),
		Metrics:      m,
		Store:        st,
	}, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop recompute worker
	if err := recomputeWorker.Stop(); err != nil {
		logger.Error("failed to stop recompute worker", "error", err)
	}

	logger.Info("server stopped")
}
