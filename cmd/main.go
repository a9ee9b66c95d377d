/**
 * @description
 * This is the main entry point for the csr-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the snapshot cache, the message broker producer, repositories,
 * the core application services, the threshold scan scheduler, and the HTTP
 * server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, log/slog, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for the KPI snapshot cache.
 * - internal/api, internal/app, internal/cache, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/edumitra/csr-service/internal/api"
	"github.com/edumitra/csr-service/internal/app"
	"github.com/edumitra/csr-service/internal/cache"
	"github.com/edumitra/csr-service/internal/config"
	"github.com/edumitra/csr-service/internal/store"
	"github.com/edumitra/csr-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting csr-service", "port", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Align pool sizing with the rest of the platform services.
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	logger.Info("database connected")

	// Initialize the RabbitMQ producer to publish spend and alert events.
	// This service only needs to publish, so we use a producer.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("rabbitmq producer unavailable; events will be dropped", "error", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		logger.Info("rabbitmq producer connected")
	}

	// Initialize the KPI snapshot cache. Redis is preferred; when it is not
	// configured or unreachable the service degrades to an in-process cache.
	var snapshotCache cache.SnapshotCache = cache.NewMemoryCache()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed; using in-process snapshot cache", "error", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				logger.Warn("redis ping failed; using in-process snapshot cache", "error", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				snapshotCache = cache.NewRedisCache(redisClient, cfg.RedisSnapshotPrefix)
				logger.Info("redis snapshot cache connected")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application services with their dependencies.
	ledgerService := app.NewLedgerService(repository, producer, logger)
	alertEngine := app.NewAlertEngine(repository, producer, logger)
	alertLifecycle := app.NewAlertLifecycleService(repository, producer, logger)
	kpiService := app.NewKPIService(
		repository,
		snapshotCache,
		time.Duration(cfg.SnapshotTTLMinutes)*time.Minute,
		cfg.PlatformFeeBps,
		logger,
	)

	// Start the periodic threshold scan.
	jobs := app.NewJobs(repository, alertEngine, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg.ThresholdScanCron)
	scheduler.Start()

	// Initialize the API handlers and router.
	handlers := api.NewHandlers(ledgerService, alertEngine, alertLifecycle, kpiService, logger)
	router := api.Routes(handlers, cfg.JWTSecret)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	logger.Info("server listening", "addr", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	// Let any in-flight scan finish before stopping the HTTP server.
	<-scheduler.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}

	logger.Info("shutdown complete")
}
