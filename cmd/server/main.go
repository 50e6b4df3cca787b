package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/ai"
	"dispatch/internal/app"
	"dispatch/internal/config"
	"dispatch/internal/events"
	"dispatch/internal/handler"
	"dispatch/internal/logging"
	"dispatch/internal/presence"
	internalRedis "dispatch/internal/redis"
	"dispatch/internal/repository/postgres"
	"dispatch/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", "error", err)
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// Join the presence channel before serving so early observers see state.
	channel, transport := wirePresence(redisClient, cfg, logger)
	if err := channel.Join(ctx); err != nil {
		log.Fatalf("failed to join presence channel: %v", err)
	}
	defer channel.Close()
	defer func() { _ = transport.Unsubscribe(context.Background(), cfg.Presence.ChannelName) }()

	// Wire dependencies.
	server, cleanup := wireServer(db, redisClient, channel, nrApp, cfg, logger)
	defer cleanup()

	// Start server in goroutine.
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	logger.Info("server exited")
}

// wirePresence builds the presence channel over the Redis transport.
func wirePresence(redisClient *redis.Client, cfg *config.Config, logger *slog.Logger) (*presence.Channel, *internalRedis.PresenceTransport) {
	geoStore := internalRedis.NewGeoStore(redisClient)
	transport := internalRedis.NewPresenceTransport(redisClient, geoStore, logger)
	channel := presence.NewChannel(cfg.Presence.ChannelName, transport, logger)
	return channel, transport
}

// wireServer wires all dependencies and returns the HTTP server along with a
// cleanup function for the optional external clients.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	channel *presence.Channel,
	nrApp *newrelic.Application,
	cfg *config.Config,
	logger *slog.Logger,
) (*http.Server, func()) {
	// Redis-backed stores.
	geoStore := internalRedis.NewGeoStore(redisClient)
	candidateCache := internalRedis.NewCandidateCache(redisClient)
	notifier := internalRedis.NewRideNotifier(redisClient, logger)

	// Repositories.
	driverRepo := postgres.NewDriverRepository(db)
	rideRepo := postgres.NewRideRepository(db)

	// Optional collaborators.
	var cleanups []func()
	var sink service.EventSink
	if cfg.Kafka.Enabled {
		kafkaSink := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		cleanups = append(cleanups, func() { _ = kafkaSink.Close() })
		sink = kafkaSink
		logger.Info("Kafka event sink enabled", "topic", cfg.Kafka.Topic)
	}

	var recommender service.Recommender
	if cfg.Gemini.Enabled && cfg.Gemini.APIKey != "" {
		gem, err := ai.NewGeminiRecommender(context.Background(), cfg.Gemini.APIKey)
		if err != nil {
			logger.Warn("failed to initialize Gemini recommender", "error", err)
		} else {
			cleanups = append(cleanups, gem.Close)
			recommender = gem
			logger.Info("Gemini recommender enabled")
		}
	}

	// Services.
	estimator := service.NewLiveEtaEstimator(geoStore, cfg.Presence.ChannelName, cfg.Matching.SearchRadiusKm)
	orchestrator := service.NewMatchOrchestrator(
		driverRepo,
		service.NewScoringEngine(),
		estimator,
		cfg.Matching.FallbackEtaMinutes,
		candidateCache,
		recommender,
		logger,
	)
	rideService := service.NewRideService(rideRepo, driverRepo, notifier, candidateCache, sink, logger)

	// Handlers.
	matchHandler := handler.NewMatchHandler(orchestrator)
	rideHandler := handler.NewRideHandler(rideService, logger)
	presenceHandler := handler.NewPresenceHandler(channel, logger)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		MatchHandler:    matchHandler,
		RideHandler:     rideHandler,
		PresenceHandler: presenceHandler,
		RedisClient:     redisClient,
		NewRelicApp:     nrApp,
	})

	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, cleanup
}
