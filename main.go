package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/config"
	"github.com/LexiconIndonesia/creator-crawler-service/common/constants"
	"github.com/LexiconIndonesia/creator-crawler-service/common/db"
	"github.com/LexiconIndonesia/creator-crawler-service/common/httpclient"
	"github.com/LexiconIndonesia/creator-crawler-service/common/kvstore"
	"github.com/LexiconIndonesia/creator-crawler-service/common/logger"
	"github.com/LexiconIndonesia/creator-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/creator-crawler-service/common/redis"
	"github.com/LexiconIndonesia/creator-crawler-service/common/storage"
	"github.com/LexiconIndonesia/creator-crawler-service/common/work"
	"github.com/LexiconIndonesia/creator-crawler-service/crawlers"
	"github.com/LexiconIndonesia/creator-crawler-service/crawlers/affiliate"
	"github.com/LexiconIndonesia/creator-crawler-service/crawlers/browser"
	"github.com/LexiconIndonesia/creator-crawler-service/handler"

	"github.com/rs/zerolog/log"

	"github.com/joho/godotenv"

	_ "github.com/LexiconIndonesia/creator-crawler-service/docs"
)

// @title       Creator Crawler Service API
// @version     1.0
// @description Drives the affiliate creator search, collects creator profiles and publishes them to the configured sink.

// @host     localhost:8080
// @BasePath /v1
// @schemes  http https

// @securityDefinitions.apikey ApiKeyAuth
// @in                         header
// @name                       X-API-KEY

func main() {
	// INITIATE CONFIGURATION
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("Error loading .env file, using environment variables")
	}

	cfg := config.DefaultConfig()
	cfg.LoadFromEnv()

	logCloser := logger.Setup(cfg.Log)
	defer logCloser.Close()

	// Create a base context with cancel for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// INITIATE DATABASES
	dbConn, err := db.SetupDatabase(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup database")
	}
	defer dbConn.Close()

	if cfg.Log.Database {
		logger.InitializeLogging(dbConn.Queries)
		log.Info().Msg("Zerolog database hooks initialized")
	}

	redisClient, err := redis.NewClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup Redis client")
	}
	defer redisClient.Close()

	var store kvstore.Store
	switch cfg.KVBackend {
	case "memory":
		store = kvstore.NewMemoryStore()
	default:
		store = kvstore.NewRedisStore(redisClient)
	}
	log.Info().Str("backend", cfg.KVBackend).Msg("Key-value store ready")

	// INITIATE NATS CLIENT
	natsClient, err := messaging.SetupNatsBroker(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup NATS client")
	}
	defer natsClient.Close()

	if _, err := messaging.EnsureStream(ctx, natsClient, constants.CrawlerEventsStream, []string{constants.CrawlerEventsSubjects}); err != nil {
		log.Fatal().Err(err).Msg("Failed to setup crawler events stream")
	}
	if err := messaging.SetupNotificationSubscription(natsClient, constants.NotificationSubject); err != nil {
		log.Fatal().Err(err).Msg("Failed to setup notification subscription")
	}

	// gcs
	var exporter handler.Exporter
	if cfg.GCS.Enabled() {
		gcsStorage, err := storage.NewGCSStorage(ctx, cfg.GCS)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to setup GCS storage")
		}
		defer gcsStorage.Close()
		exporter = affiliate.NewExporter(store, gcsStorage, cfg.GCS.Bucket, cfg.GCS.SignedURLTTL, affiliate.RealClock)
	} else {
		log.Warn().Msg("GCS bucket not configured, exports are disabled")
	}

	// INITIATE BROWSER
	session, err := browser.Open(ctx, cfg.Browser)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open browser session")
	}
	defer session.Close()

	settings := affiliate.NewSettingsStore(store, affiliate.DefaultSettings(cfg.Crawl))
	workManager := work.NewWorkManager(redisClient, dbConn.Queries)

	orchestrator := affiliate.NewOrchestrator(ctx, store, settings,
		session.Driver(),
		affiliate.NewProfileFetcher(httpclient.New("profiles", cfg.Crawl.ProfileTimeout), cfg.Crawl),
		affiliate.WithClock(affiliate.RealClock),
		affiliate.WithSink(affiliate.NewSinkPublisher(httpclient.New("sink", cfg.Crawl.SinkTimeout))),
		affiliate.WithNotifier(affiliate.NewNatsNotifier(natsClient, constants.NotificationSubject)),
		affiliate.WithRunRecorder(workManager),
		affiliate.WithEventPublisher(natsClient),
		affiliate.WithSearchInterval(cfg.Crawl.SearchInterval),
	)

	auto := affiliate.NewAutoCrawler(orchestrator,
		affiliate.NewCreatorIDSource(httpclient.New("creator-ids", cfg.Crawl.SinkTimeout)),
		settings, store, affiliate.RealClock)
	orchestrator.OnComplete(auto.OnComplete)

	if err := orchestrator.Recover(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to recover previous session")
	}
	if err := auto.Restore(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to restore auto crawl")
	}

	go orchestrator.Run(ctx, session.Interceptor().Events())

	dispatcher := affiliate.NewCommandDispatcher(orchestrator, auto)
	if err := crawlers.RegisterCommandHandlers(ctx, natsClient, dispatcher); err != nil {
		log.Fatal().Err(err).Msg("Failed to register command handlers")
	}
	log.Info().Msg("Command handlers registered successfully")

	// INITIATE SERVER
	server, err := NewAppHttpServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create the server")
	}

	server.setRoutes(routes{
		crawler:  handler.NewCrawlerHandler(dispatcher, auto, store),
		settings: handler.NewSettingsHandler(settings),
		runs:     handler.NewRunsHandler(dbConn.Queries, workManager),
		exports:  handler.NewExportHandler(exporter),
		health: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": dbConn,
			"redis":    redisClient,
			"nats":     natsClient,
		}),
	})
	server.setupRoute()

	// Start server in a goroutine
	go func() {
		if err := server.start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			cancel()
		}
	}()

	log.Info().Str("address", cfg.Listen.Addr()).Msg("Server started successfully")
	log.Info().Str("swagger", fmt.Sprintf("http://%s/swagger/index.html", cfg.Listen.Addr())).Msg("Swagger documentation available at")

	// Wait for shutdown signal
	select {
	case <-shutdown:
		log.Info().Msg("Shutdown signal received")
	case <-ctx.Done():
	}

	// Create a timeout context for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	orchestrator.Shutdown(shutdownCtx)

	log.Info().Msg("Server gracefully stopped")
}
