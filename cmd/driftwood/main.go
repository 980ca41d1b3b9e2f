package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/driftwood/driftwood/internal/acquisition"
	"github.com/driftwood/driftwood/internal/api"
	"github.com/driftwood/driftwood/internal/config"
	"github.com/driftwood/driftwood/internal/database"
	"github.com/driftwood/driftwood/internal/downloader"
	"github.com/driftwood/driftwood/internal/history"
	"github.com/driftwood/driftwood/internal/indexer"
	"github.com/driftwood/driftwood/internal/library"
	"github.com/driftwood/driftwood/internal/logger"
	"github.com/driftwood/driftwood/internal/quality"
	"github.com/driftwood/driftwood/internal/scheduler"
	"github.com/driftwood/driftwood/internal/scheduler/tasks"
	"github.com/driftwood/driftwood/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// .env is optional; real deployments use environment variables or the
	// config file.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer log.Close()

	log.Info().
		Str("logLevel", cfg.Logging.Level).
		Str("database", cfg.Database.Path).
		Msg("starting driftwood")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	log.Info().Msg("running database migrations")
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	qualityService := quality.NewService(db.Conn(), log.Logger)
	if err := qualityService.Seed(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to seed quality profiles")
	}

	hub := websocket.NewHub(log.Logger)
	go hub.Run()

	libraryService := library.NewService(db.Conn(), log.Logger)
	historyService := history.NewService(db.Conn(), hub, log.Logger)

	indexClient := newIndexClient(cfg, log.Logger)
	client := newDownloadClient(cfg, log.Logger)

	var searcher acquisition.Searcher
	var indexStatus api.IndexerStatus
	if indexClient != nil {
		searcher = indexClient
		indexStatus = indexClient
	}

	coordinator := acquisition.NewCoordinator(
		libraryService,
		qualityService,
		searcher,
		client,
		acquisition.NewDownloadStore(db.Conn()),
		historyService,
		log.Logger,
	)

	sched, err := scheduler.New(ctx, scheduler.NewSQLiteStore(db.Conn(), log.Logger), historyService, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}

	err = tasks.RegisterAll(ctx, tasks.Deps{
		Scheduler:   sched,
		Coordinator: coordinator,
		Library:     libraryService,
		History:     historyService,
		DB:          db,
		Config:      cfg,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register tasks")
	}

	ticker, err := startTicker(sched)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start task ticker")
	}

	server := api.NewServer(api.Deps{
		Quality:   qualityService,
		Scheduler: sched,
		Library:   libraryService,
		History:   historyService,
		Hub:       hub,
		Indexer:   indexStatus,
		Logger:    log.Logger,
	})

	go func() {
		addr := cfg.Server.Address()
		log.Info().Str("address", addr).Msg("HTTP server listening")
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("received shutdown signal")
	cancel()

	if err := ticker.Shutdown(); err != nil {
		log.Error().Err(err).Msg("ticker shutdown error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("driftwood stopped")
}

// startTicker drives the scheduler's minute resolution: every recurring task
// fires from this single clock.
func startTicker(sched *scheduler.Scheduler) (gocron.Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = gs.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(func() { sched.Tick(time.Now()) }),
		gocron.WithName("scheduler-tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	gs.Start()
	return gs, nil
}

// newIndexClient builds the index client, or returns nil when the index is
// not configured. The acquisition tasks no-op on a nil searcher and the
// status endpoint omits the indexer block.
func newIndexClient(cfg *config.Config, log zerolog.Logger) *indexer.Client {
	client, err := indexer.NewClient(indexer.Config{
		URL:           cfg.Indexer.URL,
		APIKey:        cfg.Indexer.APIKey,
		Timeout:       cfg.Indexer.Timeout,
		SkipSSLVerify: cfg.Indexer.SkipSSLVerify,
		Logger:        log,
	})
	if err != nil {
		log.Warn().Err(err).Msg("index client unavailable, searches disabled")
		return nil
	}
	return client
}

func newDownloadClient(cfg *config.Config, log zerolog.Logger) downloader.Client {
	client, err := downloader.NewQBittorrent(downloader.QBittorrentConfig{
		Host:     cfg.Downloader.Host,
		Port:     cfg.Downloader.Port,
		Username: cfg.Downloader.Username,
		Password: cfg.Downloader.Password,
		UseSSL:   cfg.Downloader.UseSSL,
		Category: cfg.Downloader.Category,
		Logger:   log,
	})
	if err != nil {
		log.Warn().Err(err).Msg("download client unavailable, downloads disabled")
		return nil
	}
	return client
}
