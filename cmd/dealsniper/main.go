package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ldelaire/dealsniper/internal/classify"
	"github.com/ldelaire/dealsniper/internal/config"
	"github.com/ldelaire/dealsniper/internal/dedup"
	"github.com/ldelaire/dealsniper/internal/enrich"
	"github.com/ldelaire/dealsniper/internal/extract"
	"github.com/ldelaire/dealsniper/internal/logger"
	"github.com/ldelaire/dealsniper/internal/mailbox"
	"github.com/ldelaire/dealsniper/internal/pipeline"
	"github.com/ldelaire/dealsniper/internal/store"
	"github.com/ldelaire/dealsniper/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	// Restore the dedup ledger
	state := dedup.NewState(cfg.Ledger.FilePath, cfg.Ledger.KeepThreads, cfg.Ledger.KeepItems)
	if err := state.Load(); err != nil {
		logger.Fatal("Failed to load dedup ledger: %v", err)
	}
	logger.Info("Dedup ledger loaded: %d threads, %d items", state.Threads.Len(), state.Items.Len())

	// Initialize mailbox source
	mail, err := mailbox.DialIMAP(cfg.Mailbox)
	if err != nil {
		logger.Fatal("Failed to connect to mailbox: %v", err)
	}
	defer func() {
		if err := mail.Close(); err != nil {
			logger.Error("Failed to close mailbox: %v", err)
		}
	}()

	// Initialize extractor and key generator
	extractor, err := extract.New(extract.Options{
		Lookahead:          cfg.Extract.Lookahead,
		MaxItems:           cfg.Extract.MaxItems,
		MaxDiscountPercent: cfg.Extract.MaxDiscountPercent,
		LinkHostPatterns:   cfg.Extract.LinkHostPatterns,
	})
	if err != nil {
		logger.Fatal("Failed to initialize extractor: %v", err)
	}

	keys, err := dedup.NewGenerator(
		cfg.Enrich.StoreHostPatterns,
		cfg.Enrich.TrackingParams,
		cfg.Enrich.DefaultLocale,
		cfg.Enrich.StoreBaseURL,
	)
	if err != nil {
		logger.Fatal("Failed to initialize key generator: %v", err)
	}

	fetcher := enrich.NewFetcher(
		cfg.Enrich.Timeout,
		cfg.Enrich.MaxRetries,
		cfg.Enrich.RetryDelayBase,
		cfg.Enrich.UserAgent,
	)

	// Optional stages
	var classifier pipeline.Classifier
	if cfg.Classify.Enabled {
		classifier = classify.NewClient(
			cfg.Classify.APIBaseURL,
			cfg.Classify.APIKey,
			cfg.Classify.Model,
			cfg.Classify.Timeout,
			cfg.Classify.MaxRetries,
		)
		logger.Info("Classifier initialized (model: %s)", cfg.Classify.Model)
	} else {
		logger.Debug("Classification disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dealStore pipeline.DealStore
	if cfg.Store.Enabled {
		pool, err := store.NewPool(ctx, cfg.Store.DSN)
		if err != nil {
			logger.Fatal("Failed to connect to deal store: %v", err)
		}
		defer pool.Close()
		dealStore = store.NewDealStore(pool)
		logger.Info("Deal store initialized")
	} else {
		logger.Debug("Deal store disabled")
	}

	var notifier pipeline.Notifier
	if cfg.Telegram.Enabled {
		client, err := telegram.NewClient(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatRoutes,
			cfg.Telegram.MaxRetries,
			cfg.Telegram.RetryDelayBase,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifier = client
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	pipe, err := pipeline.New(pipeline.Options{
		Mail:                mail,
		Fetcher:             fetcher,
		Classifier:          classifier,
		Store:               dealStore,
		Notifier:            notifier,
		Extractor:           extractor,
		Keys:                keys,
		State:               state,
		MaxThreadsPerRun:    cfg.Pipeline.MaxThreadsPerRun,
		MaxItemsPerThread:   cfg.Pipeline.MaxItemsPerThread,
		Throttle:            cfg.Pipeline.Throttle,
		TitleMatchThreshold: cfg.Enrich.TitleMatchThreshold,
	})
	if err != nil {
		logger.Fatal("Failed to initialize pipeline: %v", err)
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	logger.Info("Starting deal pipeline (interval: %v, max_threads: %d, max_items: %d)",
		cfg.Pipeline.RunInterval,
		cfg.Pipeline.MaxThreadsPerRun,
		cfg.Pipeline.MaxItemsPerThread,
	)

	ticker := time.NewTicker(cfg.Pipeline.RunInterval)
	defer ticker.Stop()

	// Run initial pass immediately
	runOnce(ctx, pipe)

	for {
		select {
		case <-ctx.Done():
			if err := state.Save(); err != nil {
				logger.Error("Failed to save dedup ledger on shutdown: %v", err)
			}
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			runOnce(ctx, pipe)
		}
	}
}

func runOnce(ctx context.Context, pipe *pipeline.Pipeline) {
	startTime := time.Now()
	logger.Debug("Starting pipeline run")

	if err := pipe.Run(ctx); err != nil {
		logger.Error("Pipeline run failed: %v", err)
		return
	}

	logger.Info("Pipeline run completed in %v", time.Since(startTime))
}
