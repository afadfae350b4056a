// Command availcheck sweeps every deal still marked available and flips the
// flag for products whose page no longer offers an add-to-cart button. It is
// meant to run from cron, separately from the main pipeline.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ldelaire/dealsniper/internal/config"
	"github.com/ldelaire/dealsniper/internal/enrich"
	"github.com/ldelaire/dealsniper/internal/logger"
	"github.com/ldelaire/dealsniper/internal/store"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if !cfg.Store.Enabled {
		log.Fatalf("Deal store is disabled, nothing to check")
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping sweep...")
		cancel()
	}()

	pool, err := store.NewPool(ctx, cfg.Store.DSN)
	if err != nil {
		logger.Fatal("Failed to connect to deal store: %v", err)
	}
	defer pool.Close()
	deals := store.NewDealStore(pool)

	fetcher := enrich.NewFetcher(
		cfg.Enrich.Timeout,
		cfg.Enrich.MaxRetries,
		cfg.Enrich.RetryDelayBase,
		cfg.Enrich.UserAgent,
	)

	available, err := deals.ListAvailable(ctx)
	if err != nil {
		logger.Fatal("Failed to list available deals: %v", err)
	}
	logger.Info("Checking availability of %d deals", len(available))

	checked := 0
	expired := 0
	for _, deal := range available {
		if ctx.Err() != nil {
			break
		}

		stillAvailable, err := fetcher.CheckAvailability(ctx, deal.URL)
		if err != nil {
			logger.Warn("Availability check failed for %s: %v", deal.ID, err)
			continue
		}
		checked++

		if !stillAvailable {
			if err := deals.SetAvailability(ctx, deal.ID, false); err != nil {
				logger.Error("Failed to mark deal %s unavailable: %v", deal.ID, err)
				continue
			}
			expired++
			logger.Info("Deal %s is gone (%s)", deal.ID, deal.Title)
		}

		if cfg.Pipeline.Throttle > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(cfg.Pipeline.Throttle):
			}
		}
	}

	logger.Info("Availability sweep done: %d checked, %d expired", checked, expired)
}
