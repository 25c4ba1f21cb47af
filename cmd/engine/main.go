package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oniontracex/oniontracex/internal/analyzer"
	"github.com/oniontracex/oniontracex/internal/api"
	"github.com/oniontracex/oniontracex/internal/config"
	"github.com/oniontracex/oniontracex/internal/crawler"
	"github.com/oniontracex/oniontracex/internal/db"
	"github.com/oniontracex/oniontracex/internal/tor"
	"github.com/oniontracex/oniontracex/internal/txworker"
)

func main() {
	log.Println("Starting OnionTraceX intelligence engine...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Configuration failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.Connect(ctx, cfg.DB.DSN())
	if err != nil {
		log.Fatalf("FATAL: Database connection failed: %v", err)
	}
	defer store.Close()
	if err := store.InitSchema(ctx); err != nil {
		log.Fatalf("FATAL: Schema init failed: %v", err)
	}

	torClient, err := tor.NewClient(cfg.Tor.SocksAddr(), 25*time.Second)
	if err != nil {
		log.Fatalf("FATAL: Tor client setup failed: %v", err)
	}
	torCtrl := tor.NewController(cfg.Tor.ControlAddr(), cfg.Tor.ControlPassword)

	wsHub := api.NewHub()
	go wsHub.Run()

	// Crawl loop: one goroutine owns all Tor fetching.
	crawl := crawler.New(store, torClient, cfg.Crawler)
	crawl.SetNotifier(wsHub.Notify)
	if err := crawl.ReloadStale(ctx); err != nil {
		log.Printf("Warning: stale-site reload failed: %v", err)
	}
	if seedFile := os.Getenv("SEED_FILE"); seedFile != "" {
		if seeds, err := crawler.SeedsFromFile(seedFile); err != nil {
			log.Printf("Warning: seed file not loaded: %v", err)
		} else if err := crawl.StartJob(ctx, "startup-seed", seeds, crawler.JobOptions{}); err != nil {
			log.Printf("Warning: startup seed job not started: %v", err)
		}
	}
	go crawl.Run(ctx)

	// Background enrichment workers.
	go analyzer.New(store, cfg.Analyzer).Run(ctx)

	explorer := txworker.NewExplorerClient(cfg.TxWorker.ExplorerURL, cfg.TxWorker.RatePerSecond)
	go txworker.NewWorker(store, explorer, cfg.TxWorker).Run(ctx)

	collector := crawler.NewCollector(torClient, cfg.Seed)

	r := api.SetupRouter(store, crawl, collector, torCtrl, wsHub)

	log.Printf("Engine running on :%s", cfg.APIPort)
	if err := r.Run(":" + cfg.APIPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
