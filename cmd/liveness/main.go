// Liveness sweep binary: probes every registered site once and exits.
// Intended to run from cron between engine crawl cycles.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/oniontracex/oniontracex/internal/config"
	"github.com/oniontracex/oniontracex/internal/db"
	"github.com/oniontracex/oniontracex/internal/liveness"
	"github.com/oniontracex/oniontracex/internal/tor"
)

func main() {
	log.Println("Starting OnionTraceX liveness sweep...")

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

	torClient, err := tor.NewClient(cfg.Tor.SocksAddr(), cfg.Liveness.ConnectTimeout)
	if err != nil {
		log.Fatalf("FATAL: Tor client setup failed: %v", err)
	}

	prober := liveness.NewProber(store, torClient, cfg.Liveness)
	if err := prober.Sweep(ctx); err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}
}
