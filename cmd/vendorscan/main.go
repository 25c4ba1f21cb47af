// Vendor scan binary: runs one correlation pass (seed, attach, merge,
// score) followed by a classification pass over alive sites. Both passes
// are idempotent, so scheduling it repeatedly is safe.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/oniontracex/oniontracex/internal/classifier"
	"github.com/oniontracex/oniontracex/internal/config"
	"github.com/oniontracex/oniontracex/internal/db"
	"github.com/oniontracex/oniontracex/internal/vendors"
)

func main() {
	log.Println("Starting OnionTraceX vendor scan...")

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

	if err := vendors.NewCorrelator(store).Run(ctx); err != nil {
		log.Fatalf("Correlation pass failed: %v", err)
	}
	if err := classifier.New(store, cfg.Classifier).Run(ctx); err != nil {
		log.Fatalf("Classification pass failed: %v", err)
	}
	log.Println("Vendor scan complete")
}
