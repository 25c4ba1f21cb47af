package txworker

import (
	"context"
	"log"
	"time"

	"github.com/oniontracex/oniontracex/internal/config"
	"github.com/oniontracex/oniontracex/pkg/models"
)

// Store is the persistence surface the worker needs.
type Store interface {
	PendingAddresses(ctx context.Context, limit int) ([]models.BitcoinAddress, error)
	MarkAddressAnalyzed(ctx context.Context, addressID string) error
	SaveTransactionAnalysis(ctx context.Context, summaries []models.TransactionSummary, edges []models.TransactionEdge) error
}

// ChainSource resolves an address to its transaction history.
type ChainSource interface {
	AddressTransactions(ctx context.Context, address string) ([]models.ExplorerTx, error)
}

// Worker drains the pending-address backlog against the explorer.
type Worker struct {
	store    Store
	explorer ChainSource
	cfg      config.TxWorkerConfig
}

func NewWorker(store Store, explorer ChainSource, cfg config.TxWorkerConfig) *Worker {
	return &Worker{store: store, explorer: explorer, cfg: cfg}
}

// Run polls for unanalyzed addresses until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	log.Println("[TxWorker] Worker started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[TxWorker] Worker stopped")
			return
		default:
		}

		processed, err := w.runBatch(ctx)
		if err != nil {
			log.Printf("[TxWorker] Batch failed: %v", err)
		}
		if processed > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			log.Println("[TxWorker] Worker stopped")
			return
		case <-time.After(w.cfg.SleepInterval):
		}
	}
}

// runBatch counts only addresses that completed, so a persistent storage
// failure falls through to the sleep interval instead of hot-looping over
// the same still-pending rows.
func (w *Worker) runBatch(ctx context.Context) (int, error) {
	addrs, err := w.store.PendingAddresses(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, addr := range addrs {
		if err := w.analyzeAddress(ctx, addr); err != nil {
			log.Printf("[TxWorker] Address %s failed: %v", addr.Address, err)
			continue
		}
		processed++
	}
	return processed, nil
}

// analyzeAddress fetches, derives and persists one address's history. The
// analyzed flag flips last, after all rows landed, so a crash mid-way
// leaves the address eligible for a clean retry. An address the explorer
// cannot resolve is still marked analyzed; retrying it would never
// produce a different answer.
func (w *Worker) analyzeAddress(ctx context.Context, addr models.BitcoinAddress) error {
	txs, err := w.explorer.AddressTransactions(ctx, addr.Address)
	if err != nil {
		log.Printf("[TxWorker] Explorer lookup failed for %s, marking analyzed: %v", addr.Address, err)
		return w.store.MarkAddressAnalyzed(ctx, addr.AddressID)
	}

	if len(txs) > 0 {
		summaries, edges := AnalyzeTransactions(addr, txs)
		if err := w.store.SaveTransactionAnalysis(ctx, summaries, edges); err != nil {
			return err
		}
		mixers := 0
		for _, s := range summaries {
			if s.IsMixer {
				mixers++
			}
		}
		if mixers > 0 {
			log.Printf("[TxWorker] %s: %d transactions, %d flagged as mixer-like", addr.Address, len(summaries), mixers)
		}
	}
	return w.store.MarkAddressAnalyzed(ctx, addr.AddressID)
}
