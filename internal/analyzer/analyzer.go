package analyzer

import (
	"context"
	"log"
	"time"

	"github.com/oniontracex/oniontracex/internal/config"
	"github.com/oniontracex/oniontracex/internal/db"
	"github.com/oniontracex/oniontracex/internal/urlnorm"
	"github.com/oniontracex/oniontracex/pkg/models"
)

// Analyzer is the background worker that drains unanalyzed pages. One page
// failing never blocks the batch; its metadata row stays absent and it is
// retried on the next pass.
type Analyzer struct {
	store *db.PostgresStore
	cfg   config.AnalyzerConfig
}

func New(store *db.PostgresStore, cfg config.AnalyzerConfig) *Analyzer {
	return &Analyzer{store: store, cfg: cfg}
}

// Run polls for unanalyzed pages until ctx is cancelled.
func (a *Analyzer) Run(ctx context.Context) {
	log.Println("[Analyzer] Worker started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[Analyzer] Worker stopped")
			return
		default:
		}

		processed, err := a.runBatch(ctx)
		if err != nil {
			log.Printf("[Analyzer] Batch failed: %v", err)
		}
		if processed > 0 {
			log.Printf("[Analyzer] Processed %d pages", processed)
			continue
		}

		select {
		case <-ctx.Done():
			log.Println("[Analyzer] Worker stopped")
			return
		case <-time.After(a.cfg.SleepInterval):
		}
	}
}

func (a *Analyzer) runBatch(ctx context.Context) (int, error) {
	pages, err := a.store.UnanalyzedPages(ctx, a.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, page := range pages {
		if err := a.analyzePage(ctx, page); err != nil {
			log.Printf("[Analyzer] Page %s failed: %v", page.PageID, err)
			continue
		}
		processed++
	}
	return processed, nil
}

// analyzePage extracts and persists everything from one page. The metadata
// insert comes last: its presence is what marks the page analyzed, so a
// partial failure leaves the page eligible for retry.
func (a *Analyzer) analyzePage(ctx context.Context, page models.PageRecord) error {
	now := time.Now().UTC()

	for _, candidate := range ExtractAddressCandidates(string(page.RawHTML)) {
		if !ValidateAddress(candidate) {
			continue
		}
		addr := models.BitcoinAddress{
			AddressID:  urlnorm.Hash(candidate),
			Address:    candidate,
			SiteID:     page.SiteID,
			PageID:     page.PageID,
			Valid:      true,
			DetectedAt: now,
		}
		if err := a.store.InsertAddress(ctx, addr); err != nil {
			return err
		}
	}

	meta := ExtractMetadata(page.PageID, page.RawHTML)
	return a.store.InsertMetadata(ctx, meta)
}
