// Package liveness sweeps the site registry and records a timestamped
// probe result per site. Designed as a one-shot pass for cron-style
// scheduling; the engine's crawl loop handles continuous freshness.
package liveness

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/oniontracex/oniontracex/internal/config"
	"github.com/oniontracex/oniontracex/internal/db"
	"github.com/oniontracex/oniontracex/internal/tor"
	"github.com/oniontracex/oniontracex/internal/urlnorm"
	"github.com/oniontracex/oniontracex/pkg/models"
)

const interBatchPause = 2 * time.Second

// Prober checks every registered site over Tor with bounded concurrency.
type Prober struct {
	store  *db.PostgresStore
	client *tor.Client
	cfg    config.LivenessConfig
}

func NewProber(store *db.PostgresStore, client *tor.Client, cfg config.LivenessConfig) *Prober {
	return &Prober{store: store, client: client, cfg: cfg}
}

// Sweep probes all sites in batches. Within a batch, a weighted semaphore
// caps in-flight probes; batches are separated by a pause so a large
// registry does not saturate the local Tor daemon's circuit pool.
func (p *Prober) Sweep(ctx context.Context) error {
	sites, err := p.store.AllSites(ctx)
	if err != nil {
		return err
	}
	log.Printf("[Liveness] Sweeping %d sites", len(sites))

	sem := semaphore.NewWeighted(int64(p.cfg.MaxConcurrency))
	for start := 0; start < len(sites); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(sites) {
			end = len(sites)
		}

		var wg sync.WaitGroup
		for _, site := range sites[start:end] {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			wg.Add(1)
			go func(site models.SiteRecord) {
				defer wg.Done()
				defer sem.Release(1)
				p.probeSite(ctx, site)
			}(site)
		}
		wg.Wait()

		if end < len(sites) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interBatchPause):
			}
		}
	}
	log.Println("[Liveness] Sweep complete")
	return nil
}

func (p *Prober) probeSite(ctx context.Context, site models.SiteRecord) {
	// Jitter desynchronizes probe start times within a batch.
	jitter := p.cfg.JitterMin +
		time.Duration(rand.Int63n(int64(p.cfg.JitterMax-p.cfg.JitterMin)+1))
	select {
	case <-ctx.Done():
		return
	case <-time.After(jitter):
	}

	status, responseTime := p.probe(ctx, site.URL)

	checkTime := time.Now().UTC()
	result := models.Liveness{
		LivenessID:   urlnorm.Hash(site.SiteID + checkTime.Format(time.RFC3339Nano)),
		SiteID:       site.SiteID,
		Status:       status,
		ResponseTime: responseTime,
		CheckTime:    checkTime,
	}
	if err := p.store.RecordLiveness(ctx, result); err != nil {
		log.Printf("[Liveness] Record failed for %s: %v", site.URL, err)
		return
	}
	if site.CurrentStatus != status {
		log.Printf("[Liveness] %s: %s -> %s", site.URL, site.CurrentStatus, status)
	}
}

// probe issues one GET and measures wall-clock latency to the final
// response. ResponseTime is nil unless an HTTP response arrived.
func (p *Prober) probe(ctx context.Context, url string) (models.SiteStatus, *float64) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.StatusError, nil
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return classifyProbeError(err), nil
	}
	defer resp.Body.Close()

	elapsed := time.Since(start).Seconds()
	if resp.StatusCode < 400 {
		return models.StatusAlive, &elapsed
	}
	return models.StatusDead, &elapsed
}

func classifyProbeError(err error) models.SiteStatus {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.StatusTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.StatusTimeout
	}
	return models.StatusError
}
