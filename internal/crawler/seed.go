package crawler

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oniontracex/oniontracex/internal/config"
	"github.com/oniontracex/oniontracex/internal/tor"
	"github.com/oniontracex/oniontracex/internal/urlnorm"
)

// onionSeedPattern matches v2 and v3 onion URLs embedded in arbitrary text,
// including search-result HTML.
var onionSeedPattern = regexp.MustCompile(`https?://[a-zA-Z0-9\-\.]{16,56}\.onion\b`)

// Seed ties a discovered site root to the keyword (or other provenance)
// that surfaced it.
type Seed struct {
	URL     string
	Keyword string
	Source  string
}

// Collector gathers seed onion URLs from the Ahmia search index, from seed
// files and from operator-supplied URLs.
type Collector struct {
	client *tor.Client
	cfg    config.SeedConfig
}

func NewCollector(client *tor.Client, cfg config.SeedConfig) *Collector {
	return &Collector{client: client, cfg: cfg}
}

// ExtractOnionURLs pulls every distinct onion site root out of a blob of
// text, preserving first-seen order.
func ExtractOnionURLs(text string) []string {
	var roots []string
	seen := make(map[string]struct{})
	for _, match := range onionSeedPattern.FindAllString(text, -1) {
		root := urlnorm.SiteRoot(match)
		if _, dup := seen[root]; dup {
			continue
		}
		seen[root] = struct{}{}
		roots = append(roots, root)
	}
	return roots
}

// CollectKeywords queries the search index for each keyword concurrently
// and returns the union of discovered site roots. A keyword that fails all
// retries is logged and skipped; partial discovery beats none.
func (c *Collector) CollectKeywords(ctx context.Context, keywords []string) []Seed {
	var mu sync.Mutex
	var seeds []Seed
	seen := make(map[string]struct{})

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrency)

	for _, keyword := range keywords {
		kw := strings.TrimSpace(keyword)
		if kw == "" {
			continue
		}
		g.Go(func() error {
			roots, err := c.searchKeyword(ctx, kw)
			if err != nil {
				log.Printf("[Seed] Keyword %q failed: %v", kw, err)
				return nil
			}
			mu.Lock()
			for _, root := range roots {
				if _, dup := seen[root]; dup {
					continue
				}
				seen[root] = struct{}{}
				seeds = append(seeds, Seed{URL: root, Keyword: kw, Source: "Seed"})
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("[Seed] Discovered %d site roots from %d keywords", len(seeds), len(keywords))
	return seeds
}

// searchKeyword walks the paginated result pages for one keyword, retrying
// transient failures per page.
func (c *Collector) searchKeyword(ctx context.Context, keyword string) ([]string, error) {
	var roots []string
	seen := make(map[string]struct{})

	for page := 0; page < c.cfg.MaxPages; page++ {
		searchURL := fmt.Sprintf("%s?q=%s&start=%d",
			c.cfg.SearchEndpoint, url.QueryEscape(keyword), page*10)

		body, err := c.fetchWithRetry(ctx, searchURL)
		if err != nil {
			return roots, fmt.Errorf("page %d: %w", page, err)
		}

		found := 0
		for _, root := range ExtractOnionURLs(string(body)) {
			if _, dup := seen[root]; dup {
				continue
			}
			seen[root] = struct{}{}
			roots = append(roots, root)
			found++
		}
		// An empty result page means the index is exhausted for this term.
		if found == 0 {
			break
		}
	}
	return roots, nil
}

func (c *Collector) fetchWithRetry(ctx context.Context, fetchURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.RetryBackoff):
			}
		}
		res, err := c.client.Fetch(ctx, fetchURL, 30*time.Second)
		if err != nil {
			lastErr = err
			continue
		}
		if res.StatusCode >= 400 {
			lastErr = fmt.Errorf("status %d from %s", res.StatusCode, fetchURL)
			continue
		}
		return res.Body, nil
	}
	return nil, lastErr
}

// SeedsFromFile reads a seed list, one URL per line. Lines without an
// onion address are ignored, as are comments.
func SeedsFromFile(path string) ([]Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}

	var seeds []Seed
	for _, root := range ExtractOnionURLs(string(data)) {
		seeds = append(seeds, Seed{URL: root, Source: "File"})
	}
	return seeds, nil
}

// NormalizeManual cleans operator-supplied URLs: whitespace trimmed, a
// missing scheme defaulted to http, non-onion hosts rejected.
func NormalizeManual(raw []string) []Seed {
	var seeds []Seed
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.HasPrefix(entry, "http://") && !strings.HasPrefix(entry, "https://") {
			entry = "http://" + entry
		}
		if !urlnorm.IsOnion(entry) {
			log.Printf("[Seed] Skipping non-onion manual URL %q", entry)
			continue
		}
		seeds = append(seeds, Seed{URL: urlnorm.SiteRoot(entry), Source: "Manual"})
	}
	return seeds
}
