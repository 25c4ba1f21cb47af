package crawler

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oniontracex/oniontracex/internal/config"
	"github.com/oniontracex/oniontracex/internal/db"
	"github.com/oniontracex/oniontracex/internal/tor"
	"github.com/oniontracex/oniontracex/internal/urlnorm"
	"github.com/oniontracex/oniontracex/pkg/models"
)

const (
	fetchTimeout = 25 * time.Second
	idleSleep    = 5 * time.Second
	// Sites untouched for this long get re-queued on startup.
	freshnessHorizon = 6 * time.Hour
)

// Crawl job lifecycle states reported through the status endpoint.
const (
	StateIdle      = "idle"
	StateStarting  = "starting"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateStopped   = "stopped"
	StateError     = "error"
)

// Status is the snapshot served by GET /crawler/status.
type Status struct {
	State      string `json:"state"`
	JobID      string `json:"jobId"`
	Progress   int    `json:"progress"`
	Message    string `json:"message"`
	Processed  int64  `json:"processed"`
	Discovered int64  `json:"discovered"`
	Pending    int    `json:"pending"`
}

// Crawler drives the fetch loop. One Run goroutine owns all fetching;
// jobs arrive through StartJob, which feeds the frontier.
type Crawler struct {
	store  *db.PostgresStore
	client *tor.Client
	links  *LinkManager
	cfg    config.CrawlerConfig

	// notify, when set, receives lifecycle events for the event stream.
	notify func(event string, payload any)

	mu          sync.Mutex
	state       string
	jobID       string
	message     string
	politeDelay time.Duration

	processed  atomic.Int64
	discovered atomic.Int64
}

func New(store *db.PostgresStore, client *tor.Client, cfg config.CrawlerConfig) *Crawler {
	return &Crawler{
		store:       store,
		client:      client,
		links:       NewLinkManager(cfg.MaxDepth, cfg.MaxInnerPerSite),
		cfg:         cfg,
		state:       StateIdle,
		politeDelay: cfg.PoliteDelay,
	}
}

// SetNotifier wires the event sink. Must be called before Run.
func (c *Crawler) SetNotifier(fn func(event string, payload any)) {
	c.notify = fn
}

// ReloadStale re-queues sites never crawled or last seen beyond the
// freshness horizon. Called once on startup so a restart resumes coverage.
func (c *Crawler) ReloadStale(ctx context.Context) error {
	roots, err := c.store.StaleSiteRoots(ctx, freshnessHorizon)
	if err != nil {
		return err
	}
	queued := 0
	for _, root := range roots {
		if c.links.AddSite(root) {
			queued++
		}
	}
	if queued > 0 {
		log.Printf("[Crawler] Re-queued %d stale sites", queued)
	}
	return nil
}

// JobOptions are the per-job overrides a start request may carry. Zero
// values fall back to the configured defaults.
type JobOptions struct {
	CrawlDepth  int
	PoliteDelay time.Duration
}

// StartJob registers the given seeds and marks a job active. Seeds whose
// site row already exists are recorded but not re-queued; freshness is
// ReloadStale's concern.
func (c *Crawler) StartJob(ctx context.Context, jobID string, seeds []Seed, opts JobOptions) error {
	c.mu.Lock()
	if c.state == StateRunning || c.state == StateStarting {
		c.mu.Unlock()
		return errors.New("a crawl job is already running")
	}
	c.state = StateStarting
	c.jobID = jobID
	c.message = "registering seeds"
	if opts.PoliteDelay > 0 {
		c.politeDelay = opts.PoliteDelay
	} else {
		c.politeDelay = c.cfg.PoliteDelay
	}
	if opts.CrawlDepth > 0 {
		c.links.SetMaxDepth(opts.CrawlDepth)
	} else {
		c.links.SetMaxDepth(c.cfg.MaxDepth)
	}
	c.mu.Unlock()

	queued := 0
	for _, seed := range seeds {
		inserted, err := c.persistSeed(ctx, seed)
		if err != nil {
			log.Printf("[Crawler] Seed %s not persisted: %v", seed.URL, err)
			continue
		}
		if inserted && c.links.AddSite(seed.URL) {
			queued++
		}
	}

	c.mu.Lock()
	c.state = StateRunning
	c.message = "crawling"
	c.mu.Unlock()

	log.Printf("[Crawler] Job %s started with %d new seeds", jobID, queued)
	c.emit("crawler:status", c.Snapshot())
	return nil
}

// Stop drains the frontier and marks the active job stopped. The Run loop
// itself keeps waiting for the next job.
func (c *Crawler) Stop() {
	c.links.Clear()
	c.mu.Lock()
	if c.state == StateRunning || c.state == StateStarting {
		c.state = StateStopped
		c.message = "stopped by operator"
	}
	c.mu.Unlock()
	c.emit("crawler:status", c.Snapshot())
}

// Snapshot returns the current job status.
func (c *Crawler) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.links.Pending()
	processed := c.processed.Load()
	progress := 0
	if total := processed + int64(pending); total > 0 {
		progress = int(processed * 100 / total)
	}
	return Status{
		State:      c.state,
		JobID:      c.jobID,
		Progress:   progress,
		Message:    c.message,
		Processed:  processed,
		Discovered: c.discovered.Load(),
		Pending:    pending,
	}
}

// Run is the crawl loop. It drains the frontier one page at a time with a
// polite delay between fetches, idles when empty, and exits when ctx is
// cancelled.
func (c *Crawler) Run(ctx context.Context) {
	log.Println("[Crawler] Loop started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[Crawler] Loop stopped")
			return
		default:
		}

		item, isRoot, ok := c.links.Next()
		if !ok {
			c.finishIfRunning()
			if !sleepCtx(ctx, idleSleep) {
				return
			}
			continue
		}

		c.crawlOne(ctx, item, isRoot)
		c.processed.Add(1)
		c.emit("crawler:status", c.Snapshot())

		c.mu.Lock()
		delay := c.politeDelay
		c.mu.Unlock()
		if !sleepCtx(ctx, delay) {
			return
		}
	}
}

func (c *Crawler) crawlOne(ctx context.Context, item QueueItem, isRoot bool) {
	res, err := c.client.Fetch(ctx, item.URL, fetchTimeout)
	status := classifyFetch(res, err)

	if isRoot {
		if _, uerr := c.store.UpdateSiteStatus(ctx, urlnorm.SiteID(item.URL), status); uerr != nil {
			log.Printf("[Crawler] Status update failed for %s: %v", item.URL, uerr)
		}
	}
	if status != models.StatusAlive {
		log.Printf("[Crawler] %s -> %s", item.URL, status)
		return
	}

	// Subdomain pages root at their own host; make sure that site row
	// exists before the page references it.
	if !isRoot {
		if _, err := c.persistSeed(ctx, Seed{URL: item.URL, Source: "Exploratory"}); err != nil {
			log.Printf("[Crawler] Site row for %s not ensured: %v", item.URL, err)
			return
		}
	}

	page := models.PageRecord{
		PageID:    urlnorm.PageID(item.URL),
		SiteID:    urlnorm.SiteID(item.URL),
		URL:       urlnorm.Canonical(item.URL),
		HTMLHash:  urlnorm.Hash(string(res.Body)),
		RawHTML:   res.Body,
		CrawlDate: time.Now().UTC(),
	}
	if err := c.store.UpsertPage(ctx, page); err != nil {
		log.Printf("[Crawler] Page persist failed for %s: %v", item.URL, err)
		return
	}

	c.followLinks(ctx, item, res.Body)
}

// followLinks routes extracted links: same-domain pages join the inner
// queue, foreign onion roots are registered as exploratory discoveries.
func (c *Crawler) followLinks(ctx context.Context, item QueueItem, html []byte) {
	domain := urlnorm.Domain(item.URL)
	for _, link := range ExtractLinks(item.URL, html) {
		if !urlnorm.IsOnion(link) {
			continue
		}
		if urlnorm.Domain(link) == domain {
			c.links.AddInnerPage(link, item.Depth)
			continue
		}

		root := urlnorm.SiteRoot(link)
		inserted, err := c.persistSeed(ctx, Seed{URL: root, Source: "Exploratory"})
		if err != nil {
			log.Printf("[Crawler] Discovery %s not persisted: %v", root, err)
			continue
		}
		if inserted && c.links.AddSite(root) {
			c.discovered.Add(1)
			c.emit("site:discovered", map[string]string{"url": root})
		}
	}
}

func (c *Crawler) persistSeed(ctx context.Context, seed Seed) (bool, error) {
	return c.store.UpsertSite(ctx, models.SiteRecord{
		SiteID:        urlnorm.SiteID(seed.URL),
		URL:           urlnorm.SiteRoot(seed.URL),
		Source:        seed.Source,
		Keyword:       seed.Keyword,
		CurrentStatus: models.StatusUnknown,
		FirstSeen:     time.Now().UTC(),
	})
}

func (c *Crawler) finishIfRunning() {
	c.mu.Lock()
	finished := c.state == StateRunning
	if finished {
		c.state = StateCompleted
		c.message = "frontier drained"
	}
	c.mu.Unlock()
	if finished {
		log.Printf("[Crawler] Job %s completed: %d pages, %d sites discovered",
			c.jobID, c.processed.Load(), c.discovered.Load())
		c.emit("crawler:status", c.Snapshot())
	}
}

func (c *Crawler) emit(event string, payload any) {
	if c.notify != nil {
		c.notify(event, payload)
	}
}

// classifyFetch maps a fetch outcome onto the site status taxonomy.
// Timeouts are distinguished from other transport failures because a slow
// onion service is often still alive.
func classifyFetch(res *tor.FetchResult, err error) models.SiteStatus {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.StatusTimeout
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return models.StatusTimeout
		}
		return models.StatusError
	}
	if res.StatusCode < 400 {
		return models.StatusAlive
	}
	return models.StatusDead
}

// sleepCtx waits for d unless ctx is cancelled first; reports whether the
// caller should keep running.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
