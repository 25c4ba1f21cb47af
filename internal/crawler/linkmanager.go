// Package crawler implements onion-site discovery and the depth-bounded
// crawl loop. Fetching goes through the shared Tor client; persistence
// through the Postgres store.
package crawler

import (
	"sync"

	"github.com/oniontracex/oniontracex/internal/urlnorm"
)

// QueueItem is one pending fetch. Depth 0 is the site root.
type QueueItem struct {
	URL   string
	Depth int
}

// LinkManager is the crawl frontier: two FIFO queues plus the visited set.
// Inner pages always drain before new site roots, so a discovered site is
// explored to depth before the crawl hops onward. All methods are safe for
// concurrent use.
type LinkManager struct {
	mu         sync.Mutex
	outer      []QueueItem
	inner      []QueueItem
	visited    map[string]struct{}
	innerCount map[string]int
	maxDepth   int
	maxInner   int
}

func NewLinkManager(maxDepth, maxInnerPerSite int) *LinkManager {
	return &LinkManager{
		visited:    make(map[string]struct{}),
		innerCount: make(map[string]int),
		maxDepth:   maxDepth,
		maxInner:   maxInnerPerSite,
	}
}

// AddSite queues a site root for crawling. Returns false when the root was
// already seen this run.
func (lm *LinkManager) AddSite(rawURL string) bool {
	root := urlnorm.SiteRoot(rawURL)
	if root == "" {
		return false
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, seen := lm.visited[root]; seen {
		return false
	}
	lm.visited[root] = struct{}{}
	lm.outer = append(lm.outer, QueueItem{URL: root, Depth: 0})
	return true
}

// AddInnerPage queues a same-site page found at the given parent depth.
// Pages beyond the depth limit, beyond the per-site page cap or already
// visited are dropped.
func (lm *LinkManager) AddInnerPage(rawURL string, parentDepth int) bool {
	canonical := urlnorm.Canonical(rawURL)
	domain := urlnorm.Domain(rawURL)
	if canonical == "" || domain == "" {
		return false
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if parentDepth+1 > lm.maxDepth {
		return false
	}
	if _, seen := lm.visited[canonical]; seen {
		return false
	}
	if lm.innerCount[domain] >= lm.maxInner {
		return false
	}
	lm.visited[canonical] = struct{}{}
	lm.innerCount[domain]++
	lm.inner = append(lm.inner, QueueItem{URL: canonical, Depth: parentDepth + 1})
	return true
}

// Next pops the next fetch target. isRoot reports whether the item came off
// the outer queue. ok is false when both queues are empty.
func (lm *LinkManager) Next() (item QueueItem, isRoot bool, ok bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if len(lm.inner) > 0 {
		item, lm.inner = lm.inner[0], lm.inner[1:]
		return item, false, true
	}
	if len(lm.outer) > 0 {
		item, lm.outer = lm.outer[0], lm.outer[1:]
		return item, true, true
	}
	return QueueItem{}, false, false
}

// Pending returns the combined queue length.
func (lm *LinkManager) Pending() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.inner) + len(lm.outer)
}

// SetMaxDepth adjusts the depth limit for subsequent AddInnerPage calls.
func (lm *LinkManager) SetMaxDepth(depth int) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if depth > 0 {
		lm.maxDepth = depth
	}
}

// Clear drops both queues. Visited history survives so a stopped job does
// not re-fetch its pages when restarted within the same process.
func (lm *LinkManager) Clear() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.inner = nil
	lm.outer = nil
}

// Visited reports whether a URL (canonicalized) has already been queued or
// fetched this run.
func (lm *LinkManager) Visited(rawURL string) bool {
	canonical := urlnorm.Canonical(rawURL)
	lm.mu.Lock()
	defer lm.mu.Unlock()
	_, seen := lm.visited[canonical]
	return seen
}
