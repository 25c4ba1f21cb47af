// Package api exposes the control and query surface: crawl job control,
// registry queries, vendor intelligence, mixer listings and a websocket
// event stream.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oniontracex/oniontracex/internal/crawler"
	"github.com/oniontracex/oniontracex/internal/db"
	"github.com/oniontracex/oniontracex/internal/tor"
	"github.com/oniontracex/oniontracex/internal/vendors"
)

type APIHandler struct {
	store     *db.PostgresStore
	crawler   *crawler.Crawler
	collector *crawler.Collector
	torCtrl   *tor.Controller
	wsHub     *Hub
}

func SetupRouter(store *db.PostgresStore, crawl *crawler.Crawler,
	collector *crawler.Collector, torCtrl *tor.Controller, wsHub *Hub) *gin.Engine {

	r := gin.Default()

	// CORS is configurable via ALLOWED_ORIGINS; empty means permissive,
	// which is only appropriate behind a trusted reverse proxy.
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		store:     store,
		crawler:   crawl,
		collector: collector,
		torCtrl:   torCtrl,
		wsHub:     wsHub,
	}

	limiter := NewRateLimiter(60, 20)

	api := r.Group("/api/v1")
	api.Use(limiter.Middleware())
	{
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", wsHub.Subscribe)

		api.GET("/crawler/status", handler.handleCrawlerStatus)
		api.POST("/crawler/start", AuthMiddleware(), handler.handleCrawlerStart)
		api.POST("/crawler/stop", AuthMiddleware(), handler.handleCrawlerStop)

		api.GET("/sites", handler.handleListSites)
		api.GET("/sites/:id", handler.handleGetSite)
		api.GET("/sites/:id/liveness", handler.handleSiteLiveness)

		api.GET("/vendors", handler.handleListVendors)
		api.GET("/vendors/graph", handler.handleVendorGraph)
		api.GET("/vendors/:id", handler.handleGetVendor)

		api.GET("/mixers", handler.handleGetMixers)

		api.POST("/tor/newnym", AuthMiddleware(), handler.handleNewIdentity)
	}

	return r
}

// handleCrawlerStart accepts a crawl request and launches seed collection
// in the background. Keyword search over Tor is slow, so the response is
// an immediate 202 with the job ID; progress flows through /crawler/status
// and the event stream.
func (h *APIHandler) handleCrawlerStart(c *gin.Context) {
	var req struct {
		Keywords           []string `json:"keywords"`
		ManualURLs         []string `json:"manualUrls"`
		CrawlDepth         int      `json:"crawlDepth"`
		PoliteDelaySeconds float64  `json:"politeDelaySeconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.Keywords) == 0 && len(req.ManualURLs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Provide keywords or manualUrls"})
		return
	}

	state := h.crawler.Snapshot().State
	if state == crawler.StateRunning || state == crawler.StateStarting {
		c.JSON(http.StatusConflict, gin.H{"error": "A crawl job is already running"})
		return
	}

	jobID := uuid.NewString()
	opts := crawler.JobOptions{
		CrawlDepth:  req.CrawlDepth,
		PoliteDelay: time.Duration(req.PoliteDelaySeconds * float64(time.Second)),
	}

	// The request context dies with the response; seed collection outlives
	// it by design.
	go func() {
		ctx := context.Background()
		seeds := crawler.NormalizeManual(req.ManualURLs)
		if len(req.Keywords) > 0 {
			seeds = append(seeds, h.collector.CollectKeywords(ctx, req.Keywords)...)
		}
		if err := h.crawler.StartJob(ctx, jobID, seeds, opts); err != nil {
			log.Printf("[API] Job %s failed to start: %v", jobID, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"jobId":  jobID,
		"status": "accepted",
	})
}

func (h *APIHandler) handleCrawlerStop(c *gin.Context) {
	h.crawler.Stop()
	c.JSON(http.StatusOK, h.crawler.Snapshot())
}

func (h *APIHandler) handleCrawlerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.crawler.Snapshot())
}

// handleListSites pages through the registry with keyset pagination. The
// cursor parameters come verbatim from the previous page's last row.
func (h *APIHandler) handleListSites(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter := db.SiteFilter{
		Status:       c.Query("status"),
		Keyword:      c.Query("keyword"),
		Source:       c.Query("source"),
		CursorSiteID: c.Query("cursorSiteId"),
		Limit:        limit,
	}
	if raw := c.Query("cursorLastSeen"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cursorLastSeen must be RFC3339"})
			return
		}
		filter.CursorLastSeen = &ts
	}

	sites, err := h.store.ListSites(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sites", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sites, "count": len(sites)})
}

func (h *APIHandler) handleGetSite(c *gin.Context) {
	detail, err := h.store.GetSiteDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown site"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load site", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *APIHandler) handleSiteLiveness(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	history, err := h.store.LivenessHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load liveness history", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history, "count": len(history)})
}

func (h *APIHandler) handleListVendors(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	vendors, err := h.store.VendorOverview(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list vendors", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": vendors, "count": len(vendors)})
}

func (h *APIHandler) handleGetVendor(c *gin.Context) {
	detail, err := h.store.GetVendorDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown vendor"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load vendor", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *APIHandler) handleVendorGraph(c *gin.Context) {
	graph, err := vendors.LoadGraph(c.Request.Context(), h.store)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build graph", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, graph)
}

// handleGetMixers returns transactions flagged by the fan-in/fan-out
// heuristic, paginated.
func (h *APIHandler) handleGetMixers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	mixers, totalCount, err := h.store.MixerTransactions(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch mixers", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       mixers,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}

// handleNewIdentity requests fresh Tor circuits, for operators who suspect
// a burned exit or a blocked guard.
func (h *APIHandler) handleNewIdentity(c *gin.Context) {
	if h.torCtrl == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Tor control port not configured"})
		return
	}
	if err := h.torCtrl.NewIdentity(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "NEWNYM failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "circuits rotating"})
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "operational",
		"crawler": h.crawler.Snapshot().State,
		"stats":   stats,
	})
}
