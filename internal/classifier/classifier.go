// Package classifier assigns a category to alive sites using keyword
// dictionaries over their recent page text. Deliberately simple: the
// model name and version travel with each verdict so a smarter model can
// coexist with this one later.
package classifier

import (
	"bytes"
	"context"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/oniontracex/oniontracex/internal/config"
	"github.com/oniontracex/oniontracex/internal/db"
	"github.com/oniontracex/oniontracex/pkg/models"
)

const (
	// Pages at or below this byte count are skipped as content-free.
	minPageBytes = 200
	// How many recent pages feed one verdict.
	pagesPerSite = 3

	statusClassified    = "classified"
	statusLowConfidence = "low_confidence"
	statusNoContent     = "no_content"

	unknownLabel = "unknown"
)

// Verdict is one classification outcome before persistence.
type Verdict struct {
	Label      string
	Confidence float64
	Status     string
}

// Classifier runs one classification pass over unclassified alive sites.
type Classifier struct {
	store *db.PostgresStore
	cfg   config.ClassifierConfig
}

func New(store *db.PostgresStore, cfg config.ClassifierConfig) *Classifier {
	return &Classifier{store: store, cfg: cfg}
}

// Run classifies every alive site this model version has not seen yet.
func (c *Classifier) Run(ctx context.Context) error {
	sites, err := c.store.SitesPendingClassification(ctx, c.cfg.ModelName, c.cfg.ModelVersion)
	if err != nil {
		return err
	}
	log.Printf("[Classifier] %d sites pending", len(sites))

	for _, site := range sites {
		if err := c.classifySite(ctx, site); err != nil {
			log.Printf("[Classifier] Site %s failed: %v", site.SiteID, err)
		}
	}
	return nil
}

func (c *Classifier) classifySite(ctx context.Context, site models.SiteRecord) error {
	pages, err := c.store.RecentPages(ctx, site.SiteID, minPageBytes, pagesPerSite)
	if err != nil {
		return err
	}

	var text strings.Builder
	for _, page := range pages {
		text.WriteString(VisibleText(page))
		text.WriteByte(' ')
	}

	verdict := Classify(c.cfg.Labels, text.String(), c.cfg.AcceptThreshold)
	if err := c.store.InsertClassification(ctx, models.SiteClassification{
		SiteID:           site.SiteID,
		ModelName:        c.cfg.ModelName,
		ModelVersion:     c.cfg.ModelVersion,
		PredictedKeyword: verdict.Label,
		Confidence:       verdict.Confidence,
		AnalysedAt:       time.Now().UTC(),
		Status:           verdict.Status,
	}); err != nil {
		return err
	}

	// The registry keyword only moves on a confident, different verdict.
	if verdict.Label != unknownLabel && verdict.Label != site.Keyword {
		if err := c.store.UpdateSiteKeyword(ctx, site.SiteID, verdict.Label); err != nil {
			return err
		}
		log.Printf("[Classifier] %s: %q -> %q (%.2f)",
			site.URL, site.Keyword, verdict.Label, verdict.Confidence)
	}
	return nil
}

// VisibleText strips script, style and noscript content and returns the
// lowercased rendered text of an HTML document.
func VisibleText(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return strings.ToLower(string(html))
	}
	doc.Find("script, style, noscript").Remove()
	return strings.ToLower(doc.Text())
}

// Classify scores each label by how many of its keywords occur in the
// text, normalizes across labels and applies the acceptance threshold.
// Pure function; text is assumed lowercased.
func Classify(labels map[string][]string, text string, threshold float64) Verdict {
	if strings.TrimSpace(text) == "" {
		return Verdict{Label: unknownLabel, Status: statusNoContent}
	}

	scores := make(map[string]int, len(labels))
	total := 0
	for label, keywords := range labels {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				scores[label]++
				total++
			}
		}
	}
	if total == 0 {
		return Verdict{Label: unknownLabel, Status: statusLowConfidence}
	}

	best, bestScore := unknownLabel, 0
	for label, score := range scores {
		if score > bestScore || (score == bestScore && label < best) {
			best, bestScore = label, score
		}
	}

	confidence := float64(bestScore) / float64(total)
	if confidence < threshold {
		return Verdict{Label: unknownLabel, Confidence: confidence, Status: statusLowConfidence}
	}
	return Verdict{Label: best, Confidence: confidence, Status: statusClassified}
}
