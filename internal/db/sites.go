package db

import (
	"context"
	"fmt"
	"time"

	"github.com/oniontracex/oniontracex/pkg/models"
)

// UpsertSite inserts a SiteRecord if absent. Returns whether a new row was
// created; an existing site_id is left untouched.
func (s *PostgresStore) UpsertSite(ctx context.Context, site models.SiteRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO OnionSites (site_id, url, source, keyword, current_status, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (site_id) DO NOTHING;
	`, site.SiteID, site.URL, site.Source, site.Keyword, site.CurrentStatus, site.FirstSeen, site.LastSeen)
	if err != nil {
		return false, fmt.Errorf("upsert site %s: %w", site.SiteID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateSiteStatus writes current_status and last_seen for a known site.
// Returns whether a row existed.
func (s *PostgresStore) UpdateSiteStatus(ctx context.Context, siteID string, status models.SiteStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE OnionSites
		SET current_status = $1, last_seen = $2
		WHERE site_id = $3;
	`, status, time.Now().UTC(), siteID)
	if err != nil {
		return false, fmt.Errorf("update site status %s: %w", siteID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateSiteKeyword replaces the category hint after classification.
func (s *PostgresStore) UpdateSiteKeyword(ctx context.Context, siteID, keyword string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE OnionSites SET keyword = $1 WHERE site_id = $2;`, keyword, siteID)
	return err
}

// UpsertPage inserts or overwrites a PageRecord: a recrawl replaces the
// blob with fresh bytes, hash and timestamp.
func (s *PostgresStore) UpsertPage(ctx context.Context, page models.PageRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO Pages (page_id, site_id, url, html_hash, raw_html, crawl_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (page_id) DO UPDATE
		SET html_hash = EXCLUDED.html_hash,
		    raw_html = EXCLUDED.raw_html,
		    crawl_date = EXCLUDED.crawl_date;
	`, page.PageID, page.SiteID, page.URL, page.HTMLHash, page.RawHTML, page.CrawlDate)
	if err != nil {
		return fmt.Errorf("upsert page %s: %w", page.PageID, err)
	}
	return nil
}

// StaleSiteRoots returns the roots of sites never crawled or last seen
// before the freshness horizon. The crawler re-queues these on startup.
func (s *PostgresStore) StaleSiteRoots(ctx context.Context, horizon time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-horizon)
	rows, err := s.pool.Query(ctx, `
		SELECT url FROM OnionSites
		WHERE last_seen IS NULL OR last_seen < $1;
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// AllSites returns every registered site for the liveness sweep.
func (s *PostgresStore) AllSites(ctx context.Context) ([]models.SiteRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT site_id, url, source, COALESCE(keyword, ''), current_status, first_seen, last_seen
		FROM OnionSites;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []models.SiteRecord
	for rows.Next() {
		var site models.SiteRecord
		if err := rows.Scan(&site.SiteID, &site.URL, &site.Source, &site.Keyword,
			&site.CurrentStatus, &site.FirstSeen, &site.LastSeen); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// SiteFilter selects and pages through the site registry. Keyset cursors
// follow the (last_seen DESC, site_id DESC) ordering; a nil cursor starts
// from the top.
type SiteFilter struct {
	Status         string
	Keyword        string
	Source         string
	CursorLastSeen *time.Time
	CursorSiteID   string
	Limit          int
}

// ListSites pages through OnionSites with keyset pagination. Sites never
// seen sort last (their last_seen collapses to the epoch for ordering).
func (s *PostgresStore) ListSites(ctx context.Context, f SiteFilter) ([]models.SiteRecord, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT site_id, url, source, COALESCE(keyword, ''), current_status, first_seen, last_seen
		FROM OnionSites
		WHERE ($1 = '' OR current_status = $1)
		  AND ($2 = '' OR keyword = $2)
		  AND ($3 = '' OR source = $3)
		  AND ($4::timestamptz IS NULL
		       OR (COALESCE(last_seen, 'epoch'::timestamptz), site_id) < ($4::timestamptz, $5))
		ORDER BY COALESCE(last_seen, 'epoch'::timestamptz) DESC, site_id DESC
		LIMIT $6;
	`, f.Status, f.Keyword, f.Source, f.CursorLastSeen, f.CursorSiteID, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sites := make([]models.SiteRecord, 0, f.Limit)
	for rows.Next() {
		var site models.SiteRecord
		if err := rows.Scan(&site.SiteID, &site.URL, &site.Source, &site.Keyword,
			&site.CurrentStatus, &site.FirstSeen, &site.LastSeen); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// SiteDetail is the joined view the API serves for one site.
type SiteDetail struct {
	Site      models.SiteRecord       `json:"site"`
	Pages     []models.PageRecord     `json:"pages"`
	Metadata  []models.PageMetadata   `json:"metadata"`
	Addresses []models.BitcoinAddress `json:"addresses"`
}

// GetSiteDetail assembles the site row with its pages (sans blobs),
// extracted metadata and sighted addresses. Returns nil when unknown.
func (s *PostgresStore) GetSiteDetail(ctx context.Context, siteID string) (*SiteDetail, error) {
	var detail SiteDetail
	err := s.pool.QueryRow(ctx, `
		SELECT site_id, url, source, COALESCE(keyword, ''), current_status, first_seen, last_seen
		FROM OnionSites WHERE site_id = $1;
	`, siteID).Scan(&detail.Site.SiteID, &detail.Site.URL, &detail.Site.Source,
		&detail.Site.Keyword, &detail.Site.CurrentStatus, &detail.Site.FirstSeen, &detail.Site.LastSeen)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT page_id, site_id, url, html_hash, crawl_date
		FROM Pages WHERE site_id = $1
		ORDER BY crawl_date DESC;
	`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p models.PageRecord
		if err := rows.Scan(&p.PageID, &p.SiteID, &p.URL, &p.HTMLHash, &p.CrawlDate); err != nil {
			return nil, err
		}
		detail.Pages = append(detail.Pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	metaRows, err := s.pool.Query(ctx, `
		SELECT m.metadata_id, m.page_id, COALESCE(m.title, ''), m.meta_tags, m.emails,
		       m.pgp_keys, m.pgp_fingerprints, m.xmr_addresses, m.vendor_handles,
		       COALESCE(m.language, 'unknown')
		FROM Metadata m
		JOIN Pages p ON p.page_id = m.page_id
		WHERE p.site_id = $1;
	`, siteID)
	if err != nil {
		return nil, err
	}
	defer metaRows.Close()
	for metaRows.Next() {
		m, err := scanMetadata(metaRows)
		if err != nil {
			return nil, err
		}
		detail.Metadata = append(detail.Metadata, m)
	}
	if err := metaRows.Err(); err != nil {
		return nil, err
	}

	addrRows, err := s.pool.Query(ctx, `
		SELECT address_id, address, site_id, page_id, valid, detected_at, tx_analyzed
		FROM BitcoinAddresses WHERE site_id = $1;
	`, siteID)
	if err != nil {
		return nil, err
	}
	defer addrRows.Close()
	for addrRows.Next() {
		var a models.BitcoinAddress
		if err := addrRows.Scan(&a.AddressID, &a.Address, &a.SiteID, &a.PageID,
			&a.Valid, &a.DetectedAt, &a.TxAnalyzed); err != nil {
			return nil, err
		}
		detail.Addresses = append(detail.Addresses, a)
	}
	return &detail, addrRows.Err()
}

// RecentPages returns up to limit raw page blobs for a site, newest first,
// skipping bodies at or below minBytes. The classifier feeds on these.
func (s *PostgresStore) RecentPages(ctx context.Context, siteID string, minBytes, limit int) ([][]byte, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT raw_html FROM Pages
		WHERE site_id = $1
		  AND raw_html IS NOT NULL
		  AND octet_length(raw_html) > $2
		ORDER BY crawl_date DESC
		LIMIT $3;
	`, siteID, minBytes, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages [][]byte
	for rows.Next() {
		var html []byte
		if err := rows.Scan(&html); err != nil {
			return nil, err
		}
		pages = append(pages, html)
	}
	return pages, rows.Err()
}
