package db

import (
	"context"
	"fmt"

	"github.com/oniontracex/oniontracex/pkg/models"
)

// RecordLiveness appends one probe result and advances the site's current
// status in the same transaction, so the registry never disagrees with the
// probe history.
func (s *PostgresStore) RecordLiveness(ctx context.Context, l models.Liveness) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, `
		INSERT INTO SiteLiveness (liveness_id, site_id, status, response_time, check_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (liveness_id) DO NOTHING;
	`, l.LivenessID, l.SiteID, l.Status, l.ResponseTime, l.CheckTime); err != nil {
		return fmt.Errorf("insert liveness for %s: %w", l.SiteID, err)
	}
	if _, err = tx.Exec(ctx, `
		UPDATE OnionSites SET current_status = $1, last_seen = $2 WHERE site_id = $3;
	`, l.Status, l.CheckTime, l.SiteID); err != nil {
		return fmt.Errorf("update status for %s: %w", l.SiteID, err)
	}
	return tx.Commit(ctx)
}

// LivenessHistory returns the recent probe results for one site.
func (s *PostgresStore) LivenessHistory(ctx context.Context, siteID string, limit int) ([]models.Liveness, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT liveness_id, site_id, status, response_time, check_time
		FROM SiteLiveness
		WHERE site_id = $1
		ORDER BY check_time DESC
		LIMIT $2;
	`, siteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.Liveness
	for rows.Next() {
		var l models.Liveness
		if err := rows.Scan(&l.LivenessID, &l.SiteID, &l.Status, &l.ResponseTime, &l.CheckTime); err != nil {
			return nil, err
		}
		history = append(history, l)
	}
	return history, rows.Err()
}

// SitesPendingClassification returns alive sites a given model version has
// not yet classified.
func (s *PostgresStore) SitesPendingClassification(ctx context.Context, modelName, modelVersion string) ([]models.SiteRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.site_id, o.url, o.source, COALESCE(o.keyword, ''), o.current_status,
		       o.first_seen, o.last_seen
		FROM OnionSites o
		LEFT JOIN SiteClassification c
			ON c.site_id = o.site_id AND c.model_name = $1 AND c.model_version = $2
		WHERE o.current_status = 'Alive' AND c.site_id IS NULL;
	`, modelName, modelVersion)
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

// InsertClassification records one classifier verdict. A later verdict from
// the same model version replaces the earlier one.
func (s *PostgresStore) InsertClassification(ctx context.Context, c models.SiteClassification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO SiteClassification
		(site_id, model_name, model_version, predicted_keyword, confidence, analysed_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (site_id, model_name, model_version) DO UPDATE
		SET predicted_keyword = EXCLUDED.predicted_keyword,
		    confidence = EXCLUDED.confidence,
		    analysed_at = EXCLUDED.analysed_at,
		    status = EXCLUDED.status;
	`, c.SiteID, c.ModelName, c.ModelVersion, c.PredictedKeyword,
		c.Confidence, c.AnalysedAt, c.Status)
	if err != nil {
		return fmt.Errorf("insert classification for %s: %w", c.SiteID, err)
	}
	return nil
}

// PipelineStats powers the health endpoint's counters.
type PipelineStats struct {
	Sites          int `json:"sites"`
	AliveSites     int `json:"aliveSites"`
	Pages          int `json:"pages"`
	Addresses      int `json:"addresses"`
	PendingTxScans int `json:"pendingTxScans"`
	Mixers         int `json:"mixers"`
	Vendors        int `json:"vendors"`
}

// Stats gathers row counts across the pipeline tables.
func (s *PostgresStore) Stats(ctx context.Context) (PipelineStats, error) {
	var st PipelineStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM OnionSites),
			(SELECT COUNT(*) FROM OnionSites WHERE current_status = 'Alive'),
			(SELECT COUNT(*) FROM Pages),
			(SELECT COUNT(*) FROM BitcoinAddresses WHERE valid = TRUE),
			(SELECT COUNT(*) FROM BitcoinAddresses WHERE valid = TRUE AND tx_analyzed = FALSE),
			(SELECT COUNT(*) FROM Transactions WHERE is_mixer = TRUE),
			(SELECT COUNT(*) FROM Vendors);
	`).Scan(&st.Sites, &st.AliveSites, &st.Pages, &st.Addresses,
		&st.PendingTxScans, &st.Mixers, &st.Vendors)
	return st, err
}
