package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/oniontracex/oniontracex/pkg/models"
)

// UnanalyzedPages fetches a bounded batch of pages that have no metadata
// row yet. The analyzer drains this until empty.
func (s *PostgresStore) UnanalyzedPages(ctx context.Context, limit int) ([]models.PageRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.page_id, p.site_id, p.url, p.raw_html
		FROM Pages p
		LEFT JOIN Metadata m ON p.page_id = m.page_id
		WHERE m.page_id IS NULL
		LIMIT $1;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []models.PageRecord
	for rows.Next() {
		var p models.PageRecord
		if err := rows.Scan(&p.PageID, &p.SiteID, &p.URL, &p.RawHTML); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// InsertMetadata writes one metadata row. A page already enriched (by this
// process or another) is left alone.
func (s *PostgresStore) InsertMetadata(ctx context.Context, m models.PageMetadata) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO Metadata
		(metadata_id, page_id, title, meta_tags, emails, pgp_keys,
		 pgp_fingerprints, xmr_addresses, vendor_handles, language)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (page_id) DO NOTHING;
	`, m.MetadataID, m.PageID, m.Title,
		jsonOrEmpty(m.MetaTags), jsonOrEmpty(m.Emails), jsonOrEmpty(m.PGPKeys),
		jsonOrEmpty(m.PGPFingerprints), jsonOrEmpty(m.XMRAddresses),
		jsonOrEmpty(m.VendorHandles), m.Language)
	if err != nil {
		return fmt.Errorf("insert metadata for page %s: %w", m.PageID, err)
	}
	return nil
}

// MetadataForPage loads the metadata row for one page, or nil if the page
// has not been analyzed.
func (s *PostgresStore) MetadataForPage(ctx context.Context, pageID string) (*models.PageMetadata, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT metadata_id, page_id, COALESCE(title, ''), meta_tags, emails,
		       pgp_keys, pgp_fingerprints, xmr_addresses, vendor_handles,
		       COALESCE(language, 'unknown')
		FROM Metadata WHERE page_id = $1;
	`, pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	m, err := scanMetadata(rows)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMetadata(rows pgx.Rows) (models.PageMetadata, error) {
	var m models.PageMetadata
	var tags, emails, keys, fps, xmr, handles []byte
	if err := rows.Scan(&m.MetadataID, &m.PageID, &m.Title, &tags, &emails,
		&keys, &fps, &xmr, &handles, &m.Language); err != nil {
		return m, err
	}
	scanJSON(tags, &m.MetaTags)
	scanJSON(emails, &m.Emails)
	scanJSON(keys, &m.PGPKeys)
	scanJSON(fps, &m.PGPFingerprints)
	scanJSON(xmr, &m.XMRAddresses)
	scanJSON(handles, &m.VendorHandles)
	return m, nil
}

// InsertAddress records one address sighting. The first sighting wins:
// address_id conflicts are ignored.
func (s *PostgresStore) InsertAddress(ctx context.Context, a models.BitcoinAddress) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO BitcoinAddresses
		(address_id, address, site_id, page_id, valid, detected_at, tx_analyzed)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		ON CONFLICT (address_id) DO NOTHING;
	`, a.AddressID, a.Address, a.SiteID, a.PageID, a.Valid, a.DetectedAt)
	if err != nil {
		return fmt.Errorf("insert address %s: %w", a.Address, err)
	}
	return nil
}

// PendingAddresses returns valid addresses that still lack transaction
// analysis, bounded to one worker batch.
func (s *PostgresStore) PendingAddresses(ctx context.Context, limit int) ([]models.BitcoinAddress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address_id, address, COALESCE(site_id, ''), COALESCE(page_id, '')
		FROM BitcoinAddresses
		WHERE valid = TRUE AND tx_analyzed = FALSE
		LIMIT $1;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []models.BitcoinAddress
	for rows.Next() {
		var a models.BitcoinAddress
		if err := rows.Scan(&a.AddressID, &a.Address, &a.SiteID, &a.PageID); err != nil {
			return nil, err
		}
		a.Valid = true
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// MarkAddressAnalyzed flips tx_analyzed. Called only after every summary
// and edge row for the address landed, making the flag the idempotency
// boundary for re-runs.
func (s *PostgresStore) MarkAddressAnalyzed(ctx context.Context, addressID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE BitcoinAddresses SET tx_analyzed = TRUE WHERE address_id = $1;
	`, addressID)
	return err
}

// SaveTransactionAnalysis persists the summaries and transfer edges for one
// address in a single transaction: either the whole batch lands or none
// of it does.
func (s *PostgresStore) SaveTransactionAnalysis(ctx context.Context,
	summaries []models.TransactionSummary, edges []models.TransactionEdge) error {

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, t := range summaries {
		_, err = tx.Exec(ctx, `
			INSERT INTO Transactions
			(tx_id, address_id, direction, amount, timestamp, fan_in, fan_out, is_mixer)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (tx_id) DO NOTHING;
		`, t.TxID, t.AddressID, t.Direction, t.Amount, t.Timestamp, t.FanIn, t.FanOut, t.IsMixer)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.TxID, err)
		}
	}

	for _, e := range edges {
		_, err = tx.Exec(ctx, `
			INSERT INTO BitcoinTransactionEdges
			(tx_id, from_address, to_address, amount, timestamp)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (tx_id, from_address, to_address) DO NOTHING;
		`, e.TxID, e.FromAddress, e.ToAddress, e.Amount, e.Timestamp)
		if err != nil {
			return fmt.Errorf("insert edge %s: %w", e.TxID, err)
		}
	}

	return tx.Commit(ctx)
}

// MixerTransactions pages through transactions flagged by the mixer
// heuristic, newest first.
func (s *PostgresStore) MixerTransactions(ctx context.Context, page, limit int) ([]models.TransactionSummary, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM Transactions WHERE is_mixer = TRUE;`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT tx_id, address_id, direction, amount, timestamp, fan_in, fan_out, is_mixer
		FROM Transactions
		WHERE is_mixer = TRUE
		ORDER BY timestamp DESC NULLS LAST
		LIMIT $1 OFFSET $2;
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	mixers := make([]models.TransactionSummary, 0, limit)
	for rows.Next() {
		var t models.TransactionSummary
		if err := rows.Scan(&t.TxID, &t.AddressID, &t.Direction, &t.Amount,
			&t.Timestamp, &t.FanIn, &t.FanOut, &t.IsMixer); err != nil {
			return nil, 0, err
		}
		mixers = append(mixers, t)
	}
	return mixers, total, rows.Err()
}
