package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oniontracex/oniontracex/pkg/models"
)

// UpsertVendor inserts a vendor identity if absent, otherwise advances
// last_seen. Risk score and name survive reruns.
func (s *PostgresStore) UpsertVendor(ctx context.Context, v models.Vendor) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO Vendors (vendor_id, vendor_name, risk_score, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (vendor_id) DO UPDATE SET last_seen = EXCLUDED.last_seen;
	`, v.VendorID, v.VendorName, v.RiskScore, v.FirstSeen, v.LastSeen)
	if err != nil {
		return fmt.Errorf("upsert vendor %s: %w", v.VendorID, err)
	}
	return nil
}

// InsertArtifact records one typed observation. The artifact_id encodes
// type, value and page, so re-observing the same artifact on the same page
// is a no-op while advancing last_seen.
func (s *PostgresStore) InsertArtifact(ctx context.Context, a models.VendorArtifact) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO VendorArtifacts
		(artifact_id, vendor_id, artifact_type, artifact_value, artifact_hash,
		 confidence, site_id, page_id, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (artifact_id) DO UPDATE SET last_seen = EXCLUDED.last_seen;
	`, a.ArtifactID, a.VendorID, a.ArtifactType, a.ArtifactValue, a.ArtifactHash,
		a.Confidence, a.SiteID, a.PageID, a.FirstSeen, a.LastSeen)
	if err != nil {
		return fmt.Errorf("insert artifact %s: %w", a.ArtifactID, err)
	}
	return nil
}

// ArtifactOwner returns the vendor currently holding an artifact hash, or
// "" when no vendor claims it. After a merge the hash answers with the
// surviving vendor.
func (s *PostgresStore) ArtifactOwner(ctx context.Context, artifactHash string) (string, error) {
	var vendorID string
	err := s.pool.QueryRow(ctx, `
		SELECT vendor_id FROM VendorArtifacts
		WHERE artifact_hash = $1 AND vendor_id IS NOT NULL
		LIMIT 1;
	`, artifactHash).Scan(&vendorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return vendorID, nil
}

// AddressSighting is one (address, site, page) observation used to seed
// vendor identities.
type AddressSighting struct {
	Address string
	SiteID  string
	PageID  string
}

// DistinctAddressSightings lists every distinct valid address observation.
func (s *PostgresStore) DistinctAddressSightings(ctx context.Context) ([]AddressSighting, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT address, COALESCE(site_id, ''), COALESCE(page_id, '')
		FROM BitcoinAddresses
		WHERE valid = TRUE;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sightings []AddressSighting
	for rows.Next() {
		var sg AddressSighting
		if err := rows.Scan(&sg.Address, &sg.SiteID, &sg.PageID); err != nil {
			return nil, err
		}
		sightings = append(sightings, sg)
	}
	return sightings, rows.Err()
}

// BTCArtifactRef ties a vendor's seeding address artifact back to the page
// it was sighted on.
type BTCArtifactRef struct {
	VendorID string
	SiteID   string
	PageID   string
}

// BTCArtifacts lists the btc-typed artifacts with their page references.
// The correlator walks these to attach page-level metadata artifacts.
func (s *PostgresStore) BTCArtifacts(ctx context.Context) ([]BTCArtifactRef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(vendor_id, ''), COALESCE(site_id, ''), COALESCE(page_id, '')
		FROM VendorArtifacts
		WHERE artifact_type = 'btc';
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []BTCArtifactRef
	for rows.Next() {
		var r BTCArtifactRef
		if err := rows.Scan(&r.VendorID, &r.SiteID, &r.PageID); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// SharedPGP is one PGP key value claimed by more than one vendor, the
// merge trigger for identity resolution.
type SharedPGP struct {
	ArtifactValue string
	VendorIDs     []string
}

// SharedPGPArtifacts finds PGP key values attached to two or more distinct
// vendors.
func (s *PostgresStore) SharedPGPArtifacts(ctx context.Context) ([]SharedPGP, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT artifact_value, array_agg(DISTINCT vendor_id)
		FROM VendorArtifacts
		WHERE artifact_type = 'pgp' AND vendor_id IS NOT NULL
		GROUP BY artifact_value
		HAVING COUNT(DISTINCT vendor_id) > 1;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shared []SharedPGP
	for rows.Next() {
		var sp SharedPGP
		if err := rows.Scan(&sp.ArtifactValue, &sp.VendorIDs); err != nil {
			return nil, err
		}
		shared = append(shared, sp)
	}
	return shared, rows.Err()
}

// ReassignArtifacts moves every artifact from the absorbed vendors onto the
// canonical one, then deletes the absorbed vendor rows. One transaction so
// a crash cannot orphan artifacts.
func (s *PostgresStore) ReassignArtifacts(ctx context.Context, canonical string, absorbed []string) error {
	if len(absorbed) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, `
		UPDATE VendorArtifacts SET vendor_id = $1 WHERE vendor_id = ANY($2);
	`, canonical, absorbed); err != nil {
		return fmt.Errorf("reassign artifacts to %s: %w", canonical, err)
	}
	if _, err = tx.Exec(ctx, `
		DELETE FROM Vendors WHERE vendor_id = ANY($1);
	`, absorbed); err != nil {
		return fmt.Errorf("delete absorbed vendors: %w", err)
	}
	if _, err = tx.Exec(ctx, `
		UPDATE Vendors SET last_seen = $1 WHERE vendor_id = $2;
	`, time.Now().UTC(), canonical); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// VendorIDs lists every vendor identity.
func (s *PostgresStore) VendorIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT vendor_id FROM Vendors;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// VendorStats are the aggregate counts the risk score is derived from.
type VendorStats struct {
	BTCCount  int // distinct btc values
	PGPCount  int
	XMRCount  int
	SiteCount int // distinct sites with any artifact
}

// VendorArtifactStats aggregates one vendor's artifact counts in a single
// query using filtered aggregates.
func (s *PostgresStore) VendorArtifactStats(ctx context.Context, vendorID string) (VendorStats, error) {
	var st VendorStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(DISTINCT artifact_value) FILTER (WHERE artifact_type = 'btc'),
			COUNT(*) FILTER (WHERE artifact_type = 'pgp'),
			COUNT(*) FILTER (WHERE artifact_type = 'xmr'),
			COUNT(DISTINCT site_id) FILTER (WHERE site_id IS NOT NULL AND site_id <> '')
		FROM VendorArtifacts
		WHERE vendor_id = $1;
	`, vendorID).Scan(&st.BTCCount, &st.PGPCount, &st.XMRCount, &st.SiteCount)
	return st, err
}

// UpdateVendorRisk writes the recomputed risk score.
func (s *PostgresStore) UpdateVendorRisk(ctx context.Context, vendorID string, score int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE Vendors SET risk_score = $1, last_seen = $2 WHERE vendor_id = $3;
	`, score, time.Now().UTC(), vendorID)
	return err
}

// VendorOverviewRow is the list view: the vendor row plus its artifact count.
type VendorOverviewRow struct {
	models.Vendor
	ArtifactCount int `json:"artifactCount"`
}

// VendorOverview lists vendors by descending risk.
func (s *PostgresStore) VendorOverview(ctx context.Context, limit int) ([]VendorOverviewRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT v.vendor_id, v.vendor_name, v.risk_score, v.first_seen, v.last_seen,
		       COUNT(a.artifact_id)
		FROM Vendors v
		LEFT JOIN VendorArtifacts a ON a.vendor_id = v.vendor_id
		GROUP BY v.vendor_id
		ORDER BY v.risk_score DESC, v.vendor_id
		LIMIT $1;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overview []VendorOverviewRow
	for rows.Next() {
		var r VendorOverviewRow
		if err := rows.Scan(&r.VendorID, &r.VendorName, &r.RiskScore,
			&r.FirstSeen, &r.LastSeen, &r.ArtifactCount); err != nil {
			return nil, err
		}
		overview = append(overview, r)
	}
	return overview, rows.Err()
}

// VendorDetail is the joined view the API serves for one vendor.
type VendorDetail struct {
	Vendor    models.Vendor           `json:"vendor"`
	Artifacts []models.VendorArtifact `json:"artifacts"`
}

// GetVendorDetail assembles one vendor with all its artifacts.
func (s *PostgresStore) GetVendorDetail(ctx context.Context, vendorID string) (*VendorDetail, error) {
	var detail VendorDetail
	err := s.pool.QueryRow(ctx, `
		SELECT vendor_id, vendor_name, risk_score, first_seen, last_seen
		FROM Vendors WHERE vendor_id = $1;
	`, vendorID).Scan(&detail.Vendor.VendorID, &detail.Vendor.VendorName,
		&detail.Vendor.RiskScore, &detail.Vendor.FirstSeen, &detail.Vendor.LastSeen)
	if err != nil {
		return nil, err
	}

	artifacts, err := s.VendorArtifacts(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	detail.Artifacts = artifacts
	return &detail, nil
}

// VendorArtifacts lists every artifact attributed to one vendor.
func (s *PostgresStore) VendorArtifacts(ctx context.Context, vendorID string) ([]models.VendorArtifact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT artifact_id, COALESCE(vendor_id, ''), artifact_type, artifact_value,
		       artifact_hash, confidence, COALESCE(site_id, ''), COALESCE(page_id, ''),
		       first_seen, last_seen
		FROM VendorArtifacts
		WHERE vendor_id = $1
		ORDER BY artifact_type, artifact_value;
	`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []models.VendorArtifact
	for rows.Next() {
		var a models.VendorArtifact
		if err := rows.Scan(&a.ArtifactID, &a.VendorID, &a.ArtifactType, &a.ArtifactValue,
			&a.ArtifactHash, &a.Confidence, &a.SiteID, &a.PageID,
			&a.FirstSeen, &a.LastSeen); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// AllVendors lists every vendor row, for graph assembly.
func (s *PostgresStore) AllVendors(ctx context.Context) ([]models.Vendor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT vendor_id, vendor_name, risk_score, first_seen, last_seen FROM Vendors;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vendors []models.Vendor
	for rows.Next() {
		var v models.Vendor
		if err := rows.Scan(&v.VendorID, &v.VendorName, &v.RiskScore,
			&v.FirstSeen, &v.LastSeen); err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

// AllArtifacts lists every attributed artifact, for graph assembly.
func (s *PostgresStore) AllArtifacts(ctx context.Context) ([]models.VendorArtifact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT artifact_id, COALESCE(vendor_id, ''), artifact_type, artifact_value,
		       artifact_hash, confidence, COALESCE(site_id, ''), COALESCE(page_id, ''),
		       first_seen, last_seen
		FROM VendorArtifacts
		WHERE vendor_id IS NOT NULL;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []models.VendorArtifact
	for rows.Next() {
		var a models.VendorArtifact
		if err := rows.Scan(&a.ArtifactID, &a.VendorID, &a.ArtifactType, &a.ArtifactValue,
			&a.ArtifactHash, &a.Confidence, &a.SiteID, &a.PageID,
			&a.FirstSeen, &a.LastSeen); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}
