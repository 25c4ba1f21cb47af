// Package vendors builds synthetic operator identities from the artifacts
// the analyzer extracted, merges identities that share a PGP key and
// scores each one for risk.
package vendors

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/oniontracex/oniontracex/internal/db"
	"github.com/oniontracex/oniontracex/internal/urlnorm"
	"github.com/oniontracex/oniontracex/pkg/models"
)

// Artifact confidence weights: how strongly each artifact type ties back
// to one operator. A bitcoin address is near-certain, a scraped handle is
// weak circumstantial evidence.
var artifactConfidence = map[models.ArtifactType]int{
	models.ArtifactBTC:    90,
	models.ArtifactPGP:    80,
	models.ArtifactXMR:    70,
	models.ArtifactEmail:  50,
	models.ArtifactHandle: 40,
}

// Store is the persistence surface the correlator needs.
type Store interface {
	DistinctAddressSightings(ctx context.Context) ([]db.AddressSighting, error)
	ArtifactOwner(ctx context.Context, artifactHash string) (string, error)
	UpsertVendor(ctx context.Context, v models.Vendor) error
	InsertArtifact(ctx context.Context, a models.VendorArtifact) error
	BTCArtifacts(ctx context.Context) ([]db.BTCArtifactRef, error)
	MetadataForPage(ctx context.Context, pageID string) (*models.PageMetadata, error)
	SharedPGPArtifacts(ctx context.Context) ([]db.SharedPGP, error)
	ReassignArtifacts(ctx context.Context, canonical string, absorbed []string) error
	VendorIDs(ctx context.Context) ([]string, error)
	VendorArtifactStats(ctx context.Context, vendorID string) (db.VendorStats, error)
	UpdateVendorRisk(ctx context.Context, vendorID string, score int) error
}

// Correlator runs the identity pipeline as discrete stages so each can be
// re-executed independently; every write is idempotent.
type Correlator struct {
	store Store
}

func NewCorrelator(store Store) *Correlator {
	return &Correlator{store: store}
}

// Run executes one full correlation pass.
func (c *Correlator) Run(ctx context.Context) error {
	if err := c.SeedFromAddresses(ctx); err != nil {
		return fmt.Errorf("seed vendors: %w", err)
	}
	if err := c.AttachPageArtifacts(ctx); err != nil {
		return fmt.Errorf("attach artifacts: %w", err)
	}
	if err := c.MergeOnSharedPGP(ctx); err != nil {
		return fmt.Errorf("merge vendors: %w", err)
	}
	if err := c.ScoreRisk(ctx); err != nil {
		return fmt.Errorf("score vendors: %w", err)
	}
	return nil
}

// SeedFromAddresses creates one vendor per distinct valid address and
// records the address itself as the founding artifact. The vendor_id is
// derived from the address, so reruns converge on the same identity. An
// address a previous merge moved to a surviving vendor keeps accruing
// sightings there; the absorbed identity stays deleted.
func (c *Correlator) SeedFromAddresses(ctx context.Context) error {
	sightings, err := c.store.DistinctAddressSightings(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, sg := range sightings {
		vendorID := urlnorm.Hash(sg.Address)
		owner, err := c.store.ArtifactOwner(ctx, artifactHash(models.ArtifactBTC, sg.Address))
		if err != nil {
			return err
		}
		if owner != "" && owner != vendorID {
			vendorID = owner
		} else if err := c.store.UpsertVendor(ctx, models.Vendor{
			VendorID:   vendorID,
			VendorName: randomVendorName(),
			FirstSeen:  now,
			LastSeen:   now,
		}); err != nil {
			return err
		}
		if err := c.insertArtifact(ctx, vendorID, models.ArtifactBTC, sg.Address, sg.SiteID, sg.PageID, now); err != nil {
			return err
		}
	}
	log.Printf("[Vendor] Seeded from %d address sightings", len(sightings))
	return nil
}

// AttachPageArtifacts walks every btc artifact's source page and attributes
// the page's other extracted artifacts to the same vendor. PGP keys are
// attached by fingerprint; the armored block itself stays in Metadata.
func (c *Correlator) AttachPageArtifacts(ctx context.Context) error {
	refs, err := c.store.BTCArtifacts(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, ref := range refs {
		if ref.VendorID == "" || ref.PageID == "" {
			continue
		}
		meta, err := c.store.MetadataForPage(ctx, ref.PageID)
		if err != nil {
			return err
		}
		if meta == nil {
			continue
		}

		typed := []struct {
			kind   models.ArtifactType
			values []string
		}{
			{models.ArtifactEmail, meta.Emails},
			{models.ArtifactPGP, meta.PGPFingerprints},
			{models.ArtifactXMR, meta.XMRAddresses},
			{models.ArtifactHandle, meta.VendorHandles},
		}
		for _, group := range typed {
			for _, value := range group.values {
				if err := c.insertArtifact(ctx, ref.VendorID, group.kind, value, ref.SiteID, ref.PageID, now); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// MergeOnSharedPGP collapses vendors that published the same PGP key. The
// lexicographically smallest vendor_id in each connected group survives;
// emails and handles are too weak to merge on.
func (c *Correlator) MergeOnSharedPGP(ctx context.Context) error {
	shared, err := c.store.SharedPGPArtifacts(ctx)
	if err != nil {
		return err
	}

	groups := make([][]string, 0, len(shared))
	for _, sp := range shared {
		groups = append(groups, sp.VendorIDs)
	}

	for _, plan := range PlanMerges(groups) {
		if err := c.store.ReassignArtifacts(ctx, plan.Canonical, plan.Absorbed); err != nil {
			return err
		}
		log.Printf("[Vendor] Merged %d identities into %s on shared PGP key",
			len(plan.Absorbed), plan.Canonical)
	}
	return nil
}

// ScoreRisk recomputes every vendor's risk score from its artifact stats.
func (c *Correlator) ScoreRisk(ctx context.Context) error {
	ids, err := c.store.VendorIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		stats, err := c.store.VendorArtifactStats(ctx, id)
		if err != nil {
			return err
		}
		if err := c.store.UpdateVendorRisk(ctx, id, RiskScore(stats)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Correlator) insertArtifact(ctx context.Context, vendorID string,
	kind models.ArtifactType, value, siteID, pageID string, now time.Time) error {

	return c.store.InsertArtifact(ctx, models.VendorArtifact{
		ArtifactID:    urlnorm.Hash(fmt.Sprintf("%s:%s:%s", kind, value, pageID)),
		VendorID:      vendorID,
		ArtifactType:  kind,
		ArtifactValue: value,
		ArtifactHash:  artifactHash(kind, value),
		Confidence:    artifactConfidence[kind],
		SiteID:        siteID,
		PageID:        pageID,
		FirstSeen:     now,
		LastSeen:      now,
	})
}

// artifactHash identifies an artifact value independent of which page it
// was sighted on.
func artifactHash(kind models.ArtifactType, value string) string {
	return urlnorm.Hash(fmt.Sprintf("%s:%s", kind, value))
}

const vendorNameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomVendorName produces a human-readable placeholder label; identity
// lives in the vendor_id, the name is only for dashboards.
func randomVendorName() string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = vendorNameAlphabet[rand.Intn(len(vendorNameAlphabet))]
	}
	return "vendor_" + string(suffix)
}
