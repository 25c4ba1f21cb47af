package vendors

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oniontracex/oniontracex/internal/db"
	"github.com/oniontracex/oniontracex/internal/urlnorm"
	"github.com/oniontracex/oniontracex/pkg/models"
)

// fakeStore records writes so the stage logic can be checked without a
// database.
type fakeStore struct {
	sightings []db.AddressSighting
	owners    map[string]string
	refs      []db.BTCArtifactRef
	meta      map[string]*models.PageMetadata
	shared    []db.SharedPGP
	vendorIDs []string
	stats     map[string]db.VendorStats

	upserted  []models.Vendor
	artifacts []models.VendorArtifact
	risks     map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		owners: make(map[string]string),
		meta:   make(map[string]*models.PageMetadata),
		stats:  make(map[string]db.VendorStats),
		risks:  make(map[string]int),
	}
}

func (f *fakeStore) DistinctAddressSightings(context.Context) ([]db.AddressSighting, error) {
	return f.sightings, nil
}

func (f *fakeStore) ArtifactOwner(_ context.Context, hash string) (string, error) {
	return f.owners[hash], nil
}

func (f *fakeStore) UpsertVendor(_ context.Context, v models.Vendor) error {
	f.upserted = append(f.upserted, v)
	return nil
}

func (f *fakeStore) InsertArtifact(_ context.Context, a models.VendorArtifact) error {
	f.artifacts = append(f.artifacts, a)
	return nil
}

func (f *fakeStore) BTCArtifacts(context.Context) ([]db.BTCArtifactRef, error) {
	return f.refs, nil
}

func (f *fakeStore) MetadataForPage(_ context.Context, pageID string) (*models.PageMetadata, error) {
	return f.meta[pageID], nil
}

func (f *fakeStore) SharedPGPArtifacts(context.Context) ([]db.SharedPGP, error) {
	return f.shared, nil
}

func (f *fakeStore) ReassignArtifacts(context.Context, string, []string) error {
	return nil
}

func (f *fakeStore) VendorIDs(context.Context) ([]string, error) {
	return f.vendorIDs, nil
}

func (f *fakeStore) VendorArtifactStats(_ context.Context, vendorID string) (db.VendorStats, error) {
	return f.stats[vendorID], nil
}

func (f *fakeStore) UpdateVendorRisk(_ context.Context, vendorID string, score int) error {
	f.risks[vendorID] = score
	return nil
}

const armoredKey = "-----BEGIN PGP PUBLIC KEY BLOCK-----\n\nmQINBF...\n-----END PGP PUBLIC KEY BLOCK-----"

func TestAttachPageArtifactsStoresPGPFingerprints(t *testing.T) {
	store := newFakeStore()
	store.refs = []db.BTCArtifactRef{{VendorID: "v1", SiteID: "s1", PageID: "p1"}}
	store.meta["p1"] = &models.PageMetadata{
		PageID:          "p1",
		Emails:          []string{"contact@example.onion"},
		PGPKeys:         []string{armoredKey},
		PGPFingerprints: []string{"da39a3ee5e6b4b0d3255bfef95601890afd80709"},
	}

	require.NoError(t, NewCorrelator(store).AttachPageArtifacts(context.Background()))

	var pgp []models.VendorArtifact
	for _, a := range store.artifacts {
		assert.NotContains(t, a.ArtifactValue, "BEGIN PGP")
		if a.ArtifactType == models.ArtifactPGP {
			pgp = append(pgp, a)
		}
	}
	require.Len(t, pgp, 1)
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", pgp[0].ArtifactValue)
	assert.Equal(t, "v1", pgp[0].VendorID)
}

func TestSeedFromAddressesCreatesVendor(t *testing.T) {
	store := newFakeStore()
	store.sightings = []db.AddressSighting{{Address: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", SiteID: "s1", PageID: "p1"}}

	require.NoError(t, NewCorrelator(store).SeedFromAddresses(context.Background()))

	derived := urlnorm.Hash("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	require.Len(t, store.upserted, 1)
	assert.Equal(t, derived, store.upserted[0].VendorID)
	assert.True(t, strings.HasPrefix(store.upserted[0].VendorName, "vendor_"))
	require.Len(t, store.artifacts, 1)
	assert.Equal(t, derived, store.artifacts[0].VendorID)
}

func TestSeedFromAddressesKeepsAbsorbedVendorDeleted(t *testing.T) {
	// The address's artifact was reassigned to a surviving vendor by an
	// earlier merge; a reseed must not recreate the absorbed identity.
	addr := "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	store := newFakeStore()
	store.sightings = []db.AddressSighting{{Address: addr, SiteID: "s1", PageID: "p1"}}
	store.owners[artifactHash(models.ArtifactBTC, addr)] = "canonical-vendor"

	require.NoError(t, NewCorrelator(store).SeedFromAddresses(context.Background()))

	assert.Empty(t, store.upserted)
	require.Len(t, store.artifacts, 1)
	assert.Equal(t, "canonical-vendor", store.artifacts[0].VendorID)
}
