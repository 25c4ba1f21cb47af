package vendors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oniontracex/oniontracex/pkg/models"
)

func TestBuildGraphSharedArtifacts(t *testing.T) {
	now := time.Now()
	vendors := []models.Vendor{
		{VendorID: "v-a", VendorName: "vendor_aaa111", RiskScore: 50, FirstSeen: now, LastSeen: now},
		{VendorID: "v-b", VendorName: "vendor_bbb222", RiskScore: 20, FirstSeen: now, LastSeen: now},
		{VendorID: "v-c", VendorName: "vendor_ccc333", FirstSeen: now, LastSeen: now},
	}
	artifacts := []models.VendorArtifact{
		// v-a and v-b share two artifact values, v-c stands alone.
		{ArtifactID: "1", VendorID: "v-a", ArtifactHash: "hash-email-1"},
		{ArtifactID: "2", VendorID: "v-b", ArtifactHash: "hash-email-1"},
		{ArtifactID: "3", VendorID: "v-a", ArtifactHash: "hash-handle-1"},
		{ArtifactID: "4", VendorID: "v-b", ArtifactHash: "hash-handle-1"},
		{ArtifactID: "5", VendorID: "v-c", ArtifactHash: "hash-xmr-1"},
	}

	graph := BuildGraph(vendors, artifacts)

	assert.Len(t, graph.Nodes, 3)
	assert.Equal(t, "v-a", graph.Nodes[0].VendorID)
	assert.Equal(t, 2, graph.Nodes[0].ArtifactCount)
	assert.Equal(t, 1, graph.Nodes[2].ArtifactCount)

	assert.Len(t, graph.Edges, 1)
	assert.Equal(t, GraphEdge{SourceID: "v-a", TargetID: "v-b", Weight: 2}, graph.Edges[0])
}

func TestBuildGraphDuplicateSightingsCountOnce(t *testing.T) {
	vendors := []models.Vendor{{VendorID: "v-a"}, {VendorID: "v-b"}}
	artifacts := []models.VendorArtifact{
		// The same value sighted on two pages still weighs 1.
		{ArtifactID: "1", VendorID: "v-a", ArtifactHash: "hash-1"},
		{ArtifactID: "2", VendorID: "v-a", ArtifactHash: "hash-1"},
		{ArtifactID: "3", VendorID: "v-b", ArtifactHash: "hash-1"},
	}

	graph := BuildGraph(vendors, artifacts)

	assert.Len(t, graph.Edges, 1)
	assert.Equal(t, 1, graph.Edges[0].Weight)
}

func TestBuildGraphEmpty(t *testing.T) {
	graph := BuildGraph(nil, nil)
	assert.NotNil(t, graph.Nodes)
	assert.NotNil(t, graph.Edges)
	assert.Empty(t, graph.Nodes)
	assert.Empty(t, graph.Edges)
}
