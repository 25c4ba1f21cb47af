package vendors

import (
	"context"
	"sort"

	"github.com/oniontracex/oniontracex/internal/db"
	"github.com/oniontracex/oniontracex/pkg/models"
)

// GraphNode is one vendor in the correlation graph.
type GraphNode struct {
	VendorID      string `json:"vendorId"`
	VendorName    string `json:"vendorName"`
	RiskScore     int    `json:"riskScore"`
	ArtifactCount int    `json:"artifactCount"`
}

// GraphEdge links two vendors that exhibited the same artifact value.
// Weight counts the distinct shared values.
type GraphEdge struct {
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
	Weight   int    `json:"weight"`
}

// Graph is the vendor correlation graph served by the API.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// BuildGraph assembles the graph from vendor and artifact rows. Pure
// function over its inputs; ordering is deterministic.
func BuildGraph(vendors []models.Vendor, artifacts []models.VendorArtifact) Graph {
	graph := Graph{Nodes: []GraphNode{}, Edges: []GraphEdge{}}

	counts := make(map[string]int)
	for _, a := range artifacts {
		counts[a.VendorID]++
	}
	for _, v := range vendors {
		graph.Nodes = append(graph.Nodes, GraphNode{
			VendorID:      v.VendorID,
			VendorName:    v.VendorName,
			RiskScore:     v.RiskScore,
			ArtifactCount: counts[v.VendorID],
		})
	}
	sort.Slice(graph.Nodes, func(i, j int) bool {
		return graph.Nodes[i].VendorID < graph.Nodes[j].VendorID
	})

	// Vendors touching the same artifact hash are linked; each shared
	// value counts once per pair.
	byHash := make(map[string][]string)
	for _, a := range artifacts {
		byHash[a.ArtifactHash] = append(byHash[a.ArtifactHash], a.VendorID)
	}

	weights := make(map[[2]string]int)
	for _, vendorIDs := range byHash {
		distinct := dedupeSorted(vendorIDs)
		for i := 0; i < len(distinct); i++ {
			for j := i + 1; j < len(distinct); j++ {
				weights[[2]string{distinct[i], distinct[j]}]++
			}
		}
	}

	for pair, weight := range weights {
		graph.Edges = append(graph.Edges, GraphEdge{
			SourceID: pair[0],
			TargetID: pair[1],
			Weight:   weight,
		})
	}
	sort.Slice(graph.Edges, func(i, j int) bool {
		if graph.Edges[i].SourceID != graph.Edges[j].SourceID {
			return graph.Edges[i].SourceID < graph.Edges[j].SourceID
		}
		return graph.Edges[i].TargetID < graph.Edges[j].TargetID
	})
	return graph
}

// LoadGraph reads all vendors and artifacts and assembles the graph.
func LoadGraph(ctx context.Context, store *db.PostgresStore) (Graph, error) {
	vendors, err := store.AllVendors(ctx)
	if err != nil {
		return Graph{}, err
	}
	artifacts, err := store.AllArtifacts(ctx)
	if err != nil {
		return Graph{}, err
	}
	return BuildGraph(vendors, artifacts), nil
}

func dedupeSorted(values []string) []string {
	sort.Strings(values)
	var out []string
	for i, v := range values {
		if i == 0 || values[i-1] != v {
			out = append(out, v)
		}
	}
	return out
}
