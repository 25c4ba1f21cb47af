package vendors

import "sort"

// MergePlan directs one merge: every absorbed vendor's artifacts move to
// the canonical identity and the absorbed rows are deleted.
type MergePlan struct {
	Canonical string
	Absorbed  []string
}

// PlanMerges turns groups of co-occurring vendor IDs into merge plans.
// Groups that overlap merge transitively: if A shares a key with B and B
// with C, all three collapse into one identity. The canonical survivor is
// the lexicographically smallest ID, so planning is deterministic and
// replanning after a partial run converges on the same result.
func PlanMerges(groups [][]string) []MergePlan {
	parent := make(map[string]string)

	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			// Smaller root wins so find() already trends canonical.
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	for _, group := range groups {
		for _, id := range group {
			if _, ok := parent[id]; !ok {
				parent[id] = id
			}
		}
		for i := 1; i < len(group); i++ {
			union(group[0], group[i])
		}
	}

	components := make(map[string][]string)
	for id := range parent {
		root := find(id)
		if id != root {
			components[root] = append(components[root], id)
		}
	}

	plans := make([]MergePlan, 0, len(components))
	for canonical, absorbed := range components {
		sort.Strings(absorbed)
		plans = append(plans, MergePlan{Canonical: canonical, Absorbed: absorbed})
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Canonical < plans[j].Canonical })
	return plans
}
