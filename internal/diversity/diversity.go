// Package diversity bounds how many results from the same cluster
// (category, author) may appear in a ranked list.
package diversity

import (
	"github.com/fernhill/discoveryd/internal/candidate"
)

// Selected is a candidate admitted by the filter together with its
// diversity score.
type Selected struct {
	candidate.Candidate

	// DiversityScore in [0,1] records how much the item differed from the
	// already-admitted set at admission time. 1 means first of its cluster.
	DiversityScore float64
}

// clusterKey groups candidates for the cap. Category is the primary key;
// candidates without a category fall back to author, then to their own
// dedup key so uncategorized items never compete with each other.
func clusterKey(c candidate.Candidate) string {
	if c.Category != "" {
		return "category:" + c.Category
	}
	if c.AuthorID != "" {
		return "author:" + c.AuthorID
	}
	return "item:" + c.Key()
}

// Filter walks candidates (already sorted by score descending) and admits
// each one only while its cluster's share of admitted results stays below
// threshold. Held-back candidates are not dropped: after the forward walk a
// single backward pass fills remaining slots from the held list in score
// order, so low-diversity items still appear when no compliant alternative
// is left and limit has not been reached.
func Filter(sorted []candidate.Candidate, threshold float64, limit int) []Selected {
	if limit <= 0 || len(sorted) == 0 {
		return []Selected{}
	}

	admitted := make([]Selected, 0, limit)
	held := make([]candidate.Candidate, 0)
	counts := make(map[string]int)

	admit := func(c candidate.Candidate) {
		key := clusterKey(c)
		before := counts[key]
		counts[key]++
		admitted = append(admitted, Selected{
			Candidate:      c,
			DiversityScore: diversityScore(before, len(admitted)+1),
		})
	}

	// A cluster may fill at most threshold*limit slots while compliant
	// alternatives remain. With threshold=0.3 and limit=10 that is 3 slots.
	maxPerCluster := int(threshold * float64(limit))
	if maxPerCluster < 1 {
		maxPerCluster = 1
	}

	for _, c := range sorted {
		if len(admitted) >= limit {
			break
		}

		if counts[clusterKey(c)] < maxPerCluster {
			admit(c)
		} else {
			held = append(held, c)
		}
	}

	// Backfill from held candidates, highest score first. The held list is
	// already in score order because the input was.
	for _, c := range held {
		if len(admitted) >= limit {
			break
		}
		admit(c)
	}

	return admitted
}

// diversityScore computes 1 - clusterCountBefore/admittedCount, clamped to
// [0,1].
func diversityScore(clusterBefore, admittedAfter int) float64 {
	if admittedAfter <= 0 {
		return 1
	}
	score := 1 - float64(clusterBefore)/float64(admittedAfter)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
