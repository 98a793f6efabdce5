// Package fusion merges per-query candidate lists into one deduplicated set.
//
// Fusion is a deterministic, order-independent fold: given the same input
// multiset the output is identical regardless of arrival order. This matters
// because the retrieval fan-out completes in nondeterministic order.
package fusion

import (
	"fmt"
	"sort"

	"github.com/fernhill/discoveryd/internal/candidate"
)

// Fuse groups candidates by (contentType, id), keeping the maximum observed
// score per group and the union of contributing sources.
//
// Max, not sum or average: a candidate strongly matched by one sub-query
// should not be penalized for being weakly matched, or absent, in others.
//
// Output is sorted by score descending, ties broken by dedup key so the
// result is stable across runs.
func Fuse(lists ...[]candidate.Candidate) ([]candidate.Candidate, error) {
	byKey := make(map[string]*candidate.Candidate)

	for _, list := range lists {
		for _, c := range list {
			if err := c.Validate(); err != nil {
				return nil, fmt.Errorf("fusion: %w", err)
			}

			key := c.Key()
			existing, ok := byKey[key]
			if !ok {
				clone := c
				clone.Sources = append([]string(nil), c.Sources...)
				byKey[key] = &clone
				continue
			}

			if c.RawScore > existing.RawScore {
				existing.RawScore = c.RawScore
				// Keep the payload from the strongest match; metadata from
				// weaker duplicates adds nothing the enrichment step won't.
				existing.Title = c.Title
				existing.Excerpt = c.Excerpt
				existing.Metadata = c.Metadata
			}
			existing.Sources = mergeSources(existing.Sources, c.Sources)
		}
	}

	fused := make([]candidate.Candidate, 0, len(byKey))
	for _, c := range byKey {
		fused = append(fused, *c)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].RawScore != fused[j].RawScore {
			return fused[i].RawScore > fused[j].RawScore
		}
		return fused[i].Key() < fused[j].Key()
	})

	return fused, nil
}

// mergeSources appends sources not already present, preserving first-seen
// order. Source sets are small (bounded by the expansion cap) so a linear
// scan beats allocating a set.
func mergeSources(dst, src []string) []string {
	for _, s := range src {
		found := false
		for _, d := range dst {
			if d == s {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}
