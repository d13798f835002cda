package extract

import "github.com/joshsymonds/subwatch/internal/model"

// Merge collapses candidates to at most one per normalized vendor key.
// Higher confidence wins; on equal confidence the candidate with the more
// recent (or only) charge date wins. Output preserves first-seen key order,
// and merging an already-merged set is a no-op.
func Merge(candidates []model.Candidate) []model.Candidate {
	index := make(map[string]int, len(candidates))
	merged := make([]model.Candidate, 0, len(candidates))

	for _, candidate := range candidates {
		i, seen := index[candidate.VendorKey]
		if !seen {
			index[candidate.VendorKey] = len(merged)
			merged = append(merged, candidate)
			continue
		}

		current := merged[i]
		switch {
		case candidate.Confidence > current.Confidence:
			merged[i] = candidate
		case candidate.Confidence == current.Confidence && candidate.ChargeDate != nil:
			if current.ChargeDate == nil || candidate.ChargeDate.After(*current.ChargeDate) {
				merged[i] = candidate
			}
		}
	}

	return merged
}
