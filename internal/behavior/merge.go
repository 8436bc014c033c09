package behavior

import (
	"sort"
	"strings"
)

// Merge coalesces spans of the same (behavior, modality) whose gaps do not
// exceed gap seconds. Input order breaks startSec ties, making the pass
// deterministic; spans of differing behavior or modality never merge.
//
// The pass runs twice in the pipeline: once on raw detections before
// validation, and once on validated spans before artifact emission.
func Merge(spans []Span, gap float64) []Span {
	if len(spans) == 0 {
		return nil
	}

	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartSec < sorted[j].StartSec
	})

	merged := make([]Span, 0, len(sorted))
	last := make(map[key]int)

	for _, s := range sorted {
		k := key{behavior: s.Behavior, modality: s.Modality}
		if idx, ok := last[k]; ok && s.StartSec <= merged[idx].EndSec+gap {
			if s.EndSec > merged[idx].EndSec {
				merged[idx].EndSec = s.EndSec
			}
			merged[idx].Notes = appendNotes(merged[idx].Notes, s.Notes)
			merged[idx].Skipped = merged[idx].Skipped || s.Skipped
			continue
		}
		merged = append(merged, s)
		last[k] = len(merged) - 1
	}

	return merged
}

// appendNotes joins notes, dropping additions already present as a substring.
func appendNotes(existing, addition string) string {
	addition = strings.TrimSpace(addition)
	if addition == "" {
		return existing
	}
	if existing == "" {
		return addition
	}
	if strings.Contains(existing, addition) {
		return existing
	}
	return existing + "; " + addition
}
