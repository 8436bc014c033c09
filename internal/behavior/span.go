// Package behavior defines the closed behavior vocabulary, the detection span
// model, the segmentation planner, and the merge pass that coalesces
// fragmented detections into contiguous spans.
package behavior

import "math"

// Modality distinguishes behaviors observed in the video frames from
// behaviors heard on the audio track.
type Modality string

const (
	ModalityVisual Modality = "visual"
	ModalityAudio  Modality = "audio"
)

// Span is a single detected behavior interval on the source video.
// Times are seconds relative to the full source video.
type Span struct {
	Behavior string   `json:"behavior"`
	Modality Modality `json:"modality"`
	StartSec float64  `json:"startSec"`
	EndSec   float64  `json:"endSec"`
	Notes    string   `json:"notes,omitempty"`

	// Skipped marks a span whose validation call exhausted its policy budget.
	// Such spans keep their pre-validation bounds and are treated as correct.
	Skipped bool `json:"skipped,omitempty"`
}

// Duration returns the span length in seconds.
func (s Span) Duration() float64 {
	return s.EndSec - s.StartSec
}

// key is the merge identity: spans of differing behavior or modality never merge.
type key struct {
	behavior string
	modality Modality
}

// Round3 rounds a time value to millisecond precision for artifact emission.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// DominantCategory returns the behavior label with the highest span count.
// Ties resolve to the label that first reached the winning count (first-wins).
// Returns "" when spans is empty.
func DominantCategory(spans []Span) string {
	counts := make(map[string]int)
	dominant := ""
	best := 0
	for _, s := range spans {
		counts[s.Behavior]++
		if counts[s.Behavior] > best {
			best = counts[s.Behavior]
			dominant = s.Behavior
		}
	}
	return dominant
}
