package behavior

// Segment is a fixed-length analysis window on the source video.
type Segment struct {
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

// PlanSegments splits a video of the given duration into windows of length
// chunk, each overlapping its predecessor by overlap seconds. Windows start
// at 0 and advance by chunk-overlap; the final window is truncated so it
// always ends exactly at the duration. The overlap exists so actions
// straddling a cut appear in at least one window intact.
func PlanSegments(duration, chunk, overlap float64) []Segment {
	if duration <= 0 || chunk <= 0 {
		return nil
	}
	step := chunk - overlap
	if step <= 0 {
		step = chunk
	}

	var segments []Segment
	for start := 0.0; start < duration; start += step {
		end := start + chunk
		if end > duration {
			end = duration
		}
		segments = append(segments, Segment{StartSec: start, EndSec: end})
		if end >= duration {
			break
		}
	}
	return segments
}
