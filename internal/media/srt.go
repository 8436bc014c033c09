package media

import (
	"fmt"
	"os"
	"strings"

	"github.com/childlens/behavior-worker/internal/behavior"
)

// FormatSRTTime renders seconds as the SRT timestamp form HH:MM:SS,mmm.
func FormatSRTTime(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int64(sec*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// BuildSRT renders the emitted behavior spans as a sequence-numbered SRT
// document labelled "[visual|audio] <behavior>".
func BuildSRT(spans []behavior.Span) string {
	var b strings.Builder
	for i, s := range spans {
		fmt.Fprintf(&b, "%d\n%s --> %s\n[%s] %s\n\n",
			i+1,
			FormatSRTTime(s.StartSec),
			FormatSRTTime(s.EndSec),
			s.Modality,
			s.Behavior,
		)
	}
	return b.String()
}

// WriteSRT writes the subtitle document for spans to path.
func WriteSRT(path string, spans []behavior.Span) error {
	if err := os.WriteFile(path, []byte(BuildSRT(spans)), 0o644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}
