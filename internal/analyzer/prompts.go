package analyzer

import (
	"fmt"
	"strings"

	"github.com/childlens/behavior-worker/internal/behavior"
)

// strictJSONReminder is appended when a response could not be parsed and the
// request is re-issued at temperature 0.
const strictJSONReminder = "\n\nIMPORTANT: Respond with ONLY the JSON. No markdown, no code fences, no commentary."

// vocabularySection renders the closed vocabulary with its visual/audio
// partition and the one-sentence clinical definition of every behavior.
func vocabularySection() string {
	var b strings.Builder

	b.WriteString("VISUAL behaviors (observable in the frames):\n")
	for _, d := range behavior.Definitions() {
		if d.Modality == behavior.ModalityVisual {
			fmt.Fprintf(&b, "- %s: %s\n", d.Label, d.Definition)
		}
	}
	b.WriteString("\nAUDIO behaviors (audible on the soundtrack):\n")
	for _, d := range behavior.Definitions() {
		if d.Modality == behavior.ModalityAudio {
			fmt.Fprintf(&b, "- %s: %s\n", d.Label, d.Definition)
		}
	}
	return b.String()
}

// detectionPrompt asks the model for every behavior episode inside one
// analysis window. Timestamps are clip-relative; each continuous episode must
// be reported as a single span rather than per-second fragments.
func detectionPrompt(seg behavior.Segment) string {
	var b strings.Builder

	b.WriteString("You are analyzing a therapy session video of a child. ")
	fmt.Fprintf(&b, "You are viewing the clip covering %.1fs to %.1fs of the full session video.\n\n", seg.StartSec, seg.EndSec)

	b.WriteString("Identify every occurrence of the following behaviors shown by the child. ")
	b.WriteString("Use ONLY these labels; ignore behaviors of adults in the frame.\n\n")
	b.WriteString(vocabularySection())

	b.WriteString("\nRules:\n")
	b.WriteString("- Timestamps are seconds RELATIVE TO THIS CLIP, starting at 0.\n")
	b.WriteString("- Report each continuous episode as ONE span with its start and end; do not split an ongoing behavior into per-second fragments.\n")
	b.WriteString("- modality is \"visual\" or \"audio\" per the lists above.\n")
	b.WriteString("- Add a short observation in notes when useful.\n")
	b.WriteString("- If no listed behavior occurs, return an empty array.\n\n")
	b.WriteString("Return a JSON array of objects with fields: behavior, startSec, endSec, modality, notes.")

	return b.String()
}

// validationPrompt asks the model to confirm a merged span against a
// margin-expanded clip and refine its bounds.
func validationPrompt(span behavior.Span, clipLen float64) string {
	var b strings.Builder

	def := ""
	for _, d := range behavior.Definitions() {
		if d.Label == span.Behavior {
			def = d.Definition
			break
		}
	}

	b.WriteString("You are reviewing a clip from a therapy session video of a child.\n\n")
	fmt.Fprintf(&b, "Claim: the child shows \"%s\" (%s: %s) within this clip.\n", span.Behavior, span.Modality, def)
	fmt.Fprintf(&b, "The clip is %.1f seconds long; the claimed episode sits near its middle.\n\n", clipLen)

	b.WriteString("Decide whether the claim is correct FOR THE CHILD (not an adult). ")
	b.WriteString("If correct, refine the start and end of the episode as seconds RELATIVE TO THIS CLIP.\n\n")
	b.WriteString("Return a JSON object: {\"correct\": true|false, \"startSec\": number, \"endSec\": number}. ")
	b.WriteString("Omit startSec/endSec when correct is false.")

	return b.String()
}
