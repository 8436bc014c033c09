package behavior

// Definition pairs a vocabulary label with its modality and the one-sentence
// clinical definition used in prompt construction.
type Definition struct {
	Label      string
	Modality   Modality
	Definition string
}

// definitions is the closed 14-label vocabulary: 9 visual, 5 audio.
// Order is stable and drives prompt construction.
var definitions = []Definition{
	{"hand-flapping", ModalityVisual, "Rapid repetitive flapping or waving of one or both hands, typically at the wrists."},
	{"body-rocking", ModalityVisual, "Rhythmic back-and-forth or side-to-side rocking of the torso while seated or standing."},
	{"spinning", ModalityVisual, "Repeated rotation of the whole body around its vertical axis."},
	{"head-banging", ModalityVisual, "Striking the head against an object, surface, or with the hands."},
	{"toe-walking", ModalityVisual, "Walking on the balls of the feet or toes without heel contact."},
	{"finger-flicking", ModalityVisual, "Repetitive flicking, twisting, or wiggling of fingers, often close to the eyes."},
	{"covering-ears", ModalityVisual, "Pressing the hands over the ears, typically in response to sound."},
	{"repetitive-jumping", ModalityVisual, "Repeated jumping in place without an apparent play context."},
	{"object-lining", ModalityVisual, "Arranging toys or objects into strict lines or ordered patterns."},
	{"echolalia", ModalityAudio, "Immediate or delayed repetition of words or phrases spoken by another person."},
	{"humming", ModalityAudio, "Sustained non-speech humming or droning vocalization."},
	{"screaming", ModalityAudio, "High-intensity screaming or shrieking not attributable to play."},
	{"crying", ModalityAudio, "Sustained crying or sobbing."},
	{"repetitive-vocalization", ModalityAudio, "Repeated non-word sounds, squeals, or syllables produced in a stereotyped pattern."},
}

var byLabel = func() map[string]Definition {
	m := make(map[string]Definition, len(definitions))
	for _, d := range definitions {
		m[d.Label] = d
	}
	return m
}()

// Definitions returns the full vocabulary in stable order.
func Definitions() []Definition {
	return definitions
}

// IsKnown reports whether label belongs to the closed vocabulary.
func IsKnown(label string) bool {
	_, ok := byLabel[label]
	return ok
}

// ModalityOf returns the modality of a known label. The boolean is false for
// labels outside the vocabulary.
func ModalityOf(label string) (Modality, bool) {
	d, ok := byLabel[label]
	if !ok {
		return "", false
	}
	return d.Modality, true
}

// Labels returns all vocabulary labels for the given modality, in stable order.
func Labels(m Modality) []string {
	var out []string
	for _, d := range definitions {
		if d.Modality == m {
			out = append(out, d.Label)
		}
	}
	return out
}
