package behavior

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVocabularyPartition(t *testing.T) {
	visual := Labels(ModalityVisual)
	audio := Labels(ModalityAudio)

	assert.Len(t, visual, 9)
	assert.Len(t, audio, 5)
	assert.Len(t, Definitions(), 14)
}

func TestModalityOf(t *testing.T) {
	m, ok := ModalityOf("body-rocking")
	assert.True(t, ok)
	assert.Equal(t, ModalityVisual, m)

	m, ok = ModalityOf("echolalia")
	assert.True(t, ok)
	assert.Equal(t, ModalityAudio, m)

	_, ok = ModalityOf("dancing")
	assert.False(t, ok)
}

func TestDefinitionsAreComplete(t *testing.T) {
	for _, d := range Definitions() {
		assert.True(t, IsKnown(d.Label))
		assert.NotEmpty(t, d.Definition, "label %s has no clinical definition", d.Label)
	}
}
