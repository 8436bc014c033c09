package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", `[{"a":1}]`, `[{"a":1}]`},
		{"json fence", "```json\n[1,2]\n```", "[1,2]"},
		{"bare fence", "```\n{\"x\":true}\n```", "{\"x\":true}"},
		{"leading whitespace", "  ```json\n[]\n```  ", "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMarkdownFences(tt.in))
		})
	}
}

func TestExtractJSON(t *testing.T) {
	got, err := ExtractJSON("Here is the result:\n[{\"behavior\":\"humming\"}]\nDone.")
	require.NoError(t, err)
	assert.Equal(t, `[{"behavior":"humming"}]`, got)

	_, err = ExtractJSON("no json here at all")
	assert.Error(t, err)
}

func TestParseJSON(t *testing.T) {
	type item struct {
		Behavior string  `json:"behavior"`
		StartSec float64 `json:"startSec"`
	}

	items, err := ParseJSON[[]item]("```json\n[{\"behavior\":\"spinning\",\"startSec\":4.5}]\n```")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "spinning", items[0].Behavior)
	assert.Equal(t, 4.5, items[0].StartSec)

	_, err = ParseJSON[[]item]("[{broken")
	assert.Error(t, err)
}

func TestParseStrictOrLenient(t *testing.T) {
	type verdict struct {
		Correct bool `json:"correct"`
	}

	v, err := ParseStrictOrLenient[verdict](`{"correct":true}`)
	require.NoError(t, err)
	assert.True(t, v.Correct)

	v, err = ParseStrictOrLenient[verdict]("```json\n{\"correct\":true}\n```")
	require.NoError(t, err)
	assert.True(t, v.Correct)

	v, err = ParseStrictOrLenient[verdict]("Verdict: {\"correct\": true} as requested.")
	require.NoError(t, err)
	assert.True(t, v.Correct)

	_, err = ParseStrictOrLenient[verdict]("no structure at all")
	assert.Error(t, err)
}
