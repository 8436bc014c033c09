package analyzer

import "google.golang.org/genai"

// detectionSchema constrains detection responses to an array of span objects.
var detectionSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"behavior": {Type: genai.TypeString},
			"modality": {Type: genai.TypeString},
			"startSec": {Type: genai.TypeNumber},
			"endSec":   {Type: genai.TypeNumber},
			"notes":    {Type: genai.TypeString},
		},
		Required: []string{"behavior", "startSec", "endSec"},
	},
}

// validationSchema constrains validation responses to a verdict object.
var validationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"correct":  {Type: genai.TypeBoolean},
		"startSec": {Type: genai.TypeNumber},
		"endSec":   {Type: genai.TypeNumber},
	},
	Required: []string{"correct"},
}
