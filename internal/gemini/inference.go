// Package gemini defines the inference backend contract used by the analyzer
// and its Gemini implementation. The contract is deliberately narrow — upload
// a media file, poll its readiness, run one multimodal generation — so tests
// can substitute a scripted backend.
package gemini

import (
	"context"

	"google.golang.org/genai"
)

// MediaState is the processing state of an uploaded media file.
type MediaState string

const (
	StateProcessing MediaState = "PROCESSING"
	StateActive     MediaState = "ACTIVE"
	StateFailed     MediaState = "ERROR"
)

// MediaFile is the backend's handle for an uploaded video.
type MediaFile struct {
	Name     string
	URI      string
	MIMEType string
	State    MediaState
}

// Clip addresses a time window of an uploaded video. Offsets are seconds on
// the uploaded media; FPS is the effective sampling rate the model should use.
type Clip struct {
	URI      string
	MIMEType string
	StartSec float64
	EndSec   float64
	FPS      float64
}

// GenerateRequest is a single multimodal inference request.
type GenerateRequest struct {
	Model          string
	Prompt         string
	Clip           *Clip
	Temperature    float32
	ResponseSchema *genai.Schema
}

// Inference is the generative backend contract.
type Inference interface {
	// UploadMedia streams a local file to the backend and returns its handle.
	UploadMedia(ctx context.Context, path, mimeType string) (*MediaFile, error)

	// GetMedia re-fetches the handle by name to observe its current state.
	GetMedia(ctx context.Context, name string) (*MediaFile, error)

	// DeleteMedia removes an uploaded file. Best-effort cleanup.
	DeleteMedia(ctx context.Context, name string) error

	// Generate runs one inference and returns the response text.
	Generate(ctx context.Context, req *GenerateRequest) (string, error)
}
