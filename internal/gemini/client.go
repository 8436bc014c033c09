package gemini

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/childlens/behavior-worker/internal/metrics"
)

// Client is the Gemini-backed Inference implementation.
type Client struct {
	gc *genai.Client
}

var _ Inference = (*Client)(nil)

// NewClient creates a Gemini API client with the given API key.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{gc: gc}, nil
}

// UploadMedia streams a local file to the Gemini Files API.
func (c *Client) UploadMedia(ctx context.Context, path, mimeType string) (*MediaFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	log.Debug().
		Str("path", path).
		Int64("size_bytes", info.Size()).
		Str("mime_type", mimeType).
		Msg("Starting Gemini Files API upload")

	start := time.Now()
	file, err := c.gc.Files.Upload(ctx, f, &genai.UploadFileConfig{
		MIMEType: mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	elapsed := time.Since(start)
	log.Info().
		Str("name", file.Name).
		Str("uri", file.URI).
		Str("state", string(file.State)).
		Dur("upload_duration", elapsed).
		Msg("Gemini Files API upload complete")

	metrics.New(metrics.Namespace).
		Dimension("Operation", "filesUpload").
		Metric("GeminiFilesUploadMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Metric("GeminiFilesUploadBytes", float64(info.Size()), metrics.UnitBytes).
		Flush()

	return fromGenaiFile(file, mimeType), nil
}

// GetMedia re-fetches an uploaded file's state by name.
func (c *Client) GetMedia(ctx context.Context, name string) (*MediaFile, error) {
	file, err := c.gc.Files.Get(ctx, name, nil)
	if err != nil {
		return nil, fmt.Errorf("get file state: %w", err)
	}
	return fromGenaiFile(file, file.MIMEType), nil
}

// DeleteMedia removes an uploaded file from the backend.
func (c *Client) DeleteMedia(ctx context.Context, name string) error {
	if _, err := c.gc.Files.Delete(ctx, name, nil); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	log.Debug().Str("file", name).Msg("Uploaded Gemini file deleted")
	return nil
}

// Generate runs one multimodal inference and returns the response text.
// Errors are returned unwrapped of interpretation; the policy layer
// classifies them for retry handling.
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	var parts []*genai.Part
	if req.Clip != nil {
		parts = append(parts, &genai.Part{
			FileData: &genai.FileData{
				FileURI:  req.Clip.URI,
				MIMEType: req.Clip.MIMEType,
			},
			VideoMetadata: &genai.VideoMetadata{
				StartOffset: secondsToOffset(req.Clip.StartSec),
				EndOffset:   secondsToOffset(req.Clip.EndSec),
				FPS:         genai.Ptr(req.Clip.FPS),
			},
		})
	}
	parts = append(parts, &genai.Part{Text: req.Prompt})

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = req.ResponseSchema
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	start := time.Now()
	resp, err := c.gc.Models.GenerateContent(ctx, req.Model, contents, config)
	elapsed := time.Since(start)

	m := metrics.New(metrics.Namespace).
		Metric("GeminiApiLatencyMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("GeminiApiCalls")
	if err != nil {
		m.Count("GeminiApiErrors")
	}
	if resp != nil && resp.UsageMetadata != nil {
		m.Metric("GeminiInputTokens", float64(resp.UsageMetadata.PromptTokenCount), metrics.UnitCount)
		m.Metric("GeminiOutputTokens", float64(resp.UsageMetadata.CandidatesTokenCount), metrics.UnitCount)
	}
	m.Flush()

	if err != nil {
		log.Error().Err(err).Dur("duration", elapsed).Str("model", req.Model).Msg("Gemini generate failed")
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("received empty response from Gemini API")
	}

	text := resp.Text()
	log.Debug().
		Int("response_length", len(text)).
		Dur("duration", elapsed).
		Str("model", req.Model).
		Msg("Gemini response received")

	return text, nil
}

// secondsToOffset converts fractional seconds into the millisecond-precision
// duration the API expects for clip offsets.
func secondsToOffset(sec float64) time.Duration {
	return time.Duration(math.Round(sec*1000)) * time.Millisecond
}

func fromGenaiFile(file *genai.File, mimeType string) *MediaFile {
	state := StateProcessing
	switch file.State {
	case genai.FileStateActive:
		state = StateActive
	case genai.FileStateFailed:
		state = StateFailed
	}
	return &MediaFile{
		Name:     file.Name,
		URI:      file.URI,
		MIMEType: mimeType,
		State:    state,
	}
}
