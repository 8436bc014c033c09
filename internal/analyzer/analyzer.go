// Package analyzer runs the multi-stage behavior analysis pipeline on one
// downloaded session video: timestamp overlay, backend upload, segmented
// detection, merge, per-span validation, final merge, and subtitle burn-in.
// All artifacts are produced as local files in the job's working directory;
// the caller owns persistence.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/childlens/behavior-worker/internal/behavior"
	"github.com/childlens/behavior-worker/internal/config"
	"github.com/childlens/behavior-worker/internal/gemini"
	"github.com/childlens/behavior-worker/internal/media"
	"github.com/childlens/behavior-worker/internal/policy"
	"github.com/childlens/behavior-worker/internal/session"
)

// Options carries the pipeline tunables. Zero values are not defaulted here;
// construct from config.
type Options struct {
	Model                    string
	Temperature              float32
	Concurrency              int
	MaxClipFPS               float64
	FileReadyTimeout         time.Duration
	ChunkSeconds             float64
	ChunkOverlapSeconds      float64
	MergeGapSeconds          float64
	ValidationMarginSeconds  float64
	MinActionDurationSeconds float64
}

// OptionsFromConfig copies the pipeline tunables out of the worker config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Model:                    cfg.Model,
		Temperature:              cfg.Temperature,
		Concurrency:              cfg.Concurrency,
		MaxClipFPS:               cfg.MaxClipFPS,
		FileReadyTimeout:         cfg.FileReadyTimeout,
		ChunkSeconds:             cfg.ChunkSeconds,
		ChunkOverlapSeconds:      cfg.ChunkOverlapSeconds,
		MergeGapSeconds:          cfg.MergeGapSeconds,
		ValidationMarginSeconds:  cfg.ValidationMarginSeconds,
		MinActionDurationSeconds: cfg.MinActionDurationSeconds,
	}
}

// Result summarises one pipeline run. Paths are local files in the working
// directory, named after their artifact object names.
type Result struct {
	RawPath       string
	ValidatedPath string
	FinalPath     string
	VideoPath     string

	Model            string
	DurationSec      float64
	DominantCategory string
	RawCount         int
	MergedCount      int
	FinalCount       int
	Behaviors        []behavior.Span
}

// FinalDocument is the schema of behaviors_final.json.
type FinalDocument struct {
	GeneratedAt      string          `json:"generatedAt"`
	DominantCategory *string         `json:"dominantCategory"`
	TotalBehaviors   int             `json:"totalBehaviors"`
	Behaviors        []behavior.Span `json:"behaviors"`
}

// Analyzer orchestrates the pipeline against an inference backend. The media
// tool functions are fields so tests can run the pipeline without ffmpeg.
type Analyzer struct {
	backend gemini.Inference
	caller  *policy.Caller
	opts    Options

	pollInterval time.Duration

	probeDuration func(ctx context.Context, path string) (float64, error)
	probeFPS      func(ctx context.Context, path string) (float64, error)
	burnOverlay   func(ctx context.Context, input, output string) error
	burnSubtitles func(ctx context.Context, input, output, srtPath string) error
}

// New builds an Analyzer wired to the real media tools.
func New(backend gemini.Inference, caller *policy.Caller, opts Options) *Analyzer {
	return &Analyzer{
		backend:       backend,
		caller:        caller,
		opts:          opts,
		pollInterval:  time.Second,
		probeDuration: media.ProbeDuration,
		probeFPS:      media.ProbeFPS,
		burnOverlay:   media.BurnTimestampOverlay,
		burnSubtitles: media.BurnSubtitles,
	}
}

// Run executes the full pipeline on inputVideo, writing artifacts into
// workDir. An empty behavior set is a valid outcome; errors are reserved for
// conditions that leave the job without usable artifacts.
func (a *Analyzer) Run(ctx context.Context, inputVideo, workDir string) (*Result, error) {
	analysisInput := filepath.Join(workDir, "analysis_input.mp4")
	if err := a.burnOverlay(ctx, inputVideo, analysisInput); err != nil {
		log.Warn().Err(err).Msg("Timestamp overlay failed, analyzing original video")
		analysisInput = inputVideo
	}

	mf, err := a.backend.UploadMedia(ctx, analysisInput, "video/mp4")
	if err != nil {
		return nil, fmt.Errorf("upload analysis video: %w", err)
	}
	defer func() {
		if derr := a.backend.DeleteMedia(context.WithoutCancel(ctx), mf.Name); derr != nil {
			log.Warn().Str("media", mf.Name).Err(derr).Msg("Failed to delete uploaded media")
		}
	}()

	mf, err = a.waitUntilActive(ctx, mf)
	if err != nil {
		return nil, err
	}

	duration, err := a.probeDuration(ctx, analysisInput)
	if err != nil {
		return nil, fmt.Errorf("probe duration: %w", err)
	}
	fps, err := a.probeFPS(ctx, analysisInput)
	if err != nil {
		log.Warn().Err(err).Msg("Frame-rate probe failed, using configured cap")
		fps = 0
	}
	effFPS := a.opts.MaxClipFPS
	if fps > 0 && fps < effFPS {
		effFPS = fps
	}

	segments := behavior.PlanSegments(duration, a.opts.ChunkSeconds, a.opts.ChunkOverlapSeconds)
	log.Info().
		Float64("duration_sec", duration).
		Float64("clip_fps", effFPS).
		Int("segments", len(segments)).
		Msg("Starting detection stage")

	raw := a.detect(ctx, mf, segments, effFPS, duration)
	rawPath := filepath.Join(workDir, session.ArtifactRawJSON)
	if err := writeJSONFile(rawPath, raw); err != nil {
		return nil, err
	}

	merged := behavior.Merge(raw, a.opts.MergeGapSeconds)
	log.Info().Int("raw", len(raw)).Int("merged", len(merged)).Msg("Starting validation stage")

	validated := a.validate(ctx, mf, merged, duration, effFPS)
	validatedPath := filepath.Join(workDir, session.ArtifactValidatedJSON)
	if err := writeJSONFile(validatedPath, validated); err != nil {
		return nil, err
	}

	final := behavior.Merge(validated, a.opts.MergeGapSeconds)
	if final == nil {
		final = []behavior.Span{}
	}
	dominant := behavior.DominantCategory(final)

	doc := FinalDocument{
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
		TotalBehaviors: len(final),
		Behaviors:      final,
	}
	if dominant != "" {
		doc.DominantCategory = &dominant
	}
	finalPath := filepath.Join(workDir, session.ArtifactFinalJSON)
	if err := writeJSONFile(finalPath, doc); err != nil {
		return nil, err
	}

	srtPath := filepath.Join(workDir, "behaviors.srt")
	if err := media.WriteSRT(srtPath, final); err != nil {
		return nil, err
	}
	videoPath := filepath.Join(workDir, session.ArtifactVideo)
	if err := a.burnSubtitles(ctx, analysisInput, videoPath, srtPath); err != nil {
		return nil, fmt.Errorf("burn subtitles: %w", err)
	}

	log.Info().
		Int("final", len(final)).
		Str("dominant_category", dominant).
		Msg("Analysis pipeline complete")

	return &Result{
		RawPath:          rawPath,
		ValidatedPath:    validatedPath,
		FinalPath:        finalPath,
		VideoPath:        videoPath,
		Model:            a.opts.Model,
		DurationSec:      duration,
		DominantCategory: dominant,
		RawCount:         len(raw),
		MergedCount:      len(merged),
		FinalCount:       len(final),
		Behaviors:        final,
	}, nil
}

// waitUntilActive polls the uploaded file until the backend reports it ACTIVE,
// bounded by the file-ready timeout. A terminal ERROR state or the deadline
// fails the job.
func (a *Analyzer) waitUntilActive(ctx context.Context, mf *gemini.MediaFile) (*gemini.MediaFile, error) {
	deadline := time.Now().Add(a.opts.FileReadyTimeout)
	cur := mf
	for {
		switch cur.State {
		case gemini.StateActive:
			return cur, nil
		case gemini.StateFailed:
			return nil, fmt.Errorf("uploaded media %s failed backend processing", cur.Name)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("uploaded media %s not ready after %s", cur.Name, a.opts.FileReadyTimeout)
		}

		timer := time.NewTimer(a.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		var err error
		cur, err = a.backend.GetMedia(ctx, cur.Name)
		if err != nil {
			return nil, fmt.Errorf("poll uploaded media %s: %w", mf.Name, err)
		}
	}
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
