package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/childlens/behavior-worker/internal/behavior"
	"github.com/childlens/behavior-worker/internal/gemini"
	"github.com/childlens/behavior-worker/internal/jsonutil"
	"github.com/childlens/behavior-worker/internal/pool"
)

// detectionItem is one raw span as returned by the model, clip-relative.
type detectionItem struct {
	Behavior string  `json:"behavior"`
	Modality string  `json:"modality,omitempty"`
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
	Notes    string  `json:"notes,omitempty"`
}

// detect runs the detection stage across all segments under the shared worker
// pool. A segment whose call budget is exhausted contributes no spans; the
// stage never fails the job.
func (a *Analyzer) detect(ctx context.Context, mf *gemini.MediaFile, segments []behavior.Segment, fps, duration float64) []behavior.Span {
	results := pool.Map(ctx, segments, a.opts.Concurrency, func(ctx context.Context, i int, seg behavior.Segment) pool.Result[[]behavior.Span] {
		spans, err := a.detectSegment(ctx, mf, seg, fps, duration)
		if err != nil {
			log.Warn().
				Int("segment", i).
				Float64("start_sec", seg.StartSec).
				Float64("end_sec", seg.EndSec).
				Err(err).
				Msg("Segment detection skipped")
			return pool.Result[[]behavior.Span]{Skipped: true, Err: err}
		}
		return pool.Result[[]behavior.Span]{Value: spans}
	})

	spans := make([]behavior.Span, 0)
	for _, r := range results {
		spans = append(spans, r.Value...)
	}
	return spans
}

// detectSegment issues one detection call for a segment, retrying once at
// temperature 0 when the response cannot be parsed. An unparseable response
// after the strict retry counts as no detections.
func (a *Analyzer) detectSegment(ctx context.Context, mf *gemini.MediaFile, seg behavior.Segment, fps, duration float64) ([]behavior.Span, error) {
	label := fmt.Sprintf("detect %.0f-%.0fs", seg.StartSec, seg.EndSec)

	req := &gemini.GenerateRequest{
		Model:  a.opts.Model,
		Prompt: detectionPrompt(seg),
		Clip: &gemini.Clip{
			URI:      mf.URI,
			MIMEType: mf.MIMEType,
			StartSec: seg.StartSec,
			EndSec:   seg.EndSec,
			FPS:      fps,
		},
		Temperature:    a.opts.Temperature,
		ResponseSchema: detectionSchema,
	}

	text, err := a.caller.Do(ctx, label, func(ctx context.Context) (string, error) {
		return a.backend.Generate(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	items, perr := jsonutil.ParseStrictOrLenient[[]detectionItem](text)
	if perr != nil {
		log.Warn().Str("label", label).Err(perr).Msg("Unparseable detection response, retrying strict")
		strict := *req
		strict.Prompt += strictJSONReminder
		strict.Temperature = 0
		text, err = a.caller.Do(ctx, label+" (strict)", func(ctx context.Context) (string, error) {
			return a.backend.Generate(ctx, &strict)
		})
		if err != nil {
			return nil, err
		}
		items, perr = jsonutil.ParseStrictOrLenient[[]detectionItem](text)
		if perr != nil {
			log.Warn().Str("label", label).Err(perr).Msg("Detection response unparseable after strict retry, treating as empty")
			return nil, nil
		}
	}

	return a.normalizeDetections(items, seg, duration), nil
}

// normalizeDetections converts clip-relative model items into source-video
// spans: labels are lowercased and checked against the vocabulary, missing
// modalities are inferred from the vocabulary partition, times are shifted by
// the segment start, and sub-minimum spans are extended. The extension may
// cross an interior window boundary but never the end of the video; a span
// that cannot reach the minimum duration there is dropped.
func (a *Analyzer) normalizeDetections(items []detectionItem, seg behavior.Segment, duration float64) []behavior.Span {
	var out []behavior.Span
	for _, it := range items {
		name := strings.ToLower(strings.TrimSpace(it.Behavior))
		if !behavior.IsKnown(name) {
			log.Debug().Str("behavior", it.Behavior).Msg("Dropping detection outside vocabulary")
			continue
		}
		if !isFinite(it.StartSec) || !isFinite(it.EndSec) || it.EndSec < it.StartSec {
			log.Debug().Str("behavior", name).Float64("start_sec", it.StartSec).Float64("end_sec", it.EndSec).Msg("Dropping detection with invalid bounds")
			continue
		}

		modality := behavior.Modality(strings.ToLower(strings.TrimSpace(it.Modality)))
		if modality != behavior.ModalityVisual && modality != behavior.ModalityAudio {
			modality, _ = behavior.ModalityOf(name)
		}

		start := seg.StartSec + it.StartSec
		end := seg.StartSec + it.EndSec
		if start < seg.StartSec {
			start = seg.StartSec
		}
		if start >= seg.EndSec {
			continue
		}
		if end > seg.EndSec {
			end = seg.EndSec
		}
		if end-start < a.opts.MinActionDurationSeconds {
			end = start + a.opts.MinActionDurationSeconds
			if end > duration {
				end = duration
			}
		}
		if end-start < a.opts.MinActionDurationSeconds-1e-9 {
			log.Debug().Str("behavior", name).Float64("start_sec", start).Msg("Dropping sub-minimum detection at the end of the video")
			continue
		}

		out = append(out, behavior.Span{
			Behavior: name,
			Modality: modality,
			StartSec: behavior.Round3(start),
			EndSec:   behavior.Round3(end),
			Notes:    strings.TrimSpace(it.Notes),
		})
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
