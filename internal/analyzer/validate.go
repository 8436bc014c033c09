package analyzer

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/childlens/behavior-worker/internal/behavior"
	"github.com/childlens/behavior-worker/internal/gemini"
	"github.com/childlens/behavior-worker/internal/jsonutil"
	"github.com/childlens/behavior-worker/internal/pool"
)

// validationVerdict is the model's judgment on one merged span. Refined bounds
// are clip-relative and optional.
type validationVerdict struct {
	Correct  bool     `json:"correct"`
	StartSec *float64 `json:"startSec,omitempty"`
	EndSec   *float64 `json:"endSec,omitempty"`
}

// validate re-examines every merged span against a margin-expanded clip.
// Rejected spans are dropped; spans whose call budget is exhausted are kept
// with their pre-validation bounds and marked Skipped.
func (a *Analyzer) validate(ctx context.Context, mf *gemini.MediaFile, spans []behavior.Span, duration, fps float64) []behavior.Span {
	results := pool.Map(ctx, spans, a.opts.Concurrency, func(ctx context.Context, i int, sp behavior.Span) pool.Result[behavior.Span] {
		out, keep := a.validateSpan(ctx, mf, sp, duration, fps)
		if !keep {
			return pool.Result[behavior.Span]{Skipped: true}
		}
		return pool.Result[behavior.Span]{Value: out}
	})

	kept := make([]behavior.Span, 0, len(spans))
	for _, r := range results {
		if !r.Skipped {
			kept = append(kept, r.Value)
		}
	}
	return kept
}

// validateSpan runs one validation call. The second return value is false when
// the model rejected the span.
func (a *Analyzer) validateSpan(ctx context.Context, mf *gemini.MediaFile, sp behavior.Span, duration, fps float64) (behavior.Span, bool) {
	clipStart := math.Max(0, sp.StartSec-a.opts.ValidationMarginSeconds)
	clipEnd := math.Min(duration, sp.EndSec+a.opts.ValidationMarginSeconds)
	label := fmt.Sprintf("validate %s @%.1fs", sp.Behavior, sp.StartSec)

	req := &gemini.GenerateRequest{
		Model:  a.opts.Model,
		Prompt: validationPrompt(sp, clipEnd-clipStart),
		Clip: &gemini.Clip{
			URI:      mf.URI,
			MIMEType: mf.MIMEType,
			StartSec: clipStart,
			EndSec:   clipEnd,
			FPS:      fps,
		},
		Temperature:    a.opts.Temperature,
		ResponseSchema: validationSchema,
	}

	text, err := a.caller.Do(ctx, label, func(ctx context.Context) (string, error) {
		return a.backend.Generate(ctx, req)
	})
	if err != nil {
		log.Warn().Str("label", label).Err(err).Msg("Validation call skipped, keeping pre-validation bounds")
		sp.Skipped = true
		return sp, true
	}

	verdict, perr := jsonutil.ParseStrictOrLenient[validationVerdict](text)
	if perr != nil {
		log.Warn().Str("label", label).Err(perr).Msg("Unparseable validation response, retrying strict")
		strict := *req
		strict.Prompt += strictJSONReminder
		strict.Temperature = 0
		text, err = a.caller.Do(ctx, label+" (strict)", func(ctx context.Context) (string, error) {
			return a.backend.Generate(ctx, &strict)
		})
		if err == nil {
			verdict, perr = jsonutil.ParseStrictOrLenient[validationVerdict](text)
		}
		if err != nil || perr != nil {
			log.Warn().Str("label", label).Msg("Validation verdict unavailable, keeping pre-validation bounds")
			sp.Skipped = true
			return sp, true
		}
	}

	if !verdict.Correct {
		log.Debug().Str("label", label).Msg("Span rejected by validation")
		return behavior.Span{}, false
	}

	if verdict.StartSec != nil && verdict.EndSec != nil && isFinite(*verdict.StartSec) && isFinite(*verdict.EndSec) {
		start := clamp(clipStart+*verdict.StartSec, clipStart, clipEnd)
		end := clamp(clipStart+*verdict.EndSec, clipStart, clipEnd)
		if end < start+0.01 {
			end = start + 0.01
		}
		if end-start < a.opts.MinActionDurationSeconds {
			end = math.Min(start+a.opts.MinActionDurationSeconds, duration)
		}
		sp.StartSec = behavior.Round3(start)
		sp.EndSec = behavior.Round3(end)
	}
	return sp, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
