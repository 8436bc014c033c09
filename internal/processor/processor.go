// Package processor turns one storage finalize event into one analysis job:
// event filtering, session resolution, the idempotency gate, the status
// lifecycle, artifact persistence, and cleanup.
package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/childlens/behavior-worker/internal/analyzer"
	"github.com/childlens/behavior-worker/internal/blobstore"
	"github.com/childlens/behavior-worker/internal/metrics"
	"github.com/childlens/behavior-worker/internal/session"
)

// Pipeline is the analysis stage contract, satisfied by analyzer.Analyzer.
type Pipeline interface {
	Run(ctx context.Context, inputVideo, workDir string) (*analyzer.Result, error)
}

// Outcome reports how an event was handled. Ignored outcomes are successful
// no-ops; Result is set only when a full analysis ran.
type Outcome struct {
	Ignored     bool
	Reason      string
	ICDKey      string
	UploadEpoch string
	SessionKey  string
	Result      *analyzer.Result
}

// Processor executes jobs against one bucket. TempRoot defaults to the
// system temp directory.
type Processor struct {
	Store    blobstore.Store
	Paths    session.Paths
	Pipeline Pipeline
	TempRoot string
}

// Process handles one storage event end to end. An error return means the job
// started and failed; the session record has already been moved to Failed.
func (p *Processor) Process(ctx context.Context, evt StorageEvent) (*Outcome, error) {
	if evt.EventType != EventTypeFinalize {
		return &Outcome{Ignored: true, Reason: "not_finalize"}, nil
	}
	if !p.Paths.InVideosScope(evt.ObjectName) {
		return &Outcome{Ignored: true, Reason: "outside_videos_prefix"}, nil
	}

	icdKey, uploadEpoch, err := p.Paths.ParseObjectName(evt.ObjectName)
	if err != nil {
		return nil, fmt.Errorf("parse object name: %w", err)
	}

	sessionKey, rec, err := p.resolveSession(ctx, icdKey, uploadEpoch, evt.ObjectName)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{ICDKey: icdKey, UploadEpoch: uploadEpoch, SessionKey: sessionKey}

	if rec.AlreadyProcessed() {
		log.Info().Str("session", sessionKey).Str("status", rec.Status).Msg("Session already processed, ignoring event")
		outcome.Ignored = true
		outcome.Reason = "already_processed"
		return outcome, nil
	}

	log.Info().
		Str("object", evt.ObjectName).
		Str("session", sessionKey).
		Str("icd_key", icdKey).
		Msg("Starting analysis job")

	if err := session.Update(ctx, p.Store, sessionKey, func(m map[string]any) {
		m["status"] = session.StatusProcessing
		m["processingStartedAt"] = time.Now().UTC().Format(time.RFC3339)
		m["processingError"] = nil
	}); err != nil {
		return nil, fmt.Errorf("mark session processing: %w", err)
	}

	start := time.Now()
	res, err := p.runJob(ctx, evt, icdKey, uploadEpoch, sessionKey)
	p.emitJobMetrics(evt, res, time.Since(start), err)
	if err != nil {
		p.markFailed(ctx, sessionKey, err)
		return nil, err
	}

	outcome.Result = res
	return outcome, nil
}

// resolveSession finds the session record for a source video. The canonical
// key is derived from the upload epoch; when the filename carries no epoch, or
// the derived record is absent, the session directory is scanned for a record
// whose storagePath matches the object.
func (p *Processor) resolveSession(ctx context.Context, icdKey, uploadEpoch, objectName string) (string, *session.Record, error) {
	if uploadEpoch != "" {
		key := p.Paths.SessionKey(icdKey, uploadEpoch)
		rec, err := session.Read(ctx, p.Store, key)
		if err == nil {
			return key, rec, nil
		}
		if !blobstore.IsNotExist(err) {
			return "", nil, fmt.Errorf("read session %s: %w", key, err)
		}
	}

	keys, err := p.Store.List(ctx, p.Paths.SessionDir(icdKey))
	if err != nil {
		return "", nil, fmt.Errorf("scan sessions for %s: %w", icdKey, err)
	}
	for _, key := range keys {
		rec, err := session.Read(ctx, p.Store, key)
		if err != nil {
			log.Warn().Str("session", key).Err(err).Msg("Skipping unreadable session record during scan")
			continue
		}
		if rec.StoragePath == objectName {
			return key, rec, nil
		}
	}
	return "", nil, fmt.Errorf("no session record found for object %s", objectName)
}

// runJob performs the download, analysis, and artifact persistence for a
// resolved session. The working directory is always removed, success or not.
func (p *Processor) runJob(ctx context.Context, evt StorageEvent, icdKey, uploadEpoch, sessionKey string) (*analyzer.Result, error) {
	root := p.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	workDir := filepath.Join(root, "behavior-job-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if rerr := os.RemoveAll(workDir); rerr != nil {
			log.Warn().Str("dir", workDir).Err(rerr).Msg("Failed to remove work dir")
		}
	}()

	inputVideo := filepath.Join(workDir, "source"+filepath.Ext(evt.ObjectName))
	if err := p.Store.DownloadToFile(ctx, evt.ObjectName, inputVideo); err != nil {
		return nil, fmt.Errorf("download source video: %w", err)
	}

	res, err := p.Pipeline.Run(ctx, inputVideo, workDir)
	if err != nil {
		return nil, err
	}

	uploads := []struct {
		local       string
		artifact    string
		contentType string
	}{
		{res.RawPath, session.ArtifactRawJSON, "application/json"},
		{res.ValidatedPath, session.ArtifactValidatedJSON, "application/json"},
		{res.FinalPath, session.ArtifactFinalJSON, "application/json"},
		{res.VideoPath, session.ArtifactVideo, "video/mp4"},
	}
	for _, u := range uploads {
		key := p.Paths.ArtifactKey(icdKey, uploadEpoch, u.artifact)
		if err := p.Store.UploadFromFile(ctx, u.local, key, u.contentType); err != nil {
			return nil, fmt.Errorf("upload artifact %s: %w", u.artifact, err)
		}
	}

	finalKey := p.Paths.ArtifactKey(icdKey, uploadEpoch, session.ArtifactFinalJSON)
	videoKey := p.Paths.ArtifactKey(icdKey, uploadEpoch, session.ArtifactVideo)
	if err := session.Update(ctx, p.Store, sessionKey, func(m map[string]any) {
		m["status"] = session.StatusPendingReview
		m["pendingReviewAt"] = time.Now().UTC().Format(time.RFC3339)
		m["processingError"] = nil
		m["analysisJsonPath"] = finalKey
		m["processedVideoPath"] = videoKey
		m["linkedSourceVideoPath"] = evt.ObjectName
		m["behaviorSummary"] = summarize(res)
		if res.DominantCategory != "" {
			m["dominantCategory"] = res.DominantCategory
		} else {
			m["dominantCategory"] = nil
		}
		m["worker"] = map[string]any{
			"model":               res.Model,
			"durationSec":         res.DurationSec,
			"mergedBehaviorCount": res.FinalCount,
		}
	}); err != nil {
		return nil, fmt.Errorf("mark session pending review: %w", err)
	}

	log.Info().
		Str("session", sessionKey).
		Int("behaviors", res.FinalCount).
		Str("dominant_category", res.DominantCategory).
		Msg("Analysis job complete")
	return res, nil
}

// markFailed moves the session to Failed with the error message. Best effort;
// the original job error is what propagates.
func (p *Processor) markFailed(ctx context.Context, sessionKey string, jobErr error) {
	msg := jobErr.Error()
	if err := session.Update(context.WithoutCancel(ctx), p.Store, sessionKey, func(m map[string]any) {
		m["status"] = session.StatusFailed
		m["failedAt"] = time.Now().UTC().Format(time.RFC3339)
		m["processingError"] = msg
	}); err != nil {
		log.Error().Str("session", sessionKey).Err(err).Msg("Failed to mark session failed")
	}
}

// summarize builds the one-line human summary stored on the session record.
func summarize(res *analyzer.Result) string {
	if res.FinalCount == 0 {
		return "No target behaviors detected"
	}
	labels := make(map[string]struct{})
	for _, sp := range res.Behaviors {
		labels[sp.Behavior] = struct{}{}
	}
	return fmt.Sprintf("%d behavior span(s) across %d label(s); dominant: %s",
		res.FinalCount, len(labels), res.DominantCategory)
}

func (p *Processor) emitJobMetrics(evt StorageEvent, res *analyzer.Result, elapsed time.Duration, err error) {
	rec := metrics.New(metrics.Namespace).
		Dimension("Operation", "ProcessVideo").
		Metric("JobDurationMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Property("object_name", evt.ObjectName)
	if err != nil {
		rec.Count("JobFailed").Property("error", err.Error())
	} else {
		rec.Count("JobSucceeded").
			Metric("RawDetectionCount", float64(res.RawCount), metrics.UnitCount).
			Metric("FinalBehaviorCount", float64(res.FinalCount), metrics.UnitCount)
	}
	rec.Flush()
}
