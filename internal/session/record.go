// Package session models the persisted session record tying a source video to
// its lifecycle state and analysis artifacts. Records live as single JSON
// objects in blob storage, keyed by (icdKey, uploadEpoch); the worker owns
// them only while a job is in flight.
package session

import (
	"context"
	"fmt"

	"github.com/childlens/behavior-worker/internal/blobstore"
)

// Session lifecycle statuses. Transitions within a job are monotonic:
// Awaiting|Processing → Processing → {Pending review, Failed}. Reviewed is set
// by downstream review actions and is terminal for re-processing purposes.
const (
	StatusAwaiting      = "Awaiting"
	StatusProcessing    = "Processing"
	StatusPendingReview = "Pending review"
	StatusReviewed      = "Reviewed"
	StatusFailed        = "Failed"
)

// WorkerInfo summarises the analysis run that produced the artifacts.
type WorkerInfo struct {
	Model               string  `json:"model"`
	DurationSec         float64 `json:"durationSec"`
	MergedBehaviorCount int     `json:"mergedBehaviorCount"`
}

// Record is the typed view of a session object. Fields not listed here (such
// as manual annotations added by the review surface) are preserved by the
// raw-map Update path, never by this struct.
type Record struct {
	StoragePath           string      `json:"storagePath"`
	Status                string      `json:"status"`
	ProcessingStartedAt   string      `json:"processingStartedAt,omitempty"`
	PendingReviewAt       string      `json:"pendingReviewAt,omitempty"`
	FailedAt              string      `json:"failedAt,omitempty"`
	ProcessingError       *string     `json:"processingError"`
	AnalysisJSONPath      string      `json:"analysisJsonPath,omitempty"`
	ProcessedVideoPath    string      `json:"processedVideoPath,omitempty"`
	DominantCategory      *string     `json:"dominantCategory"`
	BehaviorSummary       string      `json:"behaviorSummary,omitempty"`
	LinkedSourceVideoPath string      `json:"linkedSourceVideoPath,omitempty"`
	Worker                *WorkerInfo `json:"worker,omitempty"`
}

// AlreadyProcessed reports whether the record is in a terminal reviewed state
// with both artifact paths populated. Re-deriving artifacts for such a
// session would destroy manual review state, so the job processor treats it
// as a no-op.
func (r *Record) AlreadyProcessed() bool {
	terminal := r.Status == StatusPendingReview || r.Status == StatusReviewed
	return terminal && r.AnalysisJSONPath != "" && r.ProcessedVideoPath != ""
}

// Read loads the typed record at key. Returns blobstore.ErrNotExist when the
// session object is absent.
func Read(ctx context.Context, store blobstore.Store, key string) (*Record, error) {
	var rec Record
	if err := store.ReadJSON(ctx, key, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Update performs the read-modify-write discipline on a session object: the
// record is re-read immediately before the write so concurrent external edits
// to orthogonal fields (review notes, manual annotations) survive. mutate
// receives the raw JSON object and applies only the worker-owned fields.
func Update(ctx context.Context, store blobstore.Store, key string, mutate func(map[string]any)) error {
	raw := make(map[string]any)
	if err := store.ReadJSON(ctx, key, &raw); err != nil {
		return fmt.Errorf("re-read session %s: %w", key, err)
	}
	mutate(raw)
	if err := store.WriteJSON(ctx, key, raw); err != nil {
		return fmt.Errorf("write session %s: %w", key, err)
	}
	return nil
}
