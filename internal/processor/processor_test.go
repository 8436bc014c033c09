package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/childlens/behavior-worker/internal/analyzer"
	"github.com/childlens/behavior-worker/internal/behavior"
	"github.com/childlens/behavior-worker/internal/blobstore"
	"github.com/childlens/behavior-worker/internal/session"
)

var testPaths = session.Paths{
	VideosPrefix:   "media/child-videos",
	SessionsPrefix: "sessions",
	AnalysisPrefix: "analysis",
}

const (
	testObject     = "media/child-videos/icd-f84/1718000000-clip.mp4"
	testSessionKey = "sessions/icd-f84/1718000000.json"
)

// fakePipeline records calls and delegates to run.
type fakePipeline struct {
	mu       sync.Mutex
	calls    int
	workDirs []string
	run      func(ctx context.Context, inputVideo, workDir string) (*analyzer.Result, error)
}

func (f *fakePipeline) Run(ctx context.Context, inputVideo, workDir string) (*analyzer.Result, error) {
	f.mu.Lock()
	f.calls++
	f.workDirs = append(f.workDirs, workDir)
	f.mu.Unlock()
	return f.run(ctx, inputVideo, workDir)
}

// succeedingPipeline writes placeholder artifacts and reports one behavior.
func succeedingPipeline() *fakePipeline {
	return &fakePipeline{
		run: func(_ context.Context, _, workDir string) (*analyzer.Result, error) {
			mk := func(name, content string) string {
				p := filepath.Join(workDir, name)
				if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
					panic(err)
				}
				return p
			}
			return &analyzer.Result{
				RawPath:          mk(session.ArtifactRawJSON, "[]"),
				ValidatedPath:    mk(session.ArtifactValidatedJSON, "[]"),
				FinalPath:        mk(session.ArtifactFinalJSON, "{}"),
				VideoPath:        mk(session.ArtifactVideo, "mp4"),
				Model:            "test-model",
				DurationSec:      45,
				DominantCategory: "hand-flapping",
				FinalCount:       1,
				Behaviors:        []behavior.Span{{Behavior: "hand-flapping", Modality: behavior.ModalityVisual, StartSec: 4, EndSec: 8}},
			}, nil
		},
	}
}

func newProcessor(t *testing.T, store blobstore.Store, pipe Pipeline) *Processor {
	t.Helper()
	return &Processor{Store: store, Paths: testPaths, Pipeline: pipe, TempRoot: t.TempDir()}
}

func seedStore(t *testing.T, rec map[string]any) *blobstore.MemStore {
	t.Helper()
	store := blobstore.NewMemStore()
	store.Put(testObject, []byte("video-bytes"))
	if rec != nil {
		require.NoError(t, store.WriteJSON(context.Background(), testSessionKey, rec))
	}
	return store
}

func finalizeEvent(object string) StorageEvent {
	return StorageEvent{EventType: EventTypeFinalize, BucketName: "childlens-media", ObjectName: object}
}

func TestProcess_IgnoresNonFinalizeEvents(t *testing.T) {
	pipe := succeedingPipeline()
	p := newProcessor(t, blobstore.NewMemStore(), pipe)

	out, err := p.Process(context.Background(), StorageEvent{EventType: "OBJECT_DELETE", ObjectName: testObject})
	require.NoError(t, err)
	assert.True(t, out.Ignored)
	assert.Equal(t, "not_finalize", out.Reason)
	assert.Zero(t, pipe.calls)
}

func TestProcess_IgnoresObjectsOutsideVideosPrefix(t *testing.T) {
	pipe := succeedingPipeline()
	p := newProcessor(t, blobstore.NewMemStore(), pipe)

	out, err := p.Process(context.Background(), finalizeEvent("analysis/icd-f84/1718000000/behaviors_final.json"))
	require.NoError(t, err)
	assert.True(t, out.Ignored)
	assert.Equal(t, "outside_videos_prefix", out.Reason)
	assert.Zero(t, pipe.calls)
}

func TestProcess_HappyPath(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, map[string]any{
		"storagePath": testObject,
		"status":      session.StatusAwaiting,
		"reviewNotes": "kept by the merge write",
	})
	pipe := succeedingPipeline()
	p := newProcessor(t, store, pipe)

	out, err := p.Process(ctx, finalizeEvent(testObject))
	require.NoError(t, err)
	assert.False(t, out.Ignored)
	assert.Equal(t, "icd-f84", out.ICDKey)
	assert.Equal(t, "1718000000", out.UploadEpoch)
	require.NotNil(t, out.Result)
	assert.Equal(t, 1, pipe.calls)

	for _, artifact := range []string{
		session.ArtifactRawJSON, session.ArtifactValidatedJSON,
		session.ArtifactFinalJSON, session.ArtifactVideo,
	} {
		_, ok := store.Get(testPaths.ArtifactKey("icd-f84", "1718000000", artifact))
		assert.True(t, ok, artifact)
	}

	var raw map[string]any
	require.NoError(t, store.ReadJSON(ctx, testSessionKey, &raw))
	assert.Equal(t, session.StatusPendingReview, raw["status"])
	assert.Equal(t, "analysis/icd-f84/1718000000/behaviors_final.json", raw["analysisJsonPath"])
	assert.Equal(t, "analysis/icd-f84/1718000000/video_with_behaviors.mp4", raw["processedVideoPath"])
	assert.Equal(t, "hand-flapping", raw["dominantCategory"])
	assert.Equal(t, testObject, raw["linkedSourceVideoPath"])
	assert.Equal(t, "1 behavior span(s) across 1 label(s); dominant: hand-flapping", raw["behaviorSummary"])
	assert.NotEmpty(t, raw["pendingReviewAt"])
	assert.Nil(t, raw["processingError"])
	assert.Equal(t, "kept by the merge write", raw["reviewNotes"])

	worker, ok := raw["worker"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "test-model", worker["model"])

	// Work dir is removed once the job finishes.
	require.Len(t, pipe.workDirs, 1)
	_, statErr := os.Stat(pipe.workDirs[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestProcess_AlreadyProcessedIsIgnored(t *testing.T) {
	store := seedStore(t, map[string]any{
		"storagePath":        testObject,
		"status":             session.StatusPendingReview,
		"analysisJsonPath":   "analysis/icd-f84/1718000000/behaviors_final.json",
		"processedVideoPath": "analysis/icd-f84/1718000000/video_with_behaviors.mp4",
	})
	pipe := succeedingPipeline()
	p := newProcessor(t, store, pipe)

	out, err := p.Process(context.Background(), finalizeEvent(testObject))
	require.NoError(t, err)
	assert.True(t, out.Ignored)
	assert.Equal(t, "already_processed", out.Reason)
	assert.Zero(t, pipe.calls)
}

func TestProcess_MissingSessionFails(t *testing.T) {
	store := blobstore.NewMemStore()
	store.Put(testObject, []byte("video-bytes"))
	pipe := succeedingPipeline()
	p := newProcessor(t, store, pipe)

	_, err := p.Process(context.Background(), finalizeEvent(testObject))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session record")
	assert.Zero(t, pipe.calls)
}

func TestProcess_ResolvesSessionByStoragePathWhenEpochMissing(t *testing.T) {
	ctx := context.Background()
	object := "media/child-videos/icd-f84/clip.mp4"
	store := blobstore.NewMemStore()
	store.Put(object, []byte("video-bytes"))
	require.NoError(t, store.WriteJSON(ctx, testSessionKey, map[string]any{
		"storagePath": object,
		"status":      session.StatusAwaiting,
	}))
	p := newProcessor(t, store, succeedingPipeline())

	out, err := p.Process(ctx, finalizeEvent(object))
	require.NoError(t, err)
	assert.False(t, out.Ignored)
	assert.Equal(t, testSessionKey, out.SessionKey)

	var raw map[string]any
	require.NoError(t, store.ReadJSON(ctx, testSessionKey, &raw))
	assert.Equal(t, session.StatusPendingReview, raw["status"])
}

func TestProcess_PipelineFailureMarksSessionFailed(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, map[string]any{
		"storagePath": testObject,
		"status":      session.StatusAwaiting,
	})
	pipe := &fakePipeline{
		run: func(context.Context, string, string) (*analyzer.Result, error) {
			return nil, errors.New("subtitle burn crashed")
		},
	}
	p := newProcessor(t, store, pipe)

	_, err := p.Process(ctx, finalizeEvent(testObject))
	require.Error(t, err)

	var raw map[string]any
	require.NoError(t, store.ReadJSON(ctx, testSessionKey, &raw))
	assert.Equal(t, session.StatusFailed, raw["status"])
	assert.Contains(t, raw["processingError"], "subtitle burn crashed")
	assert.NotEmpty(t, raw["failedAt"])

	require.Len(t, pipe.workDirs, 1)
	_, statErr := os.Stat(pipe.workDirs[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestProcess_MissingSourceObjectMarksSessionFailed(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemStore()
	require.NoError(t, store.WriteJSON(ctx, testSessionKey, map[string]any{
		"storagePath": testObject,
		"status":      session.StatusAwaiting,
	}))
	p := newProcessor(t, store, succeedingPipeline())

	_, err := p.Process(ctx, finalizeEvent(testObject))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download source video")

	var raw map[string]any
	require.NoError(t, store.ReadJSON(ctx, testSessionKey, &raw))
	assert.Equal(t, session.StatusFailed, raw["status"])
}
