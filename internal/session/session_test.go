package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/childlens/behavior-worker/internal/blobstore"
)

var testPaths = Paths{
	VideosPrefix:   "media/child-videos",
	SessionsPrefix: "sessions",
	AnalysisPrefix: "analysis",
}

func TestParseObjectName(t *testing.T) {
	tests := []struct {
		name      string
		object    string
		wantICD   string
		wantEpoch string
		wantErr   bool
	}{
		{"canonical", "media/child-videos/icd-f84/1718000000-session.mp4", "icd-f84", "1718000000", false},
		{"no epoch", "media/child-videos/icd-f84/session.mp4", "icd-f84", "", false},
		{"nested filename", "media/child-videos/icd-f84/sub/1234-x.mp4", "icd-f84", "1234", false},
		{"outside prefix", "other/icd-f84/1234-x.mp4", "", "", true},
		{"missing filename", "media/child-videos/icd-f84", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			icd, epoch, err := testPaths.ParseObjectName(tt.object)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantICD, icd)
			assert.Equal(t, tt.wantEpoch, epoch)
		})
	}
}

func TestPathConventions(t *testing.T) {
	assert.Equal(t, "sessions/icd-f84/1718000000.json", testPaths.SessionKey("icd-f84", "1718000000"))
	assert.Equal(t, "sessions/icd-f84/", testPaths.SessionDir("icd-f84"))
	assert.Equal(t,
		"analysis/icd-f84/1718000000/behaviors_final.json",
		testPaths.ArtifactKey("icd-f84", "1718000000", ArtifactFinalJSON))
}

func TestAlreadyProcessed(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want bool
	}{
		{"pending review with artifacts", Record{Status: StatusPendingReview, AnalysisJSONPath: "a", ProcessedVideoPath: "v"}, true},
		{"reviewed with artifacts", Record{Status: StatusReviewed, AnalysisJSONPath: "a", ProcessedVideoPath: "v"}, true},
		{"pending review missing artifact", Record{Status: StatusPendingReview, AnalysisJSONPath: "a"}, false},
		{"processing", Record{Status: StatusProcessing, AnalysisJSONPath: "a", ProcessedVideoPath: "v"}, false},
		{"awaiting", Record{Status: StatusAwaiting}, false},
		{"failed", Record{Status: StatusFailed, AnalysisJSONPath: "a", ProcessedVideoPath: "v"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.AlreadyProcessed())
		})
	}
}

func TestUpdate_PreservesOrthogonalFields(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemStore()
	key := testPaths.SessionKey("icd-f84", "1718000000")

	require.NoError(t, store.WriteJSON(ctx, key, map[string]any{
		"storagePath": "media/child-videos/icd-f84/1718000000-a.mp4",
		"status":      StatusProcessing,
		"reviewNotes": "therapist annotation written concurrently",
	}))

	err := Update(ctx, store, key, func(m map[string]any) {
		m["status"] = StatusPendingReview
		m["behaviorSummary"] = "2 spans"
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, store.ReadJSON(ctx, key, &raw))
	assert.Equal(t, StatusPendingReview, raw["status"])
	assert.Equal(t, "therapist annotation written concurrently", raw["reviewNotes"])
	assert.Equal(t, "2 spans", raw["behaviorSummary"])
}

func TestUpdate_MissingSession(t *testing.T) {
	store := blobstore.NewMemStore()
	err := Update(context.Background(), store, "sessions/icd-x/1.json", func(map[string]any) {})
	assert.ErrorIs(t, err, blobstore.ErrNotExist)
}
