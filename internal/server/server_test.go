package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/childlens/behavior-worker/internal/analyzer"
	"github.com/childlens/behavior-worker/internal/processor"
)

type fakeRunner struct {
	gotEvent processor.StorageEvent
	outcome  *processor.Outcome
	err      error
}

func (f *fakeRunner) Process(_ context.Context, evt processor.StorageEvent) (*processor.Outcome, error) {
	f.gotEvent = evt
	return f.outcome, f.err
}

// pushBody wraps a storage event in the push envelope wire form.
func pushBody(t *testing.T, evt processor.StorageEvent) []byte {
	t.Helper()
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"data":      base64.StdEncoding.EncodeToString(data),
			"messageId": "m-1",
		},
		"subscription": "projects/p/subscriptions/storage-finalize",
	})
	require.NoError(t, err)
	return body
}

func doRequest(h http.Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(&fakeRunner{}, "")
	rec := doRequest(s.Handler(), http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestStorageFinalize_Success(t *testing.T) {
	runner := &fakeRunner{outcome: &processor.Outcome{
		Result: &analyzer.Result{FinalCount: 2, DominantCategory: "humming"},
	}}
	s := New(runner, "")

	evt := processor.StorageEvent{
		EventType:  processor.EventTypeFinalize,
		BucketName: "childlens-media",
		ObjectName: "media/child-videos/icd-f84/1718000000-clip.mp4",
	}
	rec := doRequest(s.Handler(), http.MethodPost, "/pubsub/storage-finalize", pushBody(t, evt), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, evt, runner.gotEvent)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, float64(2), resp["behaviors"])
	assert.Equal(t, "humming", resp["dominantCategory"])
}

func TestStorageFinalize_IgnoredOutcome(t *testing.T) {
	runner := &fakeRunner{outcome: &processor.Outcome{Ignored: true, Reason: "already_processed"}}
	s := New(runner, "")

	evt := processor.StorageEvent{EventType: processor.EventTypeFinalize, ObjectName: "media/child-videos/icd-f84/1-a.mp4"}
	rec := doRequest(s.Handler(), http.MethodPost, "/pubsub/storage-finalize", pushBody(t, evt), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "already_processed", resp["ignored"])
}

func TestStorageFinalize_JobFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("download source video: gone")}
	s := New(runner, "")

	evt := processor.StorageEvent{EventType: processor.EventTypeFinalize, ObjectName: "media/child-videos/icd-f84/1-a.mp4"}
	rec := doRequest(s.Handler(), http.MethodPost, "/pubsub/storage-finalize", pushBody(t, evt), nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "processing failed", resp["message"])
	assert.Contains(t, resp["error"], "download source video")
}

func TestStorageFinalize_AttributeFallback(t *testing.T) {
	runner := &fakeRunner{outcome: &processor.Outcome{Ignored: true, Reason: "not_finalize"}}
	s := New(runner, "")

	body := []byte(fmt.Sprintf(`{
		"message": {
			"attributes": {
				"eventType": %q,
				"bucketId": "childlens-media",
				"objectId": "media/child-videos/icd-f84/1718000000-clip.mp4"
			},
			"messageId": "m-2"
		}
	}`, processor.EventTypeFinalize))
	rec := doRequest(s.Handler(), http.MethodPost, "/pubsub/storage-finalize", body, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, processor.EventTypeFinalize, runner.gotEvent.EventType)
	assert.Equal(t, "childlens-media", runner.gotEvent.BucketName)
	assert.Equal(t, "media/child-videos/icd-f84/1718000000-clip.mp4", runner.gotEvent.ObjectName)
}

func TestStorageFinalize_BadEnvelope(t *testing.T) {
	s := New(&fakeRunner{}, "")
	rec := doRequest(s.Handler(), http.MethodPost, "/pubsub/storage-finalize", []byte("not json"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorageFinalize_MissingObjectName(t *testing.T) {
	s := New(&fakeRunner{}, "")
	rec := doRequest(s.Handler(), http.MethodPost, "/pubsub/storage-finalize", []byte(`{"message":{}}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "object name"))
}

func TestBearerAuth(t *testing.T) {
	runner := &fakeRunner{outcome: &processor.Outcome{Ignored: true, Reason: "not_finalize"}}
	s := New(runner, "secret-token")
	evt := processor.StorageEvent{EventType: processor.EventTypeFinalize, ObjectName: "media/child-videos/icd-f84/1-a.mp4"}

	rec := doRequest(s.Handler(), http.MethodPost, "/pubsub/storage-finalize", pushBody(t, evt), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s.Handler(), http.MethodPost, "/pubsub/storage-finalize", pushBody(t, evt),
		map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s.Handler(), http.MethodPost, "/pubsub/storage-finalize", pushBody(t, evt),
		map[string]string{"Authorization": "Bearer secret-token"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open without a token.
	rec = doRequest(s.Handler(), http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
