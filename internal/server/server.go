// Package server exposes the worker's HTTP surface: the storage-finalize push
// endpoint and a health probe. The push endpoint accepts the standard pub/sub
// push envelope, unwraps the storage event, and runs the job synchronously so
// the subscription's ack deadline doubles as the job watchdog.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/childlens/behavior-worker/internal/processor"
)

// JobRunner is the job execution contract, satisfied by processor.Processor.
type JobRunner interface {
	Process(ctx context.Context, evt processor.StorageEvent) (*processor.Outcome, error)
}

// Server is the worker's HTTP handler.
type Server struct {
	runner JobRunner
	router chi.Router
}

// New builds the router. When apiToken is non-empty the push endpoint requires
// a matching bearer token; the health probe is always open.
func New(runner JobRunner, apiToken string) *Server {
	s := &Server{runner: runner}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Group(func(r chi.Router) {
		if apiToken != "" {
			r.Use(bearerAuth(apiToken))
		}
		r.Post("/pubsub/storage-finalize", s.handleStorageFinalize)
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// pushEnvelope is the pub/sub push delivery wrapper. Data is base64 in the
// wire form; encoding/json decodes it into raw bytes.
type pushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// event reconstructs the storage event from the message payload, falling back
// to the notification attributes for fields the JSON body does not carry.
func (e *pushEnvelope) event() processor.StorageEvent {
	var evt processor.StorageEvent
	if len(e.Message.Data) > 0 {
		// A malformed body still leaves the attribute fallback.
		_ = json.Unmarshal(e.Message.Data, &evt)
	}

	attrs := e.Message.Attributes
	if evt.EventType == "" {
		evt.EventType = attrs["eventType"]
	}
	if evt.BucketName == "" {
		if v := attrs["bucketId"]; v != "" {
			evt.BucketName = v
		} else {
			evt.BucketName = attrs["bucket"]
		}
	}
	if evt.ObjectName == "" {
		if v := attrs["objectId"]; v != "" {
			evt.ObjectName = v
		} else {
			evt.ObjectName = attrs["name"]
		}
	}
	return evt
}

func (s *Server) handleStorageFinalize(w http.ResponseWriter, r *http.Request) {
	var env pushEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid push envelope"})
		return
	}

	evt := env.event()
	if evt.ObjectName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "push message carries no object name"})
		return
	}

	out, err := s.runner.Process(r.Context(), evt)
	if err != nil {
		log.Error().Str("object", evt.ObjectName).Err(err).Msg("Job failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"message": "processing failed",
			"error":   err.Error(),
		})
		return
	}

	resp := map[string]any{"ok": true}
	if out.Ignored {
		resp["ignored"] = out.Reason
	} else if out.Result != nil {
		resp["behaviors"] = out.Result.FinalCount
		resp["dominantCategory"] = out.Result.DominantCategory
	}
	writeJSON(w, http.StatusOK, resp)
}

// bearerAuth rejects requests lacking the configured bearer token.
func bearerAuth(token string) func(http.Handler) http.Handler {
	expect := "Bearer " + token
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != expect {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
