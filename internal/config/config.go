// Package config holds the worker configuration, loaded from environment
// variables with the WORKER_ prefix. Every tunable of the analysis pipeline
// lives here so that a single struct can be threaded through the processor,
// analyzer, and policy layers.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full worker configuration.
type Config struct {
	// HTTP surface.
	Port     int    `envconfig:"PORT" default:"8080"`
	APIToken string `envconfig:"API_TOKEN" default:""`

	// Storage layout.
	Bucket         string `envconfig:"BUCKET" default:""`
	VideosPrefix   string `envconfig:"VIDEOS_PREFIX" default:"media/child-videos"`
	SessionsPrefix string `envconfig:"SESSIONS_PREFIX" default:"sessions"`
	AnalysisPrefix string `envconfig:"ANALYSIS_PREFIX" default:"analysis"`

	// Inference.
	Model                  string        `envconfig:"MODEL" default:"gemini-2.5-flash"`
	Temperature            float32       `envconfig:"TEMPERATURE" default:"0.4"`
	Concurrency            int           `envconfig:"CONCURRENCY" default:"5"`
	MaxClipFPS             float64       `envconfig:"MAX_CLIP_FPS" default:"24"`
	CallTimeout            time.Duration `envconfig:"CALL_TIMEOUT" default:"120s"`
	FileReadyTimeout       time.Duration `envconfig:"FILE_READY_TIMEOUT" default:"5m"`
	GlobalRateLimitPause   time.Duration `envconfig:"GLOBAL_RATE_LIMIT_PAUSE" default:"5m"`
	MaxTransientRetries    int           `envconfig:"MAX_TRANSIENT_RETRIES" default:"3"`
	TransientRetryInterval time.Duration `envconfig:"TRANSIENT_RETRY_INTERVAL" default:"60s"`

	// Segmentation and span post-processing.
	ChunkSeconds             float64 `envconfig:"CHUNK_SECONDS" default:"30"`
	ChunkOverlapSeconds      float64 `envconfig:"CHUNK_OVERLAP_SECONDS" default:"4"`
	MergeGapSeconds          float64 `envconfig:"MERGE_GAP_SECONDS" default:"2.5"`
	ValidationMarginSeconds  float64 `envconfig:"VALIDATION_MARGIN_SECONDS" default:"3"`
	MinActionDurationSeconds float64 `envconfig:"MIN_ACTION_DURATION_SECONDS" default:"0.8"`
}

// Load reads the configuration from WORKER_-prefixed environment variables.
func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("WORKER", &cfg)
	return &cfg, err
}
