package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects worker identity, configuration, storage resources,
// and feature flags, then emits a single structured zerolog event summarising
// the boot state. This makes it easy to reconstruct exactly how a worker
// instance was configured when troubleshooting from its logs.
type StartupLogger struct {
	name         string
	initDuration time.Duration

	buckets  map[string]string
	prefixes map[string]string
	features map[string]bool
	config   map[string]string
}

// NewStartupLogger creates a StartupLogger for the given service name.
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:     name,
		buckets:  make(map[string]string),
		prefixes: make(map[string]string),
		features: make(map[string]bool),
		config:   make(map[string]string),
	}
}

// Bucket registers a storage bucket used by this worker.
func (s *StartupLogger) Bucket(label, name string) *StartupLogger {
	s.buckets[label] = name
	return s
}

// Prefix registers an object-key prefix the worker reads or writes under.
func (s *StartupLogger) Prefix(label, prefix string) *StartupLogger {
	s.prefixes[label] = prefix
	return s
}

// Feature registers a boolean feature flag (e.g. "bearerAuth", "ffmpeg").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long process initialization took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// Log emits a single structured INFO log event with all collected information.
func (s *StartupLogger) Log() {
	evt := log.Info()

	evt = evt.Dict("service", zerolog.Dict().
		Str("name", s.name).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv("WORKER_LOG_LEVEL")))

	if len(s.buckets) > 0 {
		evt = evt.Dict("buckets", dictFromMap(s.buckets))
	}
	if len(s.prefixes) > 0 {
		evt = evt.Dict("prefixes", dictFromMap(s.prefixes))
	}
	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}
	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}
	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}

	evt.Msg("Worker startup complete")
}

// dictFromMap converts a map[string]string into a zerolog.Event (Dict).
func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
