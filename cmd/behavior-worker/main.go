// behavior-worker consumes storage finalize notifications for uploaded
// session videos, runs the Gemini behavior-analysis pipeline, and writes the
// resulting artifacts and session-record updates back to the bucket.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/childlens/behavior-worker/internal/analyzer"
	"github.com/childlens/behavior-worker/internal/blobstore"
	"github.com/childlens/behavior-worker/internal/config"
	"github.com/childlens/behavior-worker/internal/gemini"
	"github.com/childlens/behavior-worker/internal/logging"
	"github.com/childlens/behavior-worker/internal/media"
	"github.com/childlens/behavior-worker/internal/policy"
	"github.com/childlens/behavior-worker/internal/processor"
	"github.com/childlens/behavior-worker/internal/ratelimit"
	"github.com/childlens/behavior-worker/internal/server"
	"github.com/childlens/behavior-worker/internal/session"
)

var rootCmd = &cobra.Command{
	Use:          "behavior-worker",
	Short:        "Asynchronous behavior-analysis worker for uploaded session videos",
	SilenceUsage: true,
	RunE:         run,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Worker exited with error")
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	start := time.Now()
	logging.Init()
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Bucket == "" {
		return errors.New("WORKER_BUCKET must be set")
	}
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return errors.New("GEMINI_API_KEY must be set")
	}

	ffmpegOK := media.CheckFFmpegAvailable() == nil
	ffprobeOK := media.CheckFFprobeAvailable() == nil
	if !ffmpegOK || !ffprobeOK {
		return errors.New("ffmpeg and ffprobe must be available on PATH")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS configuration: %w", err)
	}
	store := blobstore.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Bucket)

	backend, err := gemini.NewClient(ctx, apiKey)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.GlobalRateLimitPause)
	caller := policy.NewCaller(limiter, cfg.CallTimeout, cfg.TransientRetryInterval, cfg.MaxTransientRetries)
	pipeline := analyzer.New(backend, caller, analyzer.OptionsFromConfig(cfg))

	proc := &processor.Processor{
		Store: store,
		Paths: session.Paths{
			VideosPrefix:   cfg.VideosPrefix,
			SessionsPrefix: cfg.SessionsPrefix,
			AnalysisPrefix: cfg.AnalysisPrefix,
		},
		Pipeline: pipeline,
	}

	srv := server.New(proc, cfg.APIToken)

	logging.NewStartupLogger("behavior-worker").
		Bucket("media", cfg.Bucket).
		Prefix("videos", cfg.VideosPrefix).
		Prefix("sessions", cfg.SessionsPrefix).
		Prefix("analysis", cfg.AnalysisPrefix).
		Feature("bearerAuth", cfg.APIToken != "").
		Feature("ffmpeg", ffmpegOK).
		Feature("ffprobe", ffprobeOK).
		Config("model", cfg.Model).
		Config("concurrency", fmt.Sprintf("%d", cfg.Concurrency)).
		Config("chunkSeconds", fmt.Sprintf("%.0f", cfg.ChunkSeconds)).
		Config("port", fmt.Sprintf("%d", cfg.Port)).
		InitDuration(time.Since(start)).
		Log()

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	// Give an in-flight job's HTTP response a chance to flush before exit.
	log.Info().Msg("Shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
