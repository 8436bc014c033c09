// Package media wraps the external ffprobe/ffmpeg tools for duration and
// frame-rate probing, timestamp overlay, and subtitle burn-in. It uses
// subprocess invocation because container probing and H.264 encoding are not
// territory for pure Go libraries; all invocations capture combined output so
// failures carry the tool's own diagnostics.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// CheckFFprobeAvailable returns nil if ffprobe is on PATH.
// Called at startup to validate probing capability.
func CheckFFprobeAvailable() error {
	path, err := exec.LookPath("ffprobe")
	if err != nil {
		return fmt.Errorf("ffprobe not found in PATH: video probing will be unavailable")
	}
	log.Debug().Str("path", path).Msg("ffprobe found")
	return nil
}

// CheckFFmpegAvailable returns nil if ffmpeg is on PATH.
func CheckFFmpegAvailable() error {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: video encoding will be unavailable")
	}
	log.Debug().Str("path", path).Msg("ffmpeg found")
	return nil
}

// ffprobeOutput is the JSON structure emitted by ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

func runFFprobe(ctx context.Context, args ...string) (*ffprobeOutput, error) {
	probePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, probePath, args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("ffprobe failed: %w\nStderr: %s", err, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &parsed, nil
}

// ProbeDuration returns the container duration of the video in seconds.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	parsed, err := runFFprobe(ctx,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		path,
	)
	if err != nil {
		return 0, err
	}

	dur, err := strconv.ParseFloat(strings.TrimSpace(parsed.Format.Duration), 64)
	if err != nil || dur <= 0 {
		return 0, fmt.Errorf("no usable duration in ffprobe output for %s", path)
	}

	log.Debug().Str("path", path).Float64("duration_sec", dur).Msg("Probed video duration")
	return dur, nil
}

// ProbeFPS returns the average frame rate of the first video stream, or 0 if
// it cannot be determined. An unknown frame rate is not an error; callers fall
// back to their configured cap.
func ProbeFPS(ctx context.Context, path string) (float64, error) {
	parsed, err := runFFprobe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-print_format", "json",
		"-show_streams",
		path,
	)
	if err != nil {
		return 0, err
	}

	for _, s := range parsed.Streams {
		if s.CodecType != "" && s.CodecType != "video" {
			continue
		}
		if fps := parseRational(s.AvgFrameRate); fps > 0 {
			return fps, nil
		}
		if fps := parseRational(s.RFrameRate); fps > 0 {
			return fps, nil
		}
	}
	return 0, nil
}

// parseRational evaluates an ffprobe frame-rate expression such as
// "30000/1001" or "25". Returns 0 for empty or degenerate values.
func parseRational(r string) float64 {
	r = strings.TrimSpace(r)
	if r == "" || r == "0/0" {
		return 0
	}
	if num, den, ok := strings.Cut(r, "/"); ok {
		n, errN := strconv.ParseFloat(num, 64)
		d, errD := strconv.ParseFloat(den, 64)
		if errN != nil || errD != nil || d == 0 {
			return 0
		}
		return n / d
	}
	v, err := strconv.ParseFloat(r, 64)
	if err != nil {
		return 0
	}
	return v
}
