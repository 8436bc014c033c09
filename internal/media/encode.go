package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Encoding profile shared by every re-encode: fast H.264 with web-friendly
// moov placement. The analysis input and the final output both use it.
const (
	videoCodec   = "libx264"
	videoPreset  = "veryfast"
	videoCRF     = "23"
	audioCodec   = "aac"
	audioBitrate = "128k"
)

func runFFmpeg(ctx context.Context, args []string) error {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	log.Debug().Strs("args", args).Msg("Running ffmpeg")

	start := time.Now()
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(output))
	}

	log.Debug().Dur("duration", elapsed).Msg("ffmpeg finished")
	return nil
}

// encodeArgs builds the common re-encode argument list around a video filter.
func encodeArgs(input, output, vf string) []string {
	return []string{
		"-i", input,
		"-vf", vf,
		"-c:v", videoCodec,
		"-preset", videoPreset,
		"-crf", videoCRF,
		"-c:a", audioCodec,
		"-b:a", audioBitrate,
		"-movflags", "+faststart",
		"-y", output,
	}
}

// overlayFilter draws the running wall-clock at (20,20) so the model sees
// time hints within the frames it samples.
const overlayFilter = `drawtext=text='%{pts\:hms}':x=20:y=20:fontsize=36:fontcolor=white:box=1:boxcolor=black@0.5:boxborderw=8`

// BurnTimestampOverlay re-encodes input into output with a readable HH:MM:SS
// overlay. The result is the analysis input; callers fall back to the
// original video if the overlay fails.
func BurnTimestampOverlay(ctx context.Context, input, output string) error {
	log.Info().Str("input", input).Str("output", output).Msg("Burning timestamp overlay")
	return runFFmpeg(ctx, encodeArgs(input, output, overlayFilter))
}

// BurnSubtitles re-encodes input into output with subtitles drawn from the
// given SRT file. This produces the final artifact video; failure here is
// fatal to the job.
func BurnSubtitles(ctx context.Context, input, output, srtPath string) error {
	log.Info().Str("input", input).Str("output", output).Str("srt", srtPath).Msg("Burning subtitles")
	vf := "subtitles=" + escapeFilterPath(srtPath)
	return runFFmpeg(ctx, encodeArgs(input, output, vf))
}

// escapeFilterPath prepares a file path for embedding in an ffmpeg filter
// string. The filter parser treats ':' as an option separator and '\' as an
// escape, so both must be neutralized (Windows drive letters included).
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `/`)
	p = strings.ReplaceAll(p, `:`, `\:`)
	return "'" + p + "'"
}
