package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/telemetry"
	"go.uber.org/zap"
)

const (
	// loudnessFilter targets -14 LUFS integrated, -1 dBTP
	loudnessFilter = "loudnorm=I=-14:TP=-1:LRA=7"
	pcmSampleRate  = "8000"
)

// FFmpeg runs the ffmpeg and ffprobe binaries
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

var _ Encoder = (*FFmpeg)(nil)

// NewFFmpeg uses binaries found on PATH
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{ffmpegPath: "ffmpeg", ffprobePath: "ffprobe"}
}

func transcodeArgs(in, out string) []string {
	return []string{
		"-hide_banner", "-nostdin",
		"-i", in,
		"-vn",
		"-af", loudnessFilter,
		"-codec:a", "libmp3lame",
		"-b:a", "128k",
		"-ar", "44100",
		"-ac", "2",
		"-q:a", "2",
		"-map_metadata", "-1",
		"-y",
		out,
	}
}

func decodePCMArgs(in, out string) []string {
	return []string{
		"-hide_banner", "-nostdin",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", pcmSampleRate,
		"-acodec", "pcm_s16le",
		"-f", "wav",
		"-y",
		out,
	}
}

func (f *FFmpeg) run(ctx context.Context, step string, args []string) error {
	ctx, span := telemetry.TraceExternalCall(ctx, "ffmpeg", step)
	defer span.End()

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("ffmpeg %s failed: %w: %s", step, err, tail(stderr.String(), 512))
	}
	return nil
}

func (f *FFmpeg) Transcode(ctx context.Context, in, out string) error {
	return f.run(ctx, "transcode", transcodeArgs(in, out))
}

func (f *FFmpeg) DecodePCM(ctx context.Context, in, out string) error {
	return f.run(ctx, "decode_pcm", decodePCMArgs(in, out))
}

func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, span := telemetry.TraceExternalCall(ctx, "ffmpeg", "probe")
	defer span.End()

	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(stdout.Bytes())
}

type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
}

func parseProbe(data []byte) (*ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	res := &ProbeResult{Format: out.Format.FormatName}
	res.DurationSeconds, _ = strconv.ParseFloat(out.Format.Duration, 64)
	if bps, err := strconv.Atoi(out.Format.BitRate); err == nil {
		res.Bitrate = bps / 1000
	}

	for _, s := range out.Streams {
		if s.CodecType != "audio" {
			continue
		}
		res.SampleRate, _ = strconv.Atoi(s.SampleRate)
		res.Channels = s.Channels
		if res.Bitrate == 0 {
			if bps, err := strconv.Atoi(s.BitRate); err == nil {
				res.Bitrate = bps / 1000
			}
		}
		break
	}

	if res.DurationSeconds <= 0 {
		return nil, fmt.Errorf("ffprobe reported no duration")
	}
	return res, nil
}

// Available checks ffmpeg, ffprobe and the LAME encoder
func (f *FFmpeg) Available() error {
	if err := exec.Command(f.ffmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("%w: ffmpeg not found on PATH", ErrFFmpegUnavailable)
	}
	if err := exec.Command(f.ffprobePath, "-version").Run(); err != nil {
		return fmt.Errorf("%w: ffprobe not found on PATH", ErrFFmpegUnavailable)
	}

	var stdout bytes.Buffer
	cmd := exec.Command(f.ffmpegPath, "-hide_banner", "-encoders")
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		logger.Log.Warn("Could not list ffmpeg encoders", zap.Error(err))
	}
	if !strings.Contains(stdout.String(), "libmp3lame") {
		return fmt.Errorf("%w: libmp3lame encoder missing", ErrFFmpegUnavailable)
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
