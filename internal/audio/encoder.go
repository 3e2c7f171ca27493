package audio

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Encoder is the external audio toolchain used by the transcode worker
type Encoder interface {
	// Transcode normalises loudness and writes a 128 kbps stereo MP3 to out
	Transcode(ctx context.Context, in, out string) error
	// Probe reads duration, bitrate and container format
	Probe(ctx context.Context, path string) (*ProbeResult, error)
	// DecodePCM writes a mono 8 kHz 16-bit WAV for waveform extraction
	DecodePCM(ctx context.Context, in, out string) error
	// Available reports a descriptive error when the toolchain is missing
	Available() error
}

// ProbeResult is the subset of ffprobe output the service stores
type ProbeResult struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Bitrate         int     `json:"bitrate"` // kbps
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	Format          string  `json:"format"`
}

// SupportedExtensions are the upload formats the encoder accepts
var SupportedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".aiff": true,
	".aif":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
}

// ValidateUpload checks an upload's extension and size against maxBytes
func ValidateUpload(filename string, size, maxBytes int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !SupportedExtensions[ext] {
		return &UnsupportedFormatError{Extension: ext}
	}
	if size <= 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidUpload)
	}
	if size > maxBytes {
		return &TooLargeError{Size: size, Max: maxBytes}
	}
	return nil
}
