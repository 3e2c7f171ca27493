package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned by GetObject for a missing key
var ErrObjectNotFound = errors.New("storage: object not found")

// Store is an object store holding originals, transcodes, waveforms and avatars
type Store interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// URL is the public (CDN) URL of key
	URL(key string) string
	// SignedURL is a time-limited URL for private objects such as audio streams
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	CheckAccess(ctx context.Context) error
}

// OriginalKey is originals/{yyyy}/{mm}/{user}/{uuid}{ext}
func OriginalKey(now time.Time, userID, filename string) string {
	return fmt.Sprintf("originals/%d/%02d/%s/%s%s",
		now.Year(), now.Month(), userID, uuid.New().String(), strings.ToLower(filepath.Ext(filename)))
}

// AudioKey is audio/{yyyy}/{mm}/{user}/{track}.mp3
func AudioKey(now time.Time, userID, trackID string) string {
	return fmt.Sprintf("audio/%d/%02d/%s/%s.mp3", now.Year(), now.Month(), userID, trackID)
}

// WaveformKey is waveforms/{track}.png or waveforms/{track}.json
func WaveformKey(trackID, ext string) string {
	return fmt.Sprintf("waveforms/%s.%s", trackID, strings.TrimPrefix(ext, "."))
}

// AvatarKey is avatars/{user}/{uuid}{ext}
func AvatarKey(userID, filename string) string {
	return fmt.Sprintf("avatars/%s/%s%s", userID, uuid.New().String(), strings.ToLower(filepath.Ext(filename)))
}

// ContentType maps a file extension to its MIME type
func ContentType(extension string) string {
	switch strings.ToLower(extension) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".aif", ".aiff":
		return "audio/aiff"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// cacheControl picks a Cache-Control header by object family
func cacheControl(key string) string {
	switch {
	case strings.HasPrefix(key, "originals/"):
		return "private, no-store"
	case strings.HasPrefix(key, "waveforms/"), strings.HasPrefix(key, "avatars/"):
		return "max-age=86400"
	default:
		return "max-age=3600"
	}
}
