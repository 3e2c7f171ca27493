package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentType(t *testing.T) {
	tests := []struct {
		extension string
		expected  string
	}{
		{".mp3", "audio/mpeg"},
		{".MP3", "audio/mpeg"},
		{".wav", "audio/wav"},
		{".aiff", "audio/aiff"},
		{".aif", "audio/aiff"},
		{".flac", "audio/flac"},
		{".ogg", "audio/ogg"},
		{".m4a", "audio/mp4"},
		{".png", "image/png"},
		{".JPEG", "image/jpeg"},
		{".webp", "image/webp"},
		{".unknown", "application/octet-stream"},
		{"", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.extension, func(t *testing.T) {
			assert.Equal(t, tt.expected, ContentType(tt.extension))
		})
	}
}

func TestKeyLayouts(t *testing.T) {
	now := time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC)

	orig := OriginalKey(now, "user1", "My Song.WAV")
	assert.True(t, strings.HasPrefix(orig, "originals/2024/03/user1/"), orig)
	assert.True(t, strings.HasSuffix(orig, ".wav"), orig)

	assert.Equal(t, "audio/2024/03/user1/track1.mp3", AudioKey(now, "user1", "track1"))
	assert.Equal(t, "waveforms/track1.png", WaveformKey("track1", "png"))
	assert.Equal(t, "waveforms/track1.json", WaveformKey("track1", ".json"))

	avatar := AvatarKey("user1", "me.PNG")
	assert.True(t, strings.HasPrefix(avatar, "avatars/user1/"))
	assert.True(t, strings.HasSuffix(avatar, ".png"))
}

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8787")
	require.NoError(t, err)
	require.NoError(t, store.CheckAccess(ctx))

	key := "audio/2024/03/u/t.mp3"
	require.NoError(t, store.PutObject(ctx, key, strings.NewReader("mp3 bytes"), "audio/mpeg", nil))

	rc, err := store.GetObject(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "mp3 bytes", string(data))

	assert.Equal(t, "http://localhost:8787/media/"+key, store.URL(key))
	signed, err := store.SignedURL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, signed, "expires=")

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.GetObject(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// deleting twice is fine
	require.NoError(t, store.Delete(ctx, key))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "")
	require.NoError(t, err)

	p, err := store.path("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, root))
}
