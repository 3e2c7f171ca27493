package util

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMentions(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"nice one @Alice!", []string{"alice"}},
		{"@bob and @bob again, cc @carol_2.", []string{"bob", "carol_2"}},
		{"mail me at dan@example.com", nil},
		{"@ab is too short", nil},
		{"(@dave) loved it", []string{"dave"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractMentions(tt.in), tt.in)
	}
}

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{"house", "deep", "lofi"}, ParseTags(" House, #deep,,house, LoFi ", 10))
	assert.Equal(t, []string{"a", "b"}, ParseTags("a,b,c", 2))
	assert.Equal(t, []string{}, ParseTags("", 5))
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, 5, ParseInt("5", 1))
	assert.Equal(t, 1, ParseInt("x", 1))
	assert.True(t, ParseBool("true", false))
	assert.False(t, ParseBool("nope", false))
}

func multipartFile(t *testing.T, name string, data []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["audio"][0]
}

func TestSaveUploadedFile(t *testing.T) {
	dir := t.TempDir()
	fh := multipartFile(t, "Song.MP3", []byte("0123456789"))

	path, n, err := SaveUploadedFile(fh, dir, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, ".mp3", path[len(path)-4:])
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	_, _, err = SaveUploadedFile(fh, dir, 9)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
