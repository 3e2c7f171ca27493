package waveform

import (
	"bytes"
	"encoding/json"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRampWAV writes a mono 16-bit WAV whose amplitude rises linearly
func writeRampWAV(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ramp.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	data := make([]int, frames)
	for i := range data {
		amp := float64(i) / float64(frames) * math.MaxInt16
		if i%2 == 1 {
			amp = -amp
		}
		data[i] = int(amp)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestPeaksFromWAV(t *testing.T) {
	path := writeRampWAV(t, 8000)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	peaks, err := Peaks(f, 50)
	require.NoError(t, err)
	require.Len(t, peaks, 50)

	assert.InDelta(t, 1.0, peaks[49], 0.001)
	assert.Less(t, peaks[0], peaks[25])
	assert.Less(t, peaks[25], peaks[49])
	for _, p := range peaks {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestPeaksInvalidInput(t *testing.T) {
	_, err := Peaks(bytes.NewReader([]byte("not a wav file at all")), 10)
	assert.Error(t, err)
}

func TestPeaksSilence(t *testing.T) {
	buf := &audio.IntBuffer{Format: &audio.Format{NumChannels: 2}, Data: make([]int, 400)}
	peaks := peaksFromBuffer(buf, 10)
	assert.Equal(t, make([]float64, 10), peaks)
}

func TestPeaksMoreBarsThanFrames(t *testing.T) {
	buf := &audio.IntBuffer{Format: &audio.Format{NumChannels: 1}, Data: []int{100, -200, 50}}
	peaks := peaksFromBuffer(buf, 6)
	require.Len(t, peaks, 6)
	assert.Contains(t, peaks, 1.0)
}

func TestRenderPNG(t *testing.T) {
	style := DefaultStyle()
	style.Width, style.Height = 100, 40

	data, err := RenderPNG([]float64{0, 0.5, 1, 0.25}, style)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 40, img.Bounds().Dy())

	_, err = RenderPNG(nil, Style{})
	assert.Error(t, err)
}

func TestMarshalDocument(t *testing.T) {
	data, err := MarshalDocument([]float64{0.1, 1}, 12.5)
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, 2, doc.Bars)
	assert.Equal(t, 12.5, doc.DurationSeconds)
}
