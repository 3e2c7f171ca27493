// Package waveform turns decoded PCM into peak arrays and preview images.
package waveform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DefaultBars is the number of peaks stored per track
const DefaultBars = 200

// Peaks decodes a WAV stream and returns bars normalised peak values in 0..1.
// The loudest bar is 1 unless the input is silent.
func Peaks(r io.ReadSeeker, bars int) ([]float64, error) {
	if bars <= 0 {
		bars = DefaultBars
	}

	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read audio buffer: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("empty audio buffer")
	}

	return peaksFromBuffer(buf, bars), nil
}

func peaksFromBuffer(buf *audio.IntBuffer, bars int) []float64 {
	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 1 {
		channels = buf.Format.NumChannels
	}
	frames := len(buf.Data) / channels

	peaks := make([]float64, bars)
	if frames == 0 {
		return peaks
	}

	var maxPeak float64
	for b := 0; b < bars; b++ {
		start := b * frames / bars
		end := (b + 1) * frames / bars
		if end <= start {
			end = start + 1
		}
		if end > frames {
			end = frames
		}

		var peak float64
		for i := start * channels; i < end*channels; i++ {
			if v := math.Abs(float64(buf.Data[i])); v > peak {
				peak = v
			}
		}
		peaks[b] = peak
		if peak > maxPeak {
			maxPeak = peak
		}
	}

	if maxPeak > 0 {
		for i := range peaks {
			peaks[i] = math.Round(peaks[i]/maxPeak*1000) / 1000
		}
	}
	return peaks
}

// Style controls PNG rendering
type Style struct {
	Width      int
	Height     int
	Gap        int
	Background color.Color
	Foreground color.Color
}

func DefaultStyle() Style {
	return Style{
		Width:      1200,
		Height:     200,
		Gap:        2,
		Background: color.RGBA{24, 24, 28, 255},
		Foreground: color.RGBA{255, 122, 69, 255},
	}
}

// RenderPNG draws peaks as mirrored bars around the horizontal midline
func RenderPNG(peaks []float64, style Style) ([]byte, error) {
	if style.Width <= 0 || style.Height <= 0 {
		return nil, fmt.Errorf("invalid waveform dimensions %dx%d", style.Width, style.Height)
	}

	img := image.NewRGBA(image.Rect(0, 0, style.Width, style.Height))
	for y := 0; y < style.Height; y++ {
		for x := 0; x < style.Width; x++ {
			img.Set(x, y, style.Background)
		}
	}

	if len(peaks) > 0 {
		slot := float64(style.Width) / float64(len(peaks))
		barWidth := int(slot) - style.Gap
		if barWidth < 1 {
			barWidth = 1
		}
		center := style.Height / 2

		for i, p := range peaks {
			x0 := int(float64(i) * slot)
			half := int(p * float64(center) * 0.95)
			if half < 1 {
				half = 1
			}
			for x := x0; x < x0+barWidth && x < style.Width; x++ {
				for y := center - half; y <= center+half; y++ {
					if y >= 0 && y < style.Height {
						img.Set(x, y, style.Foreground)
					}
				}
			}
		}
	}

	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return out.Bytes(), nil
}

// Document is the JSON peaks file published alongside the PNG
type Document struct {
	Version         int       `json:"version"`
	Bars            int       `json:"bars"`
	DurationSeconds float64   `json:"duration_seconds"`
	Peaks           []float64 `json:"peaks"`
}

func MarshalDocument(peaks []float64, duration float64) ([]byte, error) {
	return json.Marshal(Document{
		Version:         1,
		Bars:            len(peaks),
		DurationSeconds: duration,
		Peaks:           peaks,
	})
}
