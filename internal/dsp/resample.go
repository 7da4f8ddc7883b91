package dsp

import (
	"fmt"
	"math"

	"keytone/internal/wave"
)

// Resample changes playback speed by factor using nearest-neighbor
// selection, no interpolation. factor > 1 shortens the waveform (raising
// pitch at a fixed playback rate), factor < 1 lengthens it. Stereo
// channels use the same index selection and stay equal length.
func Resample(w *wave.Waveform, factor float64) (*wave.Waveform, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("resample factor must be positive, got %v", factor)
	}
	channels := make([][]float64, w.Channels())
	for c := range channels {
		channels[c] = resampleChannel(w.Channel(c), factor)
	}
	return wave.New(w.Rate(), channels)
}

// resampleChannel gathers in[round(k·factor)] for k = 0, 1, 2, ... while
// k·factor stays below len(in). Positions that round past the last index
// are dropped.
func resampleChannel(in []float64, factor float64) []float64 {
	out := make([]float64, 0, int(float64(len(in))/factor)+1)
	for k := 0; ; k++ {
		pos := float64(k) * factor
		if pos >= float64(len(in)) {
			break
		}
		idx := int(math.Round(pos))
		if idx >= len(in) {
			continue
		}
		out = append(out, in[idx])
	}
	return out
}
