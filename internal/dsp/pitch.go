// SPDX-License-Identifier: MIT
package dsp

import (
	"math"

	"keytone/internal/wave"
)

// Shift transposes w by the given number of semitones: stretch by the
// inverse frequency ratio, drop the first window of output (windowing
// warm-up), then resample by the ratio. Duration lands within one window
// of the input; zero semitones preserves the frame count exactly.
//
// Callers bound semitones to the layout's supported span; extreme values
// still compute but degrade audibly.
func (s *Shifter) Shift(w *wave.Waveform, semitones int) (*wave.Waveform, error) {
	ratio := math.Pow(2, float64(semitones)/12)

	channels := make([][]float64, w.Channels())
	for c := range channels {
		stretched := s.stretchChannel(w.Channel(c), 1/ratio)
		channels[c] = resampleChannel(stretched[s.windowSize:], ratio)
	}
	return wave.New(w.Rate(), channels)
}
