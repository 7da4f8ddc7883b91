// Package wave defines the in-memory waveform model and its WAV codec.
// Samples are float64 in [-1, 1], stored per channel; interleaving only
// happens at codec and playback boundaries.
package wave

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrChannelCount rejects waveforms that are not mono or stereo.
	ErrChannelCount = errors.New("channel count must be 1 or 2")
	// ErrChannelLength rejects stereo data with unequal channel lengths.
	ErrChannelLength = errors.New("stereo channels must be equal length")
	// ErrSampleRate flags a rate that disagrees with an expected value.
	ErrSampleRate = errors.New("sample rate mismatch")
	// ErrFormat flags WAV content this codec does not handle.
	ErrFormat = errors.New("unsupported WAV format")
)

// Waveform is an immutable-rate, 1- or 2-channel sample buffer.
// Channel slices are views: callers that mutate them own the waveform.
type Waveform struct {
	rate int
	data [][]float64
}

// New builds a waveform from per-channel sample slices.
func New(rate int, channels [][]float64) (*Waveform, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", rate)
	}
	if len(channels) < 1 || len(channels) > 2 {
		return nil, fmt.Errorf("%w: got %d", ErrChannelCount, len(channels))
	}
	if len(channels) == 2 && len(channels[0]) != len(channels[1]) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrChannelLength, len(channels[0]), len(channels[1]))
	}
	return &Waveform{rate: rate, data: channels}, nil
}

// NewMono builds a single-channel waveform. Panics on a non-positive
// rate; that is a programmer error, not input data.
func NewMono(rate int, samples []float64) *Waveform {
	w, err := New(rate, [][]float64{samples})
	if err != nil {
		panic(err)
	}
	return w
}

// NewStereo builds a two-channel waveform from equal-length slices.
func NewStereo(rate int, left, right []float64) (*Waveform, error) {
	return New(rate, [][]float64{left, right})
}

// Rate returns the sample rate in Hz.
func (w *Waveform) Rate() int { return w.rate }

// Channels returns the channel count (1 or 2).
func (w *Waveform) Channels() int { return len(w.data) }

// Frames returns the per-channel sample count.
func (w *Waveform) Frames() int {
	if len(w.data) == 0 {
		return 0
	}
	return len(w.data[0])
}

// Channel returns the sample slice for channel i (a view, not a copy).
func (w *Waveform) Channel(i int) []float64 { return w.data[i] }

// Duration returns the playback length at the waveform's rate.
func (w *Waveform) Duration() time.Duration {
	return time.Duration(w.Frames()) * time.Second / time.Duration(w.rate)
}

// Peak returns the largest absolute sample value across all channels.
func (w *Waveform) Peak() float64 {
	peak := 0.0
	for _, ch := range w.data {
		for _, s := range ch {
			if a := math.Abs(s); a > peak {
				peak = a
			}
		}
	}
	return peak
}

// Interleaved returns frame-major samples (L R L R ... for stereo).
// Mono returns a copy of the single channel.
func (w *Waveform) Interleaved() []float64 {
	frames, channels := w.Frames(), w.Channels()
	out := make([]float64, frames*channels)
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			out[f*channels+c] = w.data[c][f]
		}
	}
	return out
}
