// SPDX-License-Identifier: MIT

// Package dsp implements the offline transposition pipeline: a phase
// vocoder time stretch, a nearest-neighbor resampler, and the pitch
// shifter composing the two.
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"keytone/internal/wave"
	"keytone/pkg/bitint"
)

// Default analysis geometry. The window must be a power of two; the hop
// sets the analysis overlap (75% at the defaults).
const (
	DefaultWindowSize = 8192
	DefaultHopSize    = 2048
)

const twoPi = 2 * math.Pi

// degenerateBin bounds |s1|·|s2| below which a bin pair carries no
// phase information and its delta is treated as zero.
const degenerateBin = 1e-24

// Option configures a Shifter.
type Option func(*Shifter)

// WithWindowSize sets the analysis window length in samples.
func WithWindowSize(n int) Option {
	return func(s *Shifter) { s.windowSize = n }
}

// WithHopSize sets the analysis hop length in samples.
func WithHopSize(n int) Option {
	return func(s *Shifter) { s.hopSize = n }
}

// Shifter owns the FFT plan and scratch buffers for stretch and pitch
// operations. It reuses its workspace across calls and is not safe for
// concurrent use.
type Shifter struct {
	windowSize int
	hopSize    int

	fft    *fourier.FFT
	window []float64 // Hann coefficients

	// Workspace, sized once in NewShifter.
	frameA, frameB []float64
	specA, specB   []complex128
	rephased       []complex128
	synth          []float64
	phase          []float64
}

// NewShifter validates the analysis geometry and pre-allocates the
// workspace.
func NewShifter(opts ...Option) (*Shifter, error) {
	s := &Shifter{
		windowSize: DefaultWindowSize,
		hopSize:    DefaultHopSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	if !bitint.IsPowerOfTwo(s.windowSize) {
		return nil, fmt.Errorf("window size %d is not a power of two", s.windowSize)
	}
	if s.hopSize <= 0 || s.hopSize >= s.windowSize {
		return nil, fmt.Errorf("hop size %d must be in (0, %d)", s.hopSize, s.windowSize)
	}

	window := make([]float64, s.windowSize)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(twoPi*float64(i)/float64(s.windowSize-1)))
	}

	bins := s.windowSize/2 + 1
	s.fft = fourier.NewFFT(s.windowSize)
	s.window = window
	s.frameA = make([]float64, s.windowSize)
	s.frameB = make([]float64, s.windowSize)
	s.specA = make([]complex128, bins)
	s.specB = make([]complex128, bins)
	s.rephased = make([]complex128, bins)
	s.synth = make([]float64, s.windowSize)
	s.phase = make([]float64, bins)

	return s, nil
}

// WindowSize returns the analysis window length in samples.
func (s *Shifter) WindowSize() int { return s.windowSize }

// Stretch time-stretches w by factor without changing pitch: the output
// holds int(frames/factor)+window frames, so factor < 1 lengthens and
// factor > 1 shortens. Stereo channels are processed independently, each
// with a fresh phase accumulator. An all-zero input produces an all-zero
// output of the nominal length.
func (s *Shifter) Stretch(w *wave.Waveform, factor float64) (*wave.Waveform, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("stretch factor must be positive, got %v", factor)
	}
	channels := make([][]float64, w.Channels())
	for c := range channels {
		channels[c] = s.stretchChannel(w.Channel(c), factor)
	}
	return wave.New(w.Rate(), channels)
}

func (s *Shifter) stretchChannel(in []float64, factor float64) []float64 {
	out := make([]float64, int(float64(len(in))/factor)+s.windowSize)

	inPeak := peak(in)
	if inPeak == 0 {
		return out
	}

	for i := range s.phase {
		s.phase[i] = 0
	}

	// Analysis positions advance by hop·factor through the input; every
	// frame lands at position/factor in the output. Inputs shorter than
	// window+hop yield no frames and the zero buffer stands.
	limit := float64(len(in) - (s.windowSize + s.hopSize))
	step := float64(s.hopSize) * factor
	invWindow := 1 / float64(s.windowSize) // gonum's inverse transform is unnormalized
	for pos := 0.0; pos < limit; pos += step {
		i := int(pos)
		s.analyze(in[i:i+s.windowSize], s.frameA, s.specA)
		s.analyze(in[i+s.hopSize:i+s.hopSize+s.windowSize], s.frameB, s.specB)

		for k := range s.phase {
			s.phase[k] = wrapPhase(s.phase[k] + binPhaseDelta(s.specA[k], s.specB[k]))
			s.rephased[k] = cmplx.Rect(cmplx.Abs(s.specB[k]), s.phase[k])
		}

		s.fft.Sequence(s.synth, s.rephased)
		i2 := int(pos / factor)
		for j := 0; j < s.windowSize && i2+j < len(out); j++ {
			out[i2+j] += s.window[j] * s.synth[j] * invWindow
		}
	}

	// Overlap-add gain depends on the factor; normalize back to the
	// input's peak level.
	if outPeak := peak(out); outPeak > 0 {
		g := inPeak / outPeak
		for i := range out {
			out[i] *= g
		}
	}
	return out
}

// analyze windows src into frame and fills spec with its spectrum.
func (s *Shifter) analyze(src, frame []float64, spec []complex128) {
	for i := range frame {
		frame[i] = src[i] * s.window[i]
	}
	s.fft.Coefficients(spec, frame)
}

// binPhaseDelta returns angle(b/a) computed without the division, so a
// degenerate bin pair cannot inject NaN or Inf into the phase
// accumulator.
func binPhaseDelta(a, b complex128) float64 {
	cross := b * cmplx.Conj(a)
	if cmplx.Abs(cross) < degenerateBin {
		return 0
	}
	return math.Atan2(imag(cross), real(cross))
}

// wrapPhase reduces phi into [0, 2π).
func wrapPhase(phi float64) float64 {
	phi = math.Mod(phi, twoPi)
	if phi < 0 {
		phi += twoPi
	}
	return phi
}

func peak(samples []float64) float64 {
	p := 0.0
	for _, v := range samples {
		if a := math.Abs(v); a > p {
			p = a
		}
	}
	return p
}
