// Package utils holds signal generators and spectral measurement helpers
// shared by DSP tests and benchmarks.
package utils

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// GenerateSineWave returns size samples of a unit-amplitude sine at the
// given frequency.
func GenerateSineWave(size int, sampleRate, frequency float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = math.Sin(2 * math.Pi * frequency * t)
	}
	return buffer
}

// GenerateComplexWave returns size samples of a 440Hz fundamental with two
// harmonics, peak-bounded by 1.
func GenerateComplexWave(size int, sampleRate float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = math.Sin(2*math.Pi*440*t)*0.5 +
			math.Sin(2*math.Pi*880*t)*0.3 +
			math.Sin(2*math.Pi*1320*t)*0.2
	}
	return buffer
}

// FindPeakBin returns the index of the largest magnitude in
// magnitudes[startBin:endBin], clamping the range to valid indices.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}

// DominantFrequency estimates the strongest frequency component of samples
// in Hz. The DC bin is excluded so silence-adjacent offsets do not win.
// Resolution is sampleRate/len(samples); callers should size their input
// accordingly.
func DominantFrequency(samples []float64, sampleRate float64) float64 {
	if len(samples) < 4 {
		return 0
	}
	fft := fourier.NewFFT(len(samples))
	coeffs := fft.Coefficients(nil, samples)

	magnitudes := make([]float64, len(coeffs))
	for i, c := range coeffs {
		magnitudes[i] = cmplx.Abs(c)
	}
	peak := FindPeakBin(magnitudes, 1, len(magnitudes)-1)
	return fft.Freq(peak) * sampleRate
}
