package wave

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
)

// WAV fmt-chunk audio format tags.
const (
	formatPCM   = 1
	formatFloat = 3
)

// Decode reads a WAV file into a Waveform. Integer PCM (8/16/24/32 bit)
// and 32-bit IEEE-float content are supported; the latter is what the
// transposition cache writes.
func Decode(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a readable WAV file", ErrFormat, path)
	}

	rate := int(d.SampleRate)
	channels := int(d.NumChans)
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: %s has %d channels", ErrChannelCount, path, channels)
	}

	var interleaved []float64
	switch d.WavAudioFormat {
	case formatPCM:
		interleaved, err = decodePCM(d)
	case formatFloat:
		interleaved, err = decodeFloat(d)
	default:
		err = fmt.Errorf("%w: audio format tag %d", ErrFormat, d.WavAudioFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return New(rate, deinterleave(interleaved, channels))
}

// Encode writes wf as a 32-bit IEEE-float WAV. The caller owns the
// writer; pair with a temp-file-then-rename when atomic visibility
// matters.
func Encode(ws io.WriteSeeker, wf *Waveform) error {
	enc := wav.NewEncoder(ws, wf.Rate(), 32, wf.Channels(), formatFloat)
	frames, channels := wf.Frames(), wf.Channels()
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			if err := enc.WriteFrame(float32(wf.Channel(c)[f])); err != nil {
				return fmt.Errorf("write frame %d: %w", f, err)
			}
		}
	}
	return enc.Close()
}

// decodePCM converts integer PCM samples to [-1, 1] floats.
func decodePCM(d *wav.Decoder) ([]float64, error) {
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(buf.Data))
	switch buf.SourceBitDepth {
	case 8:
		// 8-bit WAV samples are unsigned.
		for i, v := range buf.Data {
			out[i] = float64(v-128) / 128
		}
	case 16, 24, 32:
		scale := float64(int64(1) << (buf.SourceBitDepth - 1))
		for i, v := range buf.Data {
			out[i] = float64(v) / scale
		}
	default:
		return nil, fmt.Errorf("%w: %d-bit PCM", ErrFormat, buf.SourceBitDepth)
	}
	return out, nil
}

// decodeFloat reads 32-bit IEEE-float samples straight from the data
// chunk. The library's PCM buffer path would reinterpret the IEEE bit
// patterns as integers, so the chunk is walked directly.
func decodeFloat(d *wav.Decoder) ([]float64, error) {
	if d.BitDepth != 32 {
		return nil, fmt.Errorf("%w: %d-bit float", ErrFormat, d.BitDepth)
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, err
	}
	if d.PCMChunk == nil {
		return nil, fmt.Errorf("%w: missing data chunk", ErrFormat)
	}
	return readFloatChunk(d.PCMChunk)
}

func readFloatChunk(chunk *riff.Chunk) ([]float64, error) {
	n := chunk.Size / 4
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		var v float32
		if err := chunk.ReadLE(&v); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, err
		}
		out = append(out, float64(v))
	}
	return out, nil
}

func deinterleave(samples []float64, channels int) [][]float64 {
	frames := len(samples) / channels
	out := make([][]float64, channels)
	for c := range out {
		out[c] = make([]float64, frames)
	}
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			out[c][f] = samples[f*channels+c]
		}
	}
	return out
}
