package sink

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"keytone/internal/log"
	"keytone/internal/wave"
)

// OtoSink plays tones through the system mixer via oto. Each prepared
// sound owns an oto player fed by an envelope-shaped float32 stream, so
// any number of keys can sound at once without our own mixing code.
type OtoSink struct {
	ctx      *oto.Context
	rate     int
	channels int

	mu     sync.Mutex
	sounds []*otoSound
}

var _ Sink = (*OtoSink)(nil)

// NewOto opens an audio context for the given stream shape and blocks
// until the device is ready.
func NewOto(rate, channels int) (*OtoSink, error) {
	op := &oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio context: %w", err)
	}
	<-ready

	log.Debugf("sink: oto context ready (%d Hz, %d ch)", rate, channels)
	return &OtoSink{ctx: ctx, rate: rate, channels: channels}, nil
}

func (s *OtoSink) Prepare(w *wave.Waveform, semitone int) (Sound, error) {
	if w.Rate() != s.rate {
		return nil, fmt.Errorf("tone %+d: sample rate %d does not match context rate %d",
			semitone, w.Rate(), s.rate)
	}
	if w.Channels() != s.channels {
		return nil, fmt.Errorf("tone %+d: channel count %d does not match context %d",
			semitone, w.Channels(), s.channels)
	}

	src := &envelopeSource{
		data:     w.Interleaved(),
		channels: s.channels,
		env:      envelope{rate: s.rate},
	}
	snd := &otoSound{src: src, player: s.ctx.NewPlayer(src)}

	s.mu.Lock()
	s.sounds = append(s.sounds, snd)
	s.mu.Unlock()
	return snd, nil
}

// Close releases every player. The oto context itself has no close; it
// lives until process exit.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, snd := range s.sounds {
		if err := snd.player.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.sounds = nil
	return first
}

type otoSound struct {
	src    *envelopeSource
	player *oto.Player
}

func (s *otoSound) Play(fadeIn time.Duration) {
	s.src.trigger(fadeIn)
	// Rewind through the player so its buffered tail is dropped too.
	if _, err := s.player.Seek(0, io.SeekStart); err != nil {
		log.Warnf("sink: rewind failed: %v", err)
	}
	s.player.Play()
}

func (s *otoSound) Stop() {
	s.player.Pause()
	s.src.cut()
}

func (s *otoSound) Release(fadeOut time.Duration) {
	s.src.release(fadeOut)
}

// envelopeSource streams a fixed interleaved waveform as little-endian
// float32 frames scaled by the envelope. It reports EOF once the data
// runs out or the envelope has fully released, which lets the player
// drain and pause itself.
type envelopeSource struct {
	mu       sync.Mutex
	data     []float64 // interleaved
	channels int
	pos      int // frame index
	env      envelope
}

const bytesPerSample = 4

func (s *envelopeSource) trigger(fade time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env.rampTo(1, fade)
}

func (s *envelopeSource) release(fade time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env.rampTo(0, fade)
}

func (s *envelopeSource) cut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env.cut()
}

func (s *envelopeSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frameBytes := bytesPerSample * s.channels
	frames := len(p) / frameBytes
	total := len(s.data) / s.channels

	n := 0
	for f := 0; f < frames; f++ {
		if s.pos >= total || s.env.idle() {
			break
		}
		g := s.env.next()
		for c := 0; c < s.channels; c++ {
			v := float32(s.data[s.pos*s.channels+c] * g)
			binary.LittleEndian.PutUint32(p[n:], math.Float32bits(v))
			n += bytesPerSample
		}
		s.pos++
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (s *envelopeSource) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frameBytes := int64(bytesPerSample * s.channels)
	size := int64(len(s.data)/s.channels) * frameBytes

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.pos)*frameBytes + offset
	case io.SeekEnd:
		abs = size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative seek position %d", abs)
	}
	s.pos = int(abs / frameBytes)
	return abs, nil
}
