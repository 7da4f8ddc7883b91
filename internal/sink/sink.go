// Package sink abstracts playback targets for prepared tones. A sink
// turns a rendered waveform into a triggerable Sound; backends exist for
// speaker output via oto, low-latency mixing via PortAudio, MIDI note
// events, and a silent null target for headless runs.
package sink

import (
	"errors"
	"fmt"
	"time"

	"keytone/internal/wave"
)

// ErrNoDevice reports that a backend found no usable output device.
var ErrNoDevice = errors.New("no output device available")

// Sound is one triggerable tone. Play restarts the sound from the
// beginning with a fade-in; Stop cuts it immediately; Release fades it
// out and lets it end. All methods are safe to call from the dispatch
// goroutine while the backend renders.
type Sound interface {
	Play(fadeIn time.Duration)
	Stop()
	Release(fadeOut time.Duration)
}

// Sink prepares waveforms for playback. Prepare is called once per tone
// during startup; the returned Sounds stay valid until Close.
type Sink interface {
	Prepare(w *wave.Waveform, semitone int) (Sound, error)
	Close() error
}

// NullSink discards everything. Used by headless rendering and tests.
type NullSink struct{}

var _ Sink = (*NullSink)(nil)

// NewNull returns a sink that prepares silent no-op sounds.
func NewNull() *NullSink { return &NullSink{} }

func (*NullSink) Prepare(*wave.Waveform, int) (Sound, error) { return nullSound{}, nil }
func (*NullSink) Close() error                               { return nil }

type nullSound struct{}

func (nullSound) Play(time.Duration)    {}
func (nullSound) Stop()                 {}
func (nullSound) Release(time.Duration) {}

// MultiSink fans every call out to several sinks, so a key press can
// drive the speakers and a MIDI port at once.
type MultiSink struct {
	sinks []Sink
}

var _ Sink = (*MultiSink)(nil)

// NewMulti combines the given sinks. Prepare and Close touch them in
// order; the first error wins but Close still visits every sink.
func NewMulti(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Prepare(w *wave.Waveform, semitone int) (Sound, error) {
	sounds := make([]Sound, 0, len(m.sinks))
	for _, s := range m.sinks {
		snd, err := s.Prepare(w, semitone)
		if err != nil {
			return nil, fmt.Errorf("prepare tone %+d: %w", semitone, err)
		}
		sounds = append(sounds, snd)
	}
	return multiSound{sounds: sounds}, nil
}

func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type multiSound struct {
	sounds []Sound
}

func (m multiSound) Play(fadeIn time.Duration) {
	for _, s := range m.sounds {
		s.Play(fadeIn)
	}
}

func (m multiSound) Stop() {
	for _, s := range m.sounds {
		s.Stop()
	}
}

func (m multiSound) Release(fadeOut time.Duration) {
	for _, s := range m.sounds {
		s.Release(fadeOut)
	}
}
