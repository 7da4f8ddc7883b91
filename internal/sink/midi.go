package sink

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"keytone/internal/log"
	"keytone/internal/wave"
)

// MidiSink plays tones as note events on a MIDI output port instead of
// rendering audio. The waveform is ignored; only the semitone offset
// matters, applied to the configured base note. Fade durations do not
// apply, the receiving synth shapes its own envelopes.
type MidiSink struct {
	drv      *rtmididrv.Driver
	out      drivers.Out
	send     func(midi.Message) error
	base     int
	channel  uint8
	velocity uint8

	mu     sync.Mutex
	sounds []*midiSound
}

var _ Sink = (*MidiSink)(nil)

// NewMidi opens a MIDI output port. An empty port name picks the first
// available output; otherwise the first port whose name contains the
// given string (case-insensitive) is used.
func NewMidi(portName string, baseNote int, channel, velocity uint8) (*MidiSink, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("failed to open MIDI driver: %w", err)
	}

	out, err := findOutPort(drv, portName)
	if err != nil {
		_ = drv.Close()
		return nil, err
	}
	if err := out.Open(); err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("failed to open MIDI port %q: %w", out.String(), err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		_ = out.Close()
		_ = drv.Close()
		return nil, fmt.Errorf("failed to attach MIDI sender: %w", err)
	}

	log.Infof("sink: MIDI output connected: %s", out.String())
	return &MidiSink{
		drv:      drv,
		out:      out,
		send:     send,
		base:     baseNote,
		channel:  channel,
		velocity: velocity,
	}, nil
}

func findOutPort(drv *rtmididrv.Driver, name string) (drivers.Out, error) {
	outs, err := drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("failed to list MIDI outputs: %w", err)
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("MIDI: %w", ErrNoDevice)
	}
	if name == "" {
		return outs[0], nil
	}
	for _, out := range outs {
		if containsCI(out.String(), name) {
			return out, nil
		}
	}
	return nil, fmt.Errorf("MIDI output %q not found: %w", name, ErrNoDevice)
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (s *MidiSink) Prepare(_ *wave.Waveform, semitone int) (Sound, error) {
	snd := &midiSound{sink: s, note: noteForOffset(s.base, semitone)}
	s.mu.Lock()
	s.sounds = append(s.sounds, snd)
	s.mu.Unlock()
	return snd, nil
}

// Close silences anything still sounding, then tears down the port and
// driver.
func (s *MidiSink) Close() error {
	s.mu.Lock()
	for _, snd := range s.sounds {
		snd.silence()
	}
	s.sounds = nil
	s.mu.Unlock()

	var first error
	if err := s.out.Close(); err != nil {
		first = err
	}
	if err := s.drv.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// noteForOffset maps a semitone offset onto the MIDI note range.
func noteForOffset(base, semitone int) uint8 {
	n := base + semitone
	if n < 0 {
		n = 0
	}
	if n > 127 {
		n = 127
	}
	return uint8(n)
}

type midiSound struct {
	sink *MidiSink
	note uint8

	mu sync.Mutex
	on bool
}

func (s *midiSound) Play(time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sink.send(midi.NoteOn(s.sink.channel, s.note, s.sink.velocity)); err != nil {
		log.Warnf("sink: MIDI note on %d: %v", s.note, err)
		return
	}
	s.on = true
}

func (s *midiSound) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silenceLocked()
}

func (s *midiSound) Release(time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silenceLocked()
}

func (s *midiSound) silence() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silenceLocked()
}

func (s *midiSound) silenceLocked() {
	if !s.on {
		return
	}
	if err := s.sink.send(midi.NoteOff(s.sink.channel, s.note)); err != nil {
		log.Warnf("sink: MIDI note off %d: %v", s.note, err)
	}
	s.on = false
}

// MIDIOutputs lists the names of all available MIDI output ports.
func MIDIOutputs() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("failed to open MIDI driver: %w", err)
	}
	defer drv.Close()

	outs, err := drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("failed to list MIDI outputs: %w", err)
	}
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.String())
	}
	return names, nil
}
