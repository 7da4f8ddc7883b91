package sink

import (
	"errors"
	"strings"
	"testing"
	"time"

	"keytone/internal/wave"
)

// recordingSink captures Prepare calls and hands out recording sounds.
type recordingSink struct {
	prepared []int
	sounds   []*recordingSound
	closed   bool
	fail     error
}

type recordingSound struct {
	calls []string
}

func (s *recordingSink) Prepare(_ *wave.Waveform, semitone int) (Sound, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	s.prepared = append(s.prepared, semitone)
	snd := &recordingSound{}
	s.sounds = append(s.sounds, snd)
	return snd, nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func (s *recordingSound) Play(time.Duration)    { s.calls = append(s.calls, "play") }
func (s *recordingSound) Stop()                 { s.calls = append(s.calls, "stop") }
func (s *recordingSound) Release(time.Duration) { s.calls = append(s.calls, "release") }

func TestNullSink(t *testing.T) {
	s := NewNull()
	snd, err := s.Prepare(wave.NewMono(44100, make([]float64, 8)), 3)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	snd.Play(0)
	snd.Stop()
	snd.Release(0)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := NewMulti(a, b)

	snd, err := m.Prepare(wave.NewMono(44100, make([]float64, 8)), -4)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	snd.Play(50 * time.Millisecond)
	snd.Stop()
	snd.Release(50 * time.Millisecond)

	for name, s := range map[string]*recordingSink{"a": a, "b": b} {
		if len(s.prepared) != 1 || s.prepared[0] != -4 {
			t.Errorf("sink %s prepared = %v, want [-4]", name, s.prepared)
			continue
		}
		want := "play,stop,release"
		if got := strings.Join(s.sounds[0].calls, ","); got != want {
			t.Errorf("sink %s sound calls = %q, want %q", name, got, want)
		}
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !a.closed || !b.closed {
		t.Errorf("closed = (%v, %v), want both true", a.closed, b.closed)
	}
}

func TestMultiSinkPropagatesPrepareError(t *testing.T) {
	wantErr := errors.New("device gone")
	m := NewMulti(&recordingSink{}, &recordingSink{fail: wantErr})

	if _, err := m.Prepare(wave.NewMono(44100, make([]float64, 8)), 0); !errors.Is(err, wantErr) {
		t.Fatalf("Prepare() error = %v, want %v", err, wantErr)
	}
}

func TestNoteForOffset(t *testing.T) {
	tests := []struct {
		base     int
		semitone int
		want     uint8
	}{
		{60, 0, 60},
		{60, 12, 72},
		{60, -12, 48},
		{60, -25, 35},
		{60, 25, 85},
		{5, -12, 0},    // clamps at the bottom
		{120, 12, 127}, // clamps at the top
	}
	for _, tt := range tests {
		if got := noteForOffset(tt.base, tt.semitone); got != tt.want {
			t.Errorf("noteForOffset(%d, %d) = %d, want %d", tt.base, tt.semitone, got, tt.want)
		}
	}
}
