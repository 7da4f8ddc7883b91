package sink

import (
	"math"
	"testing"
	"time"

	"keytone/internal/wave"
)

func newTestMixer(t *testing.T, channels int) *PortAudioSink {
	t.Helper()
	return &PortAudioSink{rate: 44100, channels: channels}
}

func stereoBuffer(frames int) [][]float32 {
	return [][]float32{make([]float32, frames), make([]float32, frames)}
}

func constWave(rate, frames int, value float64) *wave.Waveform {
	data := make([]float64, frames)
	for i := range data {
		data[i] = value
	}
	return wave.NewMono(rate, data)
}

func TestMixerSilentWhenIdle(t *testing.T) {
	s := newTestMixer(t, 2)
	if _, err := s.Prepare(constWave(44100, 64, 0.5), 0); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	out := stereoBuffer(16)
	out[0][3] = 0.9 // stale garbage must be cleared
	s.process(out)

	for c := range out {
		for i, x := range out[c] {
			if x != 0 {
				t.Fatalf("out[%d][%d] = %v, want 0 with no voice playing", c, i, x)
			}
		}
	}
}

func TestMixerDuplicatesMonoAcrossOutputs(t *testing.T) {
	s := newTestMixer(t, 2)
	snd, err := s.Prepare(constWave(44100, 64, 0.5), 0)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	snd.Play(0)

	out := stereoBuffer(8)
	s.process(out)

	for c := range out {
		for i, x := range out[c] {
			if x != 0.5 {
				t.Fatalf("out[%d][%d] = %v, want 0.5", c, i, x)
			}
		}
	}
}

func TestMixerSumsVoicesAndClips(t *testing.T) {
	s := newTestMixer(t, 2)
	a, err := s.Prepare(constWave(44100, 64, 0.75), 0)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	b, err := s.Prepare(constWave(44100, 64, 0.75), 7)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	a.Play(0)
	b.Play(0)

	out := stereoBuffer(8)
	s.process(out)

	// 0.75 + 0.75 clamps to 1.
	for c := range out {
		for i, x := range out[c] {
			if x != 1 {
				t.Fatalf("out[%d][%d] = %v, want clipped 1", c, i, x)
			}
		}
	}
}

func TestMixerVoiceEndsAtDataEnd(t *testing.T) {
	s := newTestMixer(t, 2)
	snd, err := s.Prepare(constWave(44100, 4, 0.5), 0)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	snd.Play(0)

	out := stereoBuffer(8)
	s.process(out)

	for i := 0; i < 4; i++ {
		if out[0][i] != 0.5 {
			t.Fatalf("out[0][%d] = %v, want 0.5", i, out[0][i])
		}
	}
	for i := 4; i < 8; i++ {
		if out[0][i] != 0 {
			t.Fatalf("out[0][%d] = %v, want 0 past data end", i, out[0][i])
		}
	}

	// Exhausted voice stays silent on the next callback.
	s.process(out)
	for i := range out[0] {
		if out[0][i] != 0 {
			t.Fatalf("out[0][%d] = %v after voice end, want 0", i, out[0][i])
		}
	}
}

func TestMixerStopCutsImmediately(t *testing.T) {
	s := newTestMixer(t, 2)
	snd, err := s.Prepare(constWave(44100, 64, 0.5), 0)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	snd.Play(0)
	snd.Stop()

	out := stereoBuffer(8)
	s.process(out)
	for i, x := range out[0] {
		if x != 0 {
			t.Fatalf("out[0][%d] = %v after Stop, want 0", i, x)
		}
	}
}

func TestMixerReleaseFadesToSilence(t *testing.T) {
	s := newTestMixer(t, 2)
	snd, err := s.Prepare(constWave(44100, 44100, 0.5), 0)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	snd.Play(0)
	snd.Release(time.Millisecond) // ~44 frames

	out := stereoBuffer(128)
	s.process(out)

	if out[0][0] != 0.5 {
		t.Fatalf("out[0][0] = %v at release start, want 0.5", out[0][0])
	}
	if last := out[0][127]; last != 0 {
		t.Fatalf("out[0][127] = %v after fade window, want 0", last)
	}
	decreasing := true
	for i := 1; i < 64; i++ {
		if out[0][i] > out[0][i-1] {
			decreasing = false
			break
		}
	}
	if !decreasing {
		t.Fatal("release fade is not monotonically decreasing")
	}
}

func TestMixerRetriggerRestartsFromTop(t *testing.T) {
	rate := 44100
	ramp := make([]float64, 64)
	for i := range ramp {
		ramp[i] = float64(i) / 64
	}
	s := newTestMixer(t, 2)
	snd, err := s.Prepare(wave.NewMono(rate, ramp), 0)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	snd.Play(0)
	out := stereoBuffer(32)
	s.process(out) // consume 32 frames

	snd.Play(0)
	s.process(out)
	if got, want := out[0][1], float32(1.0/64); math.Abs(float64(got-want)) > 1e-6 {
		t.Fatalf("out[0][1] = %v after retrigger, want %v (playback restarted)", got, want)
	}
}

func TestMixerPrepareRejectsRateMismatch(t *testing.T) {
	s := newTestMixer(t, 2)
	if _, err := s.Prepare(constWave(22050, 16, 0.5), 0); err == nil {
		t.Fatal("Prepare() error = nil for mismatched rate, want error")
	}
}

func TestMixerProcessDoesNotAllocate(t *testing.T) {
	s := newTestMixer(t, 2)
	snd, err := s.Prepare(constWave(44100, 4096, 0.5), 0)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	snd.Play(10 * time.Millisecond)

	out := stereoBuffer(128)
	if allocs := testing.AllocsPerRun(100, func() { s.process(out) }); allocs != 0 {
		t.Errorf("process() allocates %v per run, want 0", allocs)
	}
}
