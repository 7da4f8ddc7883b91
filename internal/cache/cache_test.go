package cache

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"keytone/internal/wave"
	"keytone/pkg/utils"
)

const testRate = 22050

// countingRenderer fabricates a distinct short waveform per offset and
// records how often each offset was rendered.
type countingRenderer struct {
	calls map[int]int
}

func newCountingRenderer() *countingRenderer {
	return &countingRenderer{calls: make(map[int]int)}
}

func (r *countingRenderer) render(semitones int) (*wave.Waveform, error) {
	r.calls[semitones]++
	freq := 440 * math.Pow(2, float64(semitones)/12)
	return wave.NewMono(testRate, utils.GenerateSineWave(256, testRate, freq)), nil
}

func (r *countingRenderer) total() int {
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "c4.wav"), "", testRate, 1)
}

func TestEnsureRendersOnceThenHits(t *testing.T) {
	store := newTestStore(t)
	r := newCountingRenderer()
	offsets := []int{-2, 0, 3}

	first, err := store.Ensure(offsets, r.render)
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if len(first) != len(offsets) {
		t.Fatalf("Ensure() returned %d entries, want %d", len(first), len(offsets))
	}
	if r.total() != len(offsets) {
		t.Fatalf("first Ensure() rendered %d times, want %d", r.total(), len(offsets))
	}
	for _, n := range offsets {
		if _, err := os.Stat(store.Path(n)); err != nil {
			t.Errorf("entry for %+d missing on disk: %v", n, err)
		}
	}

	second, err := store.Ensure(offsets, r.render)
	if err != nil {
		t.Fatalf("second Ensure() error: %v", err)
	}
	if r.total() != len(offsets) {
		t.Errorf("second Ensure() re-rendered: %d total calls, want %d", r.total(), len(offsets))
	}

	// Cached content matches what was rendered, within float32 precision.
	for _, n := range offsets {
		a, b := first[n], second[n]
		if a.Frames() != b.Frames() || a.Rate() != b.Rate() {
			t.Fatalf("offset %+d shape changed between runs", n)
		}
		for i := range a.Channel(0) {
			if math.Abs(a.Channel(0)[i]-b.Channel(0)[i]) > 1e-6 {
				t.Fatalf("offset %+d sample %d drifted", n, i)
			}
		}
	}
}

func TestEnsureSkipsDuplicateOffsets(t *testing.T) {
	store := newTestStore(t)
	r := newCountingRenderer()

	out, err := store.Ensure([]int{1, 1, 1}, r.render)
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if len(out) != 1 || r.calls[1] != 1 {
		t.Errorf("duplicates: %d entries, %d renders; want 1 and 1", len(out), r.calls[1])
	}
}

func TestClear(t *testing.T) {
	store := newTestStore(t)
	r := newCountingRenderer()

	if _, err := store.Ensure([]int{0}, r.render); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, err := os.Stat(store.Dir()); !os.IsNotExist(err) {
		t.Errorf("cache dir still present after Clear(): %v", err)
	}

	// Clearing an absent cache is fine.
	if err := store.Clear(); err != nil {
		t.Errorf("Clear() on empty cache: %v", err)
	}

	if _, err := store.Ensure([]int{0}, r.render); err != nil {
		t.Fatalf("Ensure() after Clear() error: %v", err)
	}
	if r.calls[0] != 2 {
		t.Errorf("render count after Clear() = %d, want 2", r.calls[0])
	}
}

func TestEnsureRejectsCorruptEntry(t *testing.T) {
	store := newTestStore(t)
	if err := os.MkdirAll(store.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(store.Path(0), []byte("not a wav"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Ensure([]int{0}, newCountingRenderer().render); err == nil {
		t.Error("Ensure() accepted a corrupt cache entry")
	}
}

func TestEnsureRejectsIncompatibleEntry(t *testing.T) {
	store := newTestStore(t)
	r := newCountingRenderer()
	if _, err := store.Ensure([]int{0}, r.render); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}

	// Same directory, different source shape.
	stereo := New(filepath.Join(filepath.Dir(store.Dir()), "c4.wav"), "", testRate, 2)
	if stereo.Dir() != store.Dir() {
		t.Fatalf("test setup: dirs differ (%s vs %s)", stereo.Dir(), store.Dir())
	}
	if _, err := stereo.Ensure([]int{0}, r.render); err == nil {
		t.Error("Ensure() accepted an entry with the wrong channel count")
	}
}

func TestEnsureIgnoresTempLeftovers(t *testing.T) {
	store := newTestStore(t)
	if err := os.MkdirAll(store.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	// A crashed writer leaves a temp file behind; it must not shadow the entry.
	leftover := filepath.Join(store.Dir(), "0.wav.tmp-123")
	if err := os.WriteFile(leftover, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newCountingRenderer()
	out, err := store.Ensure([]int{0}, r.render)
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if r.calls[0] != 1 {
		t.Errorf("render count = %d, want 1 (temp leftover treated as entry?)", r.calls[0])
	}
	if out[0] == nil {
		t.Error("Ensure() returned no waveform for offset 0")
	}
}
