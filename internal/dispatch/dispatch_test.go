package dispatch

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// traceVoice records every call so tests can assert exact sequences.
type traceVoice struct {
	mu    sync.Mutex
	calls []string
}

func (v *traceVoice) Play(time.Duration)    { v.record("play") }
func (v *traceVoice) Stop()                 { v.record("stop") }
func (v *traceVoice) Release(time.Duration) { v.record("release") }

func (v *traceVoice) record(call string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, call)
}

func (v *traceVoice) trace() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return strings.Join(v.calls, ",")
}

func newTestDispatcher(keys ...string) (*Dispatcher, map[string]*traceVoice) {
	voices := make(map[string]Voice, len(keys))
	traces := make(map[string]*traceVoice, len(keys))
	for _, k := range keys {
		tv := &traceVoice{}
		voices[k] = tv
		traces[k] = tv
	}
	return New(voices, 50*time.Millisecond, 50*time.Millisecond), traces
}

func TestHandleSequences(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   map[string]string // key → expected call trace
		active map[string]bool   // key → expected triggered state
	}{
		{
			name:   "single press",
			events: []Event{{KeyDown, "q"}},
			want:   map[string]string{"q": "stop,play"},
			active: map[string]bool{"q": true},
		},
		{
			name:   "press and release",
			events: []Event{{KeyDown, "q"}, {KeyUp, "q"}},
			want:   map[string]string{"q": "stop,play,release"},
			active: map[string]bool{"q": false},
		},
		{
			name:   "key repeat is absorbed",
			events: []Event{{KeyDown, "q"}, {KeyDown, "q"}, {KeyDown, "q"}},
			want:   map[string]string{"q": "stop,play"},
			active: map[string]bool{"q": true},
		},
		{
			name:   "spurious release is a noop",
			events: []Event{{KeyUp, "q"}},
			want:   map[string]string{"q": ""},
			active: map[string]bool{"q": false},
		},
		{
			name:   "release then repeat release",
			events: []Event{{KeyDown, "q"}, {KeyUp, "q"}, {KeyUp, "q"}},
			want:   map[string]string{"q": "stop,play,release"},
			active: map[string]bool{"q": false},
		},
		{
			name:   "retrigger cuts the fading tail",
			events: []Event{{KeyDown, "q"}, {KeyUp, "q"}, {KeyDown, "q"}},
			want:   map[string]string{"q": "stop,play,release,stop,play"},
			active: map[string]bool{"q": true},
		},
		{
			name:   "keys are independent",
			events: []Event{{KeyDown, "q"}, {KeyDown, "w"}, {KeyUp, "q"}},
			want:   map[string]string{"q": "stop,play,release", "w": "stop,play"},
			active: map[string]bool{"q": false, "w": true},
		},
		{
			name:   "unbound key is ignored",
			events: []Event{{KeyDown, "z"}, {KeyUp, "z"}},
			want:   map[string]string{"q": "", "w": ""},
			active: map[string]bool{"q": false, "w": false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, traces := newTestDispatcher("q", "w")
			for _, ev := range tt.events {
				if !d.Handle(ev) {
					t.Fatalf("Handle(%v) = false, want true", ev)
				}
			}
			for key, want := range tt.want {
				if got := traces[key].trace(); got != want {
					t.Errorf("trace[%q] = %q, want %q", key, got, want)
				}
			}
			for key, want := range tt.active {
				if got := d.IsActive(key); got != want {
					t.Errorf("IsActive(%q) = %v, want %v", key, got, want)
				}
			}
		})
	}
}

func TestQuitReleasesAll(t *testing.T) {
	d, traces := newTestDispatcher("q", "w", "e")
	d.Handle(Event{KeyDown, "q"})
	d.Handle(Event{KeyDown, "w"})

	if cont := d.Handle(Event{Kind: Quit}); cont {
		t.Fatal("Handle(Quit) = true, want false")
	}

	for _, key := range []string{"q", "w"} {
		if got := traces[key].trace(); got != "stop,play,release" {
			t.Errorf("trace[%q] = %q, want %q", key, got, "stop,play,release")
		}
		if d.IsActive(key) {
			t.Errorf("IsActive(%q) = true after quit", key)
		}
	}
	if got := traces["e"].trace(); got != "" {
		t.Errorf("trace[%q] = %q, want empty", "e", got)
	}
}

func TestRunConsumesUntilQuit(t *testing.T) {
	d, traces := newTestDispatcher("q")

	events := make(chan Event, 8)
	events <- Event{KeyDown, "q"}
	events <- Event{Kind: Quit}

	done := make(chan struct{})
	go func() {
		d.Run(events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Quit")
	}
	if got := traces["q"].trace(); got != "stop,play,release" {
		t.Errorf("trace = %q, want %q", got, "stop,play,release")
	}
}

func TestRunReleasesOnChannelClose(t *testing.T) {
	d, traces := newTestDispatcher("q")

	events := make(chan Event, 8)
	events <- Event{KeyDown, "q"}
	close(events)

	done := make(chan struct{})
	go func() {
		d.Run(events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}
	if got := traces["q"].trace(); got != "stop,play,release" {
		t.Errorf("trace = %q, want %q", got, "stop,play,release")
	}
}

func TestNotifyReportsTransitions(t *testing.T) {
	d, _ := newTestDispatcher("q")

	var got []string
	d.SetNotify(func(key string, down bool) {
		state := "up"
		if down {
			state = "down"
		}
		got = append(got, key+":"+state)
	})

	d.Handle(Event{KeyDown, "q"})
	d.Handle(Event{KeyDown, "q"}) // repeat: no notification
	d.Handle(Event{KeyUp, "q"})
	d.Handle(Event{KeyUp, "q"}) // spurious: no notification

	want := "q:down,q:up"
	if joined := strings.Join(got, ","); joined != want {
		t.Errorf("notifications = %q, want %q", joined, want)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KeyDown, "down"},
		{KeyUp, "up"},
		{Quit, "quit"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
