// SPDX-License-Identifier: MIT

// Package dispatch runs the playback event loop: a per-key state machine
// turning KeyDown/KeyUp events into play and release calls on bound
// sounds. Keys are either idle or triggered; repeated downs and spurious
// ups are absorbed, so noisy sources (terminal key repeat, remote
// clients) need no filtering of their own.
package dispatch

import (
	"time"

	"keytone/internal/log"
)

// Kind discriminates event types.
type Kind uint8

const (
	KeyDown Kind = iota
	KeyUp
	Quit
)

// String returns the event kind name.
func (k Kind) String() string {
	switch k {
	case KeyDown:
		return "down"
	case KeyUp:
		return "up"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// Event is one input occurrence routed to the dispatcher.
type Event struct {
	Kind Kind
	Key  string
}

// Voice is the playable handle the dispatcher drives. Implementations
// must tolerate calls from the dispatcher goroutine while their backend
// renders audio.
type Voice interface {
	Play(fadeIn time.Duration)
	Stop()
	Release(fadeOut time.Duration)
}

// NotifyFunc observes accepted key transitions. Used for TUI highlighting
// and remote state broadcast; called from the dispatcher goroutine.
type NotifyFunc func(key string, down bool)

// Dispatcher owns the per-key state. Not safe for concurrent Handle
// calls; Run is the single consumer of the event channel.
type Dispatcher struct {
	voices  map[string]Voice
	active  map[string]bool
	fadeIn  time.Duration
	fadeOut time.Duration
	notify  NotifyFunc
}

// New builds a dispatcher over the key→voice bindings.
func New(voices map[string]Voice, fadeIn, fadeOut time.Duration) *Dispatcher {
	return &Dispatcher{
		voices:  voices,
		active:  make(map[string]bool, len(voices)),
		fadeIn:  fadeIn,
		fadeOut: fadeOut,
	}
}

// SetNotify installs the transition observer. Must be called before Run.
func (d *Dispatcher) SetNotify(fn NotifyFunc) { d.notify = fn }

// Run consumes events until a Quit event or channel close, then releases
// anything still sounding.
func (d *Dispatcher) Run(events <-chan Event) {
	for ev := range events {
		if !d.Handle(ev) {
			return
		}
	}
	d.ReleaseAll()
}

// Handle applies one event and reports whether the loop continues.
func (d *Dispatcher) Handle(ev Event) bool {
	switch ev.Kind {
	case Quit:
		log.Debugf("dispatch: quit")
		d.ReleaseAll()
		return false

	case KeyDown:
		v, ok := d.voices[ev.Key]
		if !ok {
			log.Debugf("dispatch: ignoring unbound key %q", ev.Key)
			return true
		}
		if d.active[ev.Key] {
			return true // key repeat
		}
		v.Stop() // cut any residual fade-out tail
		v.Play(d.fadeIn)
		d.active[ev.Key] = true
		d.emit(ev.Key, true)

	case KeyUp:
		v, ok := d.voices[ev.Key]
		if !ok {
			log.Debugf("dispatch: ignoring unbound key %q", ev.Key)
			return true
		}
		if !d.active[ev.Key] {
			return true // spurious release
		}
		v.Release(d.fadeOut)
		d.active[ev.Key] = false
		d.emit(ev.Key, false)
	}
	return true
}

// ReleaseAll fades out every triggered key and marks all keys idle.
func (d *Dispatcher) ReleaseAll() {
	for key, on := range d.active {
		if !on {
			continue
		}
		d.voices[key].Release(d.fadeOut)
		d.active[key] = false
		d.emit(key, false)
	}
}

// IsActive reports whether a key is currently triggered.
func (d *Dispatcher) IsActive(key string) bool { return d.active[key] }

func (d *Dispatcher) emit(key string, down bool) {
	if d.notify != nil {
		d.notify(key, down)
	}
}
