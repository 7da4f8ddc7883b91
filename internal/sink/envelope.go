// SPDX-License-Identifier: MIT
package sink

import "time"

// envelope is a linear per-frame gain ramp. It shapes note onsets and
// releases so retriggered samples never click. Not safe for concurrent
// use; callers serialize access.
type envelope struct {
	rate   int
	gain   float64
	target float64
	step   float64
}

// rampTo moves the gain toward target over the fade duration. A zero or
// negative fade jumps immediately.
func (e *envelope) rampTo(target float64, fade time.Duration) {
	e.target = target
	frames := int(fade.Seconds() * float64(e.rate))
	if frames <= 0 || e.gain == target {
		e.gain = target
		e.step = 0
		return
	}
	e.step = (target - e.gain) / float64(frames)
}

// cut silences the envelope immediately.
func (e *envelope) cut() {
	e.gain = 0
	e.target = 0
	e.step = 0
}

// next returns the gain for the current frame and advances one frame.
func (e *envelope) next() float64 {
	g := e.gain
	if e.step != 0 {
		e.gain += e.step
		if (e.step > 0 && e.gain >= e.target) || (e.step < 0 && e.gain <= e.target) {
			e.gain = e.target
			e.step = 0
		}
	}
	return g
}

// idle reports whether the envelope has fully released.
func (e *envelope) idle() bool {
	return e.gain == 0 && e.target == 0
}
