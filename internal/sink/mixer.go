// SPDX-License-Identifier: MIT
package sink

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"keytone/internal/log"
	"keytone/internal/wave"
)

// DefaultDeviceID selects the system default output device.
const DefaultDeviceID = -1

// PortAudioSink mixes all sounding tones into a single low-latency
// output stream. Unlike the oto backend it owns the mixing loop, which
// keeps per-voice state in one place and makes the callback cheap.
type PortAudioSink struct {
	stream   *portaudio.Stream
	rate     int
	channels int

	mu     sync.Mutex
	voices []*paVoice
}

var _ Sink = (*PortAudioSink)(nil)

// NewPortAudio initializes PortAudio and opens an output stream on the
// given device. DefaultDeviceID picks the system default output.
func NewPortAudio(rate, channels, framesPerBuffer, deviceID int) (*PortAudioSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	s := &PortAudioSink{rate: rate, channels: channels}

	var (
		stream *portaudio.Stream
		err    error
	)
	if deviceID == DefaultDeviceID {
		stream, err = portaudio.OpenDefaultStream(0, channels, float64(rate), framesPerBuffer, s.process)
	} else {
		var dev *portaudio.DeviceInfo
		dev, err = outputDevice(deviceID)
		if err == nil {
			params := portaudio.StreamParameters{
				Output: portaudio.StreamDeviceParameters{
					Channels: channels,
					Device:   dev,
					Latency:  dev.DefaultLowOutputLatency,
				},
				FramesPerBuffer: framesPerBuffer,
				SampleRate:      float64(rate),
			}
			stream, err = portaudio.OpenStream(params, s.process)
		}
	}
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}

	s.stream = stream
	log.Debugf("sink: portaudio stream started (%d Hz, %d ch, %d frames)", rate, channels, framesPerBuffer)
	return s, nil
}

func (s *PortAudioSink) Prepare(w *wave.Waveform, semitone int) (Sound, error) {
	if w.Rate() != s.rate {
		return nil, fmt.Errorf("tone %+d: sample rate %d does not match stream rate %d",
			semitone, w.Rate(), s.rate)
	}

	data := make([][]float64, w.Channels())
	for c := range data {
		data[c] = w.Channel(c)
	}
	v := &paVoice{sink: s, data: data, env: envelope{rate: s.rate}}

	s.mu.Lock()
	s.voices = append(s.voices, v)
	s.mu.Unlock()
	return v, nil
}

func (s *PortAudioSink) Close() error {
	var first error
	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			first = err
		}
		if err := s.stream.Close(); err != nil && first == nil {
			first = err
		}
		s.stream = nil
	}
	if err := portaudio.Terminate(); err != nil && first == nil {
		first = err
	}
	return first
}

// process is the output callback. It zeroes the buffer, accumulates all
// sounding voices through their envelopes, and clamps the result.
func (s *PortAudioSink) process(out [][]float32) {
	for c := range out {
		clear(out[c])
	}
	if len(out) == 0 || len(out[0]) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(out[0])
	for _, v := range s.voices {
		if !v.playing {
			continue
		}
		total := len(v.data[0])
		for i := 0; i < frames; i++ {
			if v.pos >= total || v.env.idle() {
				v.playing = false
				break
			}
			g := v.env.next()
			for c := range out {
				src := c
				if src >= len(v.data) {
					src = len(v.data) - 1 // duplicate mono into both outputs
				}
				out[c][i] += float32(v.data[src][v.pos] * g)
			}
			v.pos++
		}
	}

	for c := range out {
		for i, x := range out[c] {
			if x > 1 {
				out[c][i] = 1
			} else if x < -1 {
				out[c][i] = -1
			}
		}
	}
}

// paVoice is one tone inside the mixer. State is guarded by the sink
// mutex shared with the audio callback.
type paVoice struct {
	sink    *PortAudioSink
	data    [][]float64 // channel-major
	pos     int
	env     envelope
	playing bool
}

func (v *paVoice) Play(fadeIn time.Duration) {
	v.sink.mu.Lock()
	defer v.sink.mu.Unlock()
	v.pos = 0
	v.env.rampTo(1, fadeIn)
	v.playing = true
}

func (v *paVoice) Stop() {
	v.sink.mu.Lock()
	defer v.sink.mu.Unlock()
	v.env.cut()
	v.playing = false
}

func (v *paVoice) Release(fadeOut time.Duration) {
	v.sink.mu.Lock()
	defer v.sink.mu.Unlock()
	if !v.playing {
		return
	}
	v.env.rampTo(0, fadeOut)
}
