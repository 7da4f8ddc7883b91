// SPDX-License-Identifier: MIT

// Package config defines the runtime configuration: defaults, YAML file
// loading, KEYTONE_* environment overrides, and validation. Command-line
// flags are applied on top by the cmd package, then Validate gates the
// final result.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"keytone/internal/log"
	"keytone/pkg/bitint"
)

// Playback backend names accepted by --backend.
const (
	BackendOto       = "oto"
	BackendPortAudio = "portaudio"
	BackendMidi      = "midi"
	BackendNull      = "null"
)

// Backends lists every valid backend name.
var Backends = []string{BackendOto, BackendPortAudio, BackendMidi, BackendNull}

// Core configuration constants defining the defaults and the boundaries
// of the instrument.
const (
	DefaultSample   = "piano_c4.wav"
	DefaultKeyboard = "qwerty_piano.txt"
	DefaultBackend  = BackendOto

	DefaultDeviceID        = MinDeviceID
	DefaultFramesPerBuffer = 512
	DefaultFadeInMs        = 50
	DefaultFadeOutMs       = 50
	DefaultHoldMs          = 600

	DefaultWindowSize = 8192
	DefaultHopSize    = 2048

	DefaultMIDIBaseNote = 60 // middle C
	DefaultMIDIChannel  = 0
	DefaultMIDIVelocity = 100

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 selects the system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer
)

// Config is the full runtime configuration, loaded from YAML and
// overridden by environment and flags.
type Config struct {
	Verbose    bool   `yaml:"verbose"`     // Debug-level logging
	Sample     string `yaml:"sample"`      // Source WAV path
	Keyboard   string `yaml:"keyboard"`    // Layout file path
	CacheDir   string `yaml:"cache_dir"`   // Cache base dir; empty keeps it next to the sample
	SampleRate int    `yaml:"sample_rate"` // Required source rate; 0 accepts whatever the file has

	Audio  AudioConfig  `yaml:"audio"`
	MIDI   MIDIConfig   `yaml:"midi"`
	DSP    DSPConfig    `yaml:"dsp"`
	Remote RemoteConfig `yaml:"remote"`
}

// AudioConfig holds playback settings shared by the audio backends.
type AudioConfig struct {
	Backend         string `yaml:"backend"`           // oto, portaudio, midi or null
	DeviceID        int    `yaml:"device_id"`         // PortAudio output device index (-1 for default)
	FramesPerBuffer int    `yaml:"frames_per_buffer"` // PortAudio buffer size in frames
	FadeInMs        int    `yaml:"fade_in_ms"`        // Note onset fade
	FadeOutMs       int    `yaml:"fade_out_ms"`       // Note release fade
	HoldMs          int    `yaml:"hold_ms"`           // TUI key-release synthesis window
}

// MIDIConfig holds the MIDI output settings. Port doubles as the tee
// switch: non-empty adds MIDI output alongside an audio backend.
type MIDIConfig struct {
	Port     string `yaml:"port"`      // Output port substring match; empty picks the first
	BaseNote int    `yaml:"base_note"` // MIDI note for the anchor key (0-127)
	Channel  int    `yaml:"channel"`   // MIDI channel (0-15)
	Velocity int    `yaml:"velocity"`  // Note-on velocity (1-127)
}

// DSPConfig holds the phase-vocoder frame geometry.
type DSPConfig struct {
	WindowSize int `yaml:"window_size"` // Analysis window, power of two
	HopSize    int `yaml:"hop_size"`    // Frame advance, less than the window
}

// RemoteConfig holds the WebSocket remote-control settings.
type RemoteConfig struct {
	Listen string `yaml:"listen"` // host:port to serve /events on; empty disables
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Sample:   DefaultSample,
		Keyboard: DefaultKeyboard,
		Audio: AudioConfig{
			Backend:         DefaultBackend,
			DeviceID:        DefaultDeviceID,
			FramesPerBuffer: DefaultFramesPerBuffer,
			FadeInMs:        DefaultFadeInMs,
			FadeOutMs:       DefaultFadeOutMs,
			HoldMs:          DefaultHoldMs,
		},
		MIDI: MIDIConfig{
			BaseNote: DefaultMIDIBaseNote,
			Channel:  DefaultMIDIChannel,
			Velocity: DefaultMIDIVelocity,
		},
		DSP: DSPConfig{
			WindowSize: DefaultWindowSize,
			HopSize:    DefaultHopSize,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file, then
// environment overrides. An empty path falls back to the KEYTONE_CONFIG
// environment variable, then to ./config.yaml if present; no file at all
// keeps the defaults. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("KEYTONE_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FadeIn returns the note onset fade as a duration.
func (c *Config) FadeIn() time.Duration { return time.Duration(c.Audio.FadeInMs) * time.Millisecond }

// FadeOut returns the note release fade as a duration.
func (c *Config) FadeOut() time.Duration { return time.Duration(c.Audio.FadeOutMs) * time.Millisecond }

// Hold returns the TUI key-release synthesis window as a duration.
func (c *Config) Hold() time.Duration { return time.Duration(c.Audio.HoldMs) * time.Millisecond }

// Validate checks the configuration for values no component can work
// with. Called again after flag overrides.
func (c *Config) Validate() error {
	if c.Sample == "" {
		return fmt.Errorf("sample path must not be empty")
	}
	if c.Keyboard == "" {
		return fmt.Errorf("keyboard path must not be empty")
	}
	if c.SampleRate != 0 && (c.SampleRate < MinSampleRate || c.SampleRate > MaxSampleRate) {
		return fmt.Errorf("sample_rate %d outside [%d, %d]", c.SampleRate, MinSampleRate, MaxSampleRate)
	}

	if !validBackend(c.Audio.Backend) {
		return fmt.Errorf("unknown backend %q (valid: %v)", c.Audio.Backend, Backends)
	}
	if c.Audio.DeviceID < MinDeviceID {
		return fmt.Errorf("device_id %d below %d", c.Audio.DeviceID, MinDeviceID)
	}
	if c.Audio.FramesPerBuffer <= 0 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("frames_per_buffer %d outside [1, %d]", c.Audio.FramesPerBuffer, MaxBufferFrames)
	}
	if c.Audio.FadeInMs < 0 || c.Audio.FadeOutMs < 0 {
		return fmt.Errorf("fade durations must not be negative")
	}
	if c.Audio.HoldMs <= 0 {
		return fmt.Errorf("hold_ms must be positive")
	}

	if !bitint.IsPowerOfTwo(c.DSP.WindowSize) {
		return fmt.Errorf("window_size %d is not a power of two", c.DSP.WindowSize)
	}
	if c.DSP.HopSize <= 0 || c.DSP.HopSize >= c.DSP.WindowSize {
		return fmt.Errorf("hop_size %d outside [1, window_size)", c.DSP.HopSize)
	}

	if c.MIDI.BaseNote < 0 || c.MIDI.BaseNote > 127 {
		return fmt.Errorf("midi base_note %d outside [0, 127]", c.MIDI.BaseNote)
	}
	if c.MIDI.Channel < 0 || c.MIDI.Channel > 15 {
		return fmt.Errorf("midi channel %d outside [0, 15]", c.MIDI.Channel)
	}
	if c.MIDI.Velocity < 1 || c.MIDI.Velocity > 127 {
		return fmt.Errorf("midi velocity %d outside [1, 127]", c.MIDI.Velocity)
	}
	return nil
}

func validBackend(name string) bool {
	for _, b := range Backends {
		if name == b {
			return true
		}
	}
	return false
}

// applyEnvOverrides layers KEYTONE_* environment variables over the
// loaded configuration.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("KEYTONE_VERBOSE"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Verbose = b
			log.Debugf("config: verbose overridden from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("KEYTONE_SAMPLE"); ok {
		c.Sample = val
		log.Debugf("config: sample overridden from env: %s", val)
	}
	if val, ok := os.LookupEnv("KEYTONE_KEYBOARD"); ok {
		c.Keyboard = val
		log.Debugf("config: keyboard overridden from env: %s", val)
	}
	if val, ok := os.LookupEnv("KEYTONE_CACHE_DIR"); ok {
		c.CacheDir = val
		log.Debugf("config: cache_dir overridden from env: %s", val)
	}
	if val, ok := os.LookupEnv("KEYTONE_BACKEND"); ok {
		c.Audio.Backend = val
		log.Debugf("config: backend overridden from env: %s", val)
	}
	if val, ok := os.LookupEnv("KEYTONE_MIDI_PORT"); ok {
		c.MIDI.Port = val
		log.Debugf("config: midi port overridden from env: %s", val)
	}
	if val, ok := os.LookupEnv("KEYTONE_LISTEN"); ok {
		c.Remote.Listen = val
		log.Debugf("config: listen overridden from env: %s", val)
	}
}
