package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"keytone/cmd"
	"keytone/internal/build"
	"keytone/internal/cache"
	"keytone/internal/config"
	"keytone/internal/dispatch"
	"keytone/internal/dsp"
	"keytone/internal/keymap"
	"keytone/internal/log"
	"keytone/internal/remote"
	"keytone/internal/sink"
	"keytone/internal/tui"
	"keytone/internal/wave"
)

// eventBuffer sizes the key event channel. Remote clients drop events
// rather than block when the consumer falls this far behind.
const eventBuffer = 64

// main is the entry point for the instrument.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Parse command line arguments and configuration
//   - Execute one-off commands if requested
//   - Decode the source sample and the keyboard layout
//   - Fill the transposition cache, rendering missing tones
//
// 2. Concurrent Phase (Hot Path):
//   - Prepare one sound per key on the playback backend
//   - Run the key event dispatcher
//   - Serve remote control clients if enabled
//   - Run the terminal UI until quit
//
// 3. Shutdown Phase (Cold Path):
//   - Release every sounding note
//   - Close the remote listener and the playback backend
func main() {
	options, err := cmd.ParseArgs()
	if err != nil {
		log.Fatalf("%v", err)
	}

	// Help, version and completion are handled inside ParseArgs.
	if options.Command == "" {
		return
	}

	cfg := options.Config
	if cfg.Verbose {
		log.SetLevel(log.LevelDebug)
	}
	log.Debugf("%s", build.Summary())

	switch options.Command {
	case cmd.CommandDevices:
		err = runDevices(os.Stdout)
	case cmd.CommandRender:
		err = runRender(cfg, options.ClearCache)
	default:
		err = runPlay(cfg, options.ClearCache)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

// loadTones decodes the source sample, parses the keyboard layout and
// fills the transposition cache, rendering any offsets not on disk.
func loadTones(cfg *config.Config, clearCache bool) (*keymap.Layout, map[int]*wave.Waveform, *wave.Waveform, error) {
	source, err := wave.Decode(cfg.Sample)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load sample: %w", err)
	}
	if cfg.SampleRate != 0 && source.Rate() != cfg.SampleRate {
		return nil, nil, nil, fmt.Errorf("%s: %w: got %d Hz, want %d Hz",
			cfg.Sample, wave.ErrSampleRate, source.Rate(), cfg.SampleRate)
	}
	log.Infof("loaded %s: %d Hz, %d channel(s), %v",
		cfg.Sample, source.Rate(), source.Channels(), source.Duration())

	layout, err := keymap.Load(cfg.Keyboard)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load keyboard layout: %w", err)
	}
	log.Infof("layout %s: %d keys", cfg.Keyboard, len(layout.Keys()))

	shifter, err := dsp.NewShifter(
		dsp.WithWindowSize(cfg.DSP.WindowSize),
		dsp.WithHopSize(cfg.DSP.HopSize),
	)
	if err != nil {
		return nil, nil, nil, err
	}

	store := cache.New(cfg.Sample, cfg.CacheDir, source.Rate(), source.Channels())
	if clearCache {
		if err := store.Clear(); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to clear tone cache: %w", err)
		}
		log.Infof("cleared tone cache %s", store.Dir())
	}

	tones, err := store.Ensure(layout.Offsets(), func(semitones int) (*wave.Waveform, error) {
		return shifter.Shift(source, semitones)
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to render tones: %w", err)
	}
	log.Infof("%d tones ready in %s", len(tones), store.Dir())
	return layout, tones, source, nil
}

// runRender fills the tone cache and exits. Useful before a performance
// so the first run does not pause for the phase vocoder.
func runRender(cfg *config.Config, clearCache bool) error {
	layout, tones, _, err := loadTones(cfg, clearCache)
	if err != nil {
		return err
	}
	fmt.Printf("Rendered %d tones for %d keys.\n", len(tones), len(layout.Keys()))
	return nil
}

// runDevices lists audio output devices and MIDI output ports.
func runDevices(w io.Writer) error {
	devices, err := sink.OutputDevices()
	if err != nil {
		return fmt.Errorf("failed to query audio devices: %w", err)
	}

	fmt.Fprintln(w, "Audio output devices:")
	if len(devices) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Fprintf(w, "%s [%d] %s (%d ch, %.0f Hz)\n", marker, d.ID, d.Name, d.Channels, d.SampleRate)
	}

	fmt.Fprintln(w, "\nMIDI output ports:")
	ports, err := sink.MIDIOutputs()
	if err != nil {
		// A missing MIDI subsystem should not hide the audio listing.
		fmt.Fprintf(w, "  unavailable: %v\n", err)
		return nil
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, p := range ports {
		fmt.Fprintf(w, "  %s\n", p)
	}
	return nil
}

// newSink builds the playback backend for the configured name. A MIDI
// port configured alongside an audio backend tees note events to it.
func newSink(cfg *config.Config, rate, channels int) (sink.Sink, error) {
	newMidi := func() (sink.Sink, error) {
		return sink.NewMidi(cfg.MIDI.Port, cfg.MIDI.BaseNote,
			uint8(cfg.MIDI.Channel), uint8(cfg.MIDI.Velocity))
	}

	var (
		out sink.Sink
		err error
	)
	switch cfg.Audio.Backend {
	case config.BackendPortAudio:
		out, err = sink.NewPortAudio(rate, channels, cfg.Audio.FramesPerBuffer, cfg.Audio.DeviceID)
	case config.BackendMidi:
		return newMidi()
	case config.BackendNull:
		out = sink.NewNull()
	default:
		out, err = sink.NewOto(rate, channels)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MIDI.Port == "" {
		return out, nil
	}
	tee, err := newMidi()
	if err != nil {
		out.Close()
		return nil, err
	}
	return sink.NewMulti(out, tee), nil
}

func runPlay(cfg *config.Config, clearCache bool) error {
	// ==================== STARTUP PHASE (Cold Path) ====================

	layout, tones, source, err := loadTones(cfg, clearCache)
	if err != nil {
		return err
	}

	out, err := newSink(cfg, source.Rate(), source.Channels())
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", cfg.Audio.Backend, err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Errorf("failed to close playback backend: %v", err)
		}
	}()

	voices := make(map[string]dispatch.Voice, len(layout.Keys()))
	for key, offset := range layout.Bindings() {
		sound, err := out.Prepare(tones[offset], offset)
		if err != nil {
			return fmt.Errorf("failed to prepare tone %+d: %w", offset, err)
		}
		voices[key] = sound
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	events := make(chan dispatch.Event, eventBuffer)
	dispatcher := dispatch.New(voices, cfg.FadeIn(), cfg.FadeOut())

	var server *remote.Server
	if cfg.Remote.Listen != "" {
		server = remote.New(cfg.Remote.Listen, events)
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start remote listener: %w", err)
		}
		log.Infof("remote control on ws://%s/events", server.Addr())
	}

	status := tui.Status{Sample: cfg.Sample, Backend: cfg.Audio.Backend}
	if server != nil {
		status.Listen = server.Addr()
	}
	program := tea.NewProgram(tui.New(layout, events, status, cfg.Hold()), tea.WithAltScreen())

	dispatcher.SetNotify(func(key string, down bool) {
		program.Send(tui.NoteMsg{Key: key, Down: down})
		if server != nil {
			server.Broadcast(key, down)
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatcher.Run(events)
	}()
	go func() {
		// A remote quit stops the dispatcher; take the UI down with it.
		<-done
		program.Quit()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		program.Quit()
	}()

	// The terminal belongs to the UI from here on.
	restore := redirectLogs(cfg.Verbose)
	_, runErr := program.Run()
	restore()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	// Quit releases every note still sounding and stops the dispatcher.
	events <- dispatch.Event{Kind: dispatch.Quit}
	<-done

	if server != nil {
		if err := server.Close(); err != nil {
			log.Errorf("failed to close remote listener: %v", err)
		}
	}
	return runErr
}

// redirectLogs points the log away from the terminal while the UI owns
// it. Verbose runs keep their messages in keytone.log instead.
func redirectLogs(verbose bool) func() {
	if verbose {
		f, err := os.OpenFile("keytone.log", os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
		if err == nil {
			log.SetOutput(f)
			return func() {
				log.SetOutput(os.Stderr)
				f.Close()
			}
		}
		log.Warnf("failed to open keytone.log: %v", err)
	}
	log.SetOutput(io.Discard)
	return func() { log.SetOutput(os.Stderr) }
}
