package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"keytone/internal/build"
	"keytone/internal/config"
)

// Commands main can be asked to run. Empty means cobra already handled
// the invocation (help, version, completion) and there is nothing to do.
const (
	CommandPlay    = "play"
	CommandRender  = "render"
	CommandDevices = "devices"
)

// Options is the parsed command line: the effective configuration plus
// the selected command and one-shot actions.
type Options struct {
	Config     *config.Config
	Command    string
	ClearCache bool
}

// ParseArgs loads the configuration and applies the command line on top
// of it. Flag defaults come from the loaded config, so --help shows the
// effective values.
func ParseArgs() (*Options, error) {
	return parse(os.Args[1:])
}

func parse(args []string) (*Options, error) {
	// The config file must be read before flags bind, because its values
	// become the flag defaults. Peek at --config ahead of cobra.
	cfg, err := config.Load(peekConfigFlag(args))
	if err != nil {
		return nil, err
	}

	opts := &Options{Config: cfg}

	rootCmd := &cobra.Command{
		Use:           build.Name,
		Short:         "Play your computer keyboard as a musical instrument",
		Version:       build.Version(),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandPlay
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Precompute the transposition cache and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			opts.Command = CommandRender
		},
	}
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio output devices and MIDI output ports",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			opts.Command = CommandDevices
		},
	}
	rootCmd.AddCommand(renderCmd, devicesCmd)

	var configPath string

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfg.Sample, "wav", "w", cfg.Sample,
		"WAV file to derive the key tones from")
	pf.StringVarP(&cfg.Keyboard, "keyboard", "k", cfg.Keyboard,
		"Keyboard layout file (one key per line, one ' anchor' suffix)")
	pf.StringVar(&cfg.Audio.Backend, "backend", cfg.Audio.Backend,
		"Playback backend: oto, portaudio, midi or null")
	pf.IntVarP(&cfg.Audio.DeviceID, "device", "d", cfg.Audio.DeviceID,
		"Output device ID for the portaudio backend. Use 'devices' to see IDs.")
	pf.BoolVarP(&opts.ClearCache, "clear-cache", "c", false,
		"Delete cached transposed tones and recalculate them")
	pf.StringVarP(&cfg.MIDI.Port, "midi-port", "m", cfg.MIDI.Port,
		"Tee note events to this MIDI output port")
	pf.StringVar(&cfg.Remote.Listen, "listen", cfg.Remote.Listen,
		"Serve the remote-control WebSocket on this address (host:port)")
	pf.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir,
		"Directory for cached tones. Default is next to the WAV file.")
	pf.StringVar(&configPath, "config", "",
		"YAML configuration file (default: $KEYTONE_CONFIG, then ./config.yaml)")
	pf.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose,
		"Show verbose output")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	// Help, version and completion leave Command empty; nothing to
	// validate then.
	if opts.Command != "" {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// peekConfigFlag extracts the --config value without parsing the rest.
func peekConfigFlag(args []string) string {
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(args[i], "--config="):
			return strings.TrimPrefix(args[i], "--config=")
		}
	}
	return ""
}
