package sink

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// OutputDevice describes one PortAudio output. ID indexes the full
// device list, so it can be passed back as --device.
type OutputDevice struct {
	ID         int
	Name       string
	Channels   int
	SampleRate float64
	Default    bool
}

// OutputDevices enumerates all devices with output channels. It manages
// its own PortAudio session so callers need no stream open.
func OutputDevices() ([]OutputDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	def, _ := portaudio.DefaultOutputDevice()

	var out []OutputDevice
	for i, dev := range devices {
		if dev.MaxOutputChannels == 0 {
			continue
		}
		out = append(out, OutputDevice{
			ID:         i,
			Name:       dev.Name,
			Channels:   dev.MaxOutputChannels,
			SampleRate: dev.DefaultSampleRate,
			Default:    def != nil && dev == def,
		})
	}
	return out, nil
}

// outputDevice resolves a device ID against the full device list,
// rejecting devices without output channels.
func outputDevice(id int) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if id < 0 || id >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", id)
	}
	dev := devices[id]
	if dev.MaxOutputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) has no output channels", id, dev.Name)
	}
	return dev, nil
}
