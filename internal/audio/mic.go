package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Source yields fixed-size blocks of mono 16-bit PCM at the hardware rate.
type Source interface {
	// Read blocks until one full block is available.
	Read(ctx context.Context) ([]int16, error)
	Close() error
}

type MicConfig struct {
	// Device matches a PortAudio input device name, exactly or as a
	// substring; empty selects the default.
	Device     string
	SampleRate int
	FrameSize  int
}

// Mic owns a PortAudio input stream.
type Mic struct {
	stream *portaudio.Stream
	buf    []int16
}

func OpenMic(cfg MicConfig) (*Mic, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("invalid mic config: rate %d, frame %d", cfg.SampleRate, cfg.FrameSize)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}

	buf := make([]int16, cfg.FrameSize)

	stream, err := openStream(cfg, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start stream: %w", err)
	}

	return &Mic{stream: stream, buf: buf}, nil
}

func openStream(cfg MicConfig, buf []int16) (*portaudio.Stream, error) {
	if cfg.Device == "" || cfg.Device == "default" {
		s, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), len(buf), buf)
		if err != nil {
			return nil, fmt.Errorf("open default stream at %d Hz: %w", cfg.SampleRate, err)
		}
		return s, nil
	}

	dev, err := findInputDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: len(buf),
	}
	s, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("open %q at %d Hz: %w", cfg.Device, cfg.SampleRate, err)
	}
	return s, nil
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if d := matchInputDevice(devices, name); d != nil {
		return d, nil
	}
	return nil, fmt.Errorf("input device %q not found", name)
}

// matchInputDevice prefers an exact name and otherwise takes the first input
// device whose name contains name.
func matchInputDevice(devices []*portaudio.DeviceInfo, name string) *portaudio.DeviceInfo {
	var partial *portaudio.DeviceInfo
	for _, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		if d.Name == name {
			return d
		}
		if partial == nil && strings.Contains(d.Name, name) {
			partial = d
		}
	}
	return partial
}

// Read returns a copy of the next block. Overflows are ignored: the block is
// still delivered.
func (m *Mic) Read(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, err
	}
	out := make([]int16, len(m.buf))
	copy(out, m.buf)
	return out, nil
}

func (m *Mic) Close() error {
	var errs []error
	if err := m.stream.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := m.stream.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
