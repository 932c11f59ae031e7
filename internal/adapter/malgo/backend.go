// Package malgo implements the capture backend on miniaudio through
// github.com/gen2brain/malgo (WASAPI, PulseAudio, ALSA, CoreAudio).
package malgo

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/Strob0t/lifelog/internal/capture"
)

// Backend owns a miniaudio context.
type Backend struct {
	ctx *malgo.AllocatedContext

	mu  sync.Mutex
	ids map[string]malgo.DeviceID
}

// New initializes miniaudio with the platform's default backends.
func New() (*Backend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("miniaudio", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Backend{ctx: ctx, ids: make(map[string]malgo.DeviceID)}, nil
}

// Close releases the audio context.
func (b *Backend) Close() error {
	if err := b.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninit audio context: %w", err)
	}
	b.ctx.Free()
	return nil
}

// Devices implements capture.Backend.
func (b *Backend) Devices() ([]capture.DeviceInfo, error) {
	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]capture.DeviceInfo, 0, len(infos))
	for _, info := range infos {
		id := info.ID.String()
		b.ids[id] = info.ID

		dev := capture.DeviceInfo{ID: id, Name: info.Name(), IsDefault: info.IsDefault != 0}
		full, err := b.ctx.DeviceInfo(malgo.Capture, info.ID, malgo.Shared)
		if err != nil {
			slog.Debug("capture device info unavailable", "device", dev.Name, "error", err)
			out = append(out, dev)
			continue
		}
		count := int(full.FormatCount)
		if count > len(full.Formats) {
			count = len(full.Formats)
		}
		for _, f := range full.Formats[:count] {
			dev.Formats = append(dev.Formats, capture.NativeFormat{
				Format:     fromMalgo(f.Format),
				Channels:   int(f.Channels),
				SampleRate: int(f.SampleRate),
			})
		}
		out = append(out, dev)
	}
	return out, nil
}

// Open implements capture.Backend.
func (b *Backend) Open(cfg capture.StreamConfig, onData func([]byte), onError func(error)) (capture.Stream, error) {
	b.mu.Lock()
	id, ok := b.ids[cfg.DeviceID]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: id %s", capture.ErrDeviceNotFound, cfg.DeviceID)
	}

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = toMalgo(cfg.Format)
	dc.Capture.Channels = uint32(cfg.Channels) //nolint:gosec // validated by config
	dc.SampleRate = uint32(cfg.SampleRate)     //nolint:gosec // validated by config
	dc.Capture.DeviceID = id.Pointer()

	s := &stream{onError: onError}
	dev, err := malgo.InitDevice(b.ctx.Context, dc, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			onData(input)
		},
		Stop: func() {
			if !s.closing.Load() {
				s.onError(capture.ErrDeviceStopped)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	s.dev = dev
	return s, nil
}

type stream struct {
	dev     *malgo.Device
	closing atomic.Bool
	onError func(error)
}

func (s *stream) Start() error {
	return s.dev.Start()
}

func (s *stream) Close() error {
	s.closing.Store(true)
	s.dev.Uninit()
	return nil
}

func toMalgo(f capture.SampleFormat) malgo.FormatType {
	switch f {
	case capture.FormatU8:
		return malgo.FormatU8
	case capture.FormatS16:
		return malgo.FormatS16
	case capture.FormatS24:
		return malgo.FormatS24
	case capture.FormatS32:
		return malgo.FormatS32
	case capture.FormatF32:
		return malgo.FormatF32
	}
	return malgo.FormatUnknown
}

func fromMalgo(f malgo.FormatType) capture.SampleFormat {
	switch f {
	case malgo.FormatU8:
		return capture.FormatU8
	case malgo.FormatS16:
		return capture.FormatS16
	case malgo.FormatS24:
		return capture.FormatS24
	case malgo.FormatS32:
		return capture.FormatS32
	case malgo.FormatF32:
		return capture.FormatF32
	}
	return capture.FormatUnknown
}
