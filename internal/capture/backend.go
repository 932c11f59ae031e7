// Package capture records audio from an input device into a provisional WAV
// file and finalizes it atomically. At most one capture session exists at a
// time per Controller.
package capture

import "errors"

var (
	// ErrUnsupportedConfig means the device cannot natively capture the
	// requested rate, channel count and sample format.
	ErrUnsupportedConfig = errors.New("unsupported capture configuration")

	// ErrDeviceNotFound means no input device matched the selector.
	ErrDeviceNotFound = errors.New("capture device not found")

	// ErrAbandoned means the producer stopped on a stream error. The
	// provisional file is left for recovery.
	ErrAbandoned = errors.New("capture session abandoned")

	// ErrDeviceStopped is reported when the device stops without being asked to.
	ErrDeviceStopped = errors.New("capture device stopped unexpectedly")
)

// Backend opens capture streams on a concrete audio API.
type Backend interface {
	// Devices lists input devices with their native formats.
	Devices() ([]DeviceInfo, error)

	// Open prepares a stream. onData receives interleaved raw samples and
	// must not retain the slice. onError is called at most once if the
	// stream fails while running.
	Open(cfg StreamConfig, onData func([]byte), onError func(error)) (Stream, error)
}

// Stream is an opened capture stream.
type Stream interface {
	Start() error
	// Close stops the stream. No callbacks run after Close returns.
	Close() error
}
