package capture

import (
	"fmt"
	"strings"
)

// SampleFormat is the raw sample encoding delivered by a capture device.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatU8
	FormatS16
	FormatS24
	FormatS32
	FormatF32
)

// formatPreference orders formats by how cheaply they normalize to 16-bit PCM.
var formatPreference = []SampleFormat{FormatS16, FormatF32, FormatS32, FormatS24, FormatU8}

// BytesPerSample returns the encoded width of one sample.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	case FormatS32, FormatF32:
		return 4
	}
	return 0
}

func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16:
		return "s16"
	case FormatS24:
		return "s24"
	case FormatS32:
		return "s32"
	case FormatF32:
		return "f32"
	}
	return "unknown"
}

// NativeFormat is one configuration a device supports without conversion.
// A zero Channels or SampleRate means the device accepts any value.
type NativeFormat struct {
	Format     SampleFormat
	Channels   int
	SampleRate int
}

func (n NativeFormat) String() string {
	ch, rate := "any", "any"
	if n.Channels > 0 {
		ch = fmt.Sprint(n.Channels)
	}
	if n.SampleRate > 0 {
		rate = fmt.Sprint(n.SampleRate)
	}
	return fmt.Sprintf("%s/%sch/%sHz", n.Format, ch, rate)
}

func (n NativeFormat) accepts(rate, channels int) bool {
	return (n.SampleRate == 0 || n.SampleRate == rate) && (n.Channels == 0 || n.Channels == channels)
}

// DeviceInfo describes an input device.
type DeviceInfo struct {
	ID        string
	Name      string
	IsDefault bool
	Formats   []NativeFormat
}

// StreamConfig is the exact configuration a Backend must open.
type StreamConfig struct {
	DeviceID   string
	SampleRate int
	Channels   int
	Format     SampleFormat
}

// SelectDevice picks the device whose name contains selector
// (case-insensitive), or the default device when selector is empty.
func SelectDevice(devices []DeviceInfo, selector string) (DeviceInfo, error) {
	if len(devices) == 0 {
		return DeviceInfo{}, fmt.Errorf("%w: no input devices", ErrDeviceNotFound)
	}
	if selector == "" {
		for _, d := range devices {
			if d.IsDefault {
				return d, nil
			}
		}
		return devices[0], nil
	}
	want := strings.ToLower(selector)
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
		names = append(names, d.Name)
	}
	return DeviceInfo{}, fmt.Errorf("%w: %q (available: %s)", ErrDeviceNotFound, selector, strings.Join(names, ", "))
}

// SelectFormat returns a native sample format for rate and channels. No
// resampling or channel mixing is ever substituted.
func SelectFormat(dev DeviceInfo, rate, channels int) (SampleFormat, error) {
	for _, pref := range formatPreference {
		for _, n := range dev.Formats {
			if n.Format == pref && n.accepts(rate, channels) {
				return pref, nil
			}
		}
	}
	avail := make([]string, 0, len(dev.Formats))
	for _, n := range dev.Formats {
		avail = append(avail, n.String())
	}
	return FormatUnknown, fmt.Errorf("%w: %q does not support %d Hz x %d ch (native: %s)",
		ErrUnsupportedConfig, dev.Name, rate, channels, strings.Join(avail, ", "))
}
