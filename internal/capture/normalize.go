package capture

import (
	"encoding/binary"
	"log/slog"
	"math"
	"time"
)

// decode converts interleaved little-endian samples of format f to 16-bit
// signed PCM, appending to dst. Trailing bytes that do not form a whole
// sample are ignored.
func decode(dst []int16, raw []byte, f SampleFormat) []int16 {
	width := f.BytesPerSample()
	if width == 0 {
		return dst
	}
	n := len(raw) / width
	for i := range n {
		b := raw[i*width : (i+1)*width]
		var s int16
		switch f {
		case FormatU8:
			s = int16((int(b[0]) - 128) << 8) //nolint:gosec // range [-32768, 32512]
		case FormatS16:
			s = int16(binary.LittleEndian.Uint16(b)) //nolint:gosec // reinterpretation
		case FormatS24:
			v := int32(b[2])<<24 | int32(b[1])<<16 | int32(b[0])<<8
			s = int16(v >> 16)
		case FormatS32:
			s = int16(int32(binary.LittleEndian.Uint32(b)) >> 16) //nolint:gosec // top 16 bits
		case FormatF32:
			s = floatToPCM(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
		dst = append(dst, s)
	}
	return dst
}

func floatToPCM(v float32) int16 {
	if v != v { // NaN
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * math.MaxInt16)
}

func magnitude(s int16) float64 {
	if s < 0 {
		return -float64(s) / 32768
	}
	return float64(s) / math.MaxInt16
}

// gate keeps whole frames in which at least one channel's magnitude reaches
// threshold, compacting samples in place. Frames stay intact so channel
// interleaving survives; for mono this is a per-sample squelch.
func gate(samples []int16, channels int, threshold float64) []int16 {
	if threshold <= 0 {
		return samples
	}
	if channels < 1 {
		channels = 1
	}
	out := samples[:0]
	for i := 0; i+channels <= len(samples); i += channels {
		frame := samples[i : i+channels]
		for _, s := range frame {
			if magnitude(s) >= threshold {
				out = append(out, frame...)
				break
			}
		}
	}
	return out
}

// peakTracker records the loudest sample seen and logs it once per interval,
// including during silence that the gate discards.
type peakTracker struct {
	interval time.Duration
	now      func() time.Time
	last     time.Time
	peak     float64
	report   func(peak float64)
}

func newPeakTracker(interval time.Duration, now func() time.Time, report func(float64)) *peakTracker {
	if report == nil {
		report = logPeak
	}
	return &peakTracker{interval: interval, now: now, last: now(), report: report}
}

func logPeak(peak float64) {
	slog.Info("recording level", "peak_amplitude", math.Round(peak*1e4)/1e4)
}

func (p *peakTracker) observe(samples []int16) {
	for _, s := range samples {
		if m := magnitude(s); m > p.peak {
			p.peak = m
		}
	}
	if p.interval <= 0 {
		return
	}
	if now := p.now(); now.Sub(p.last) >= p.interval {
		p.report(p.peak)
		p.peak = 0
		p.last = now
	}
}
