package capture

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

type fakeStream struct {
	mu      sync.Mutex
	started bool
	closed  bool
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeBackend struct {
	devices []DeviceInfo
	opens   int
	cfg     StreamConfig
	stream  *fakeStream
	onData  func([]byte)
	onError func(error)
}

func (b *fakeBackend) Devices() ([]DeviceInfo, error) { return b.devices, nil }

func (b *fakeBackend) Open(cfg StreamConfig, onData func([]byte), onError func(error)) (Stream, error) {
	b.opens++
	b.cfg = cfg
	b.onData = onData
	b.onError = onError
	b.stream = &fakeStream{}
	return b.stream, nil
}

func mic(formats ...NativeFormat) *fakeBackend {
	return &fakeBackend{devices: []DeviceInfo{
		{ID: "hdmi", Name: "HDMI Output Monitor", Formats: []NativeFormat{{Format: FormatF32, Channels: 2, SampleRate: 48000}}},
		{ID: "usb", Name: "USB Microphone", IsDefault: true, Formats: formats},
	}}
}

func s16(samples ...int16) []byte {
	b := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	return b
}

var monoOpts = Options{SampleRate: 16000, Channels: 1, AmplitudeGate: 0.02}

func readWAV(t *testing.T, path string) []int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatalf("%s is not a valid wav file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	if int(d.SampleRate) != 16000 || int(d.NumChans) != 1 || int(d.BitDepth) != 16 {
		t.Fatalf("unexpected format %d Hz x %d ch x %d bit", d.SampleRate, d.NumChans, d.BitDepth)
	}
	return buf.Data
}

func TestStartStopWritesGatedSamples(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "20250101_120000.wav")
	b := mic(NativeFormat{Format: FormatS16, Channels: 1, SampleRate: 16000})
	c := NewController(b)

	if err := c.Start(path, monoOpts); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.Active() {
		t.Fatal("expected active after Start")
	}
	if _, err := os.Stat(PartPath(path)); err != nil {
		t.Fatalf("part file should exist while recording: %v", err)
	}
	if b.cfg.DeviceID != "usb" || b.cfg.Format != FormatS16 {
		t.Fatalf("unexpected stream config %+v", b.cfg)
	}

	// 0.02 * 32767 ~= 655; quieter samples are squelched.
	b.onData(s16(100, 1000, -2000, 600, 32767))

	final, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if final != path {
		t.Fatalf("Stop returned %q, want %q", final, path)
	}
	if c.Active() {
		t.Fatal("expected inactive after Stop")
	}
	if _, err := os.Stat(PartPath(path)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("part file should be renamed, got %v", err)
	}

	got := readWAV(t, path)
	want := []int{1000, -2000, 32767}
	if len(got) != len(want) {
		t.Fatalf("got samples %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got samples %v, want %v", got, want)
		}
	}
	if !b.stream.closed {
		t.Fatal("stream should be closed")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	b := mic(NativeFormat{Format: FormatS16})
	c := NewController(b)

	first := filepath.Join(dir, "a.wav")
	if err := c.Start(first, monoOpts); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(filepath.Join(dir, "b.wav"), monoOpts); err != nil {
		t.Fatalf("second Start should be a no-op, got %v", err)
	}
	if b.opens != 1 {
		t.Fatalf("expected exactly one device open, got %d", b.opens)
	}

	final, err := c.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if final != first {
		t.Fatalf("expected first session path, got %q", final)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.wav.part")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("second Start must not create a file")
	}
}

func TestStartRefusesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "20260102_030405.wav")
	if err := os.WriteFile(PartPath(path), []byte("live"), 0o600); err != nil {
		t.Fatal(err)
	}
	b := mic(NativeFormat{Format: FormatS16})
	c := NewController(b)

	if err := c.Start(path, monoOpts); !errors.Is(err, os.ErrExist) {
		t.Fatalf("existing part file: expected ErrExist, got %v", err)
	}
	if got, _ := os.ReadFile(PartPath(path)); string(got) != "live" {
		t.Fatalf("existing part file was truncated: %q", got)
	}

	done := filepath.Join(dir, "20260102_030406.wav")
	if err := os.WriteFile(done, []byte("done"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(done, monoOpts); !errors.Is(err, os.ErrExist) {
		t.Fatalf("existing recording: expected ErrExist, got %v", err)
	}
	if b.opens != 0 || c.Active() {
		t.Fatal("no session may start over an existing file")
	}
}

func TestStopWithoutSession(t *testing.T) {
	c := NewController(mic())
	final, err := c.Stop()
	if final != "" || err != nil {
		t.Fatalf("expected empty result, got %q, %v", final, err)
	}
}

func TestStartUnsupportedConfigFailsFast(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.wav")
	b := mic(NativeFormat{Format: FormatF32, Channels: 2, SampleRate: 48000})
	c := NewController(b)

	err := c.Start(path, monoOpts)
	if !errors.Is(err, ErrUnsupportedConfig) {
		t.Fatalf("expected ErrUnsupportedConfig, got %v", err)
	}
	if b.opens != 0 {
		t.Fatal("device must not be opened with a substituted configuration")
	}
	if c.Active() {
		t.Fatal("controller must stay inactive")
	}
	if _, err := os.Stat(PartPath(path)); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("no part file may be left behind")
	}
}

func TestStartDeviceSelection(t *testing.T) {
	b := mic(NativeFormat{Format: FormatS16})
	b.devices[0].Formats = append(b.devices[0].Formats, NativeFormat{Format: FormatS16})
	c := NewController(b)

	opts := monoOpts
	opts.Device = "hdmi"
	if err := c.Start(filepath.Join(t.TempDir(), "a.wav"), opts); err != nil {
		t.Fatal(err)
	}
	if b.cfg.DeviceID != "hdmi" {
		t.Fatalf("expected hdmi device, got %q", b.cfg.DeviceID)
	}
	_, _ = c.Stop()

	opts.Device = "bluetooth"
	err := c.Start(filepath.Join(t.TempDir(), "b.wav"), opts)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestProducerDeathAbandonsSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "20250101_120000.wav")
	b := mic(NativeFormat{Format: FormatS16})
	c := NewController(b)

	if err := c.Start(path, monoOpts); err != nil {
		t.Fatal(err)
	}
	b.onData(s16(5000, 6000))
	b.onError(errors.New("device unplugged"))

	deadline := time.Now().Add(2 * time.Second)
	for c.Active() {
		if time.Now().After(deadline) {
			t.Fatal("producer did not stop after stream error")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := c.Stop()
	if !errors.Is(err, ErrAbandoned) {
		t.Fatalf("expected ErrAbandoned, got %v", err)
	}
	if _, err := os.Stat(PartPath(path)); err != nil {
		t.Fatalf("part file must remain for recovery: %v", err)
	}

	// The abandoned file is recoverable.
	final, err := Finalize(PartPath(path))
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if final != path {
		t.Fatalf("unexpected final path %q", final)
	}
}

func TestDecodeFormats(t *testing.T) {
	f32 := make([]byte, 12)
	binary.LittleEndian.PutUint32(f32[0:], math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(f32[4:], math.Float32bits(-1.5))
	binary.LittleEndian.PutUint32(f32[8:], math.Float32bits(float32(math.NaN())))

	s32 := make([]byte, 4)
	binary.LittleEndian.PutUint32(s32, uint32(0x40000000))

	tests := []struct {
		name   string
		raw    []byte
		format SampleFormat
		want   []int16
	}{
		{"u8", []byte{0, 128, 255}, FormatU8, []int16{-32768, 0, 32512}},
		{"s16", s16(-5, 1234), FormatS16, []int16{-5, 1234}},
		{"s24", []byte{0x00, 0x00, 0x80, 0xff, 0xff, 0x7f}, FormatS24, []int16{-32768, 32767}},
		{"s32", s32, FormatS32, []int16{16384}},
		{"f32", f32, FormatF32, []int16{16383, -32767, 0}},
		{"trailing partial sample", []byte{1, 0, 7}, FormatS16, []int16{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decode(nil, tt.raw, tt.format)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestGateKeepsWholeFrames(t *testing.T) {
	// Stereo: the first frame is loud only on the right channel.
	samples := []int16{0, 20000, 10, -10, -30000, 0}
	got := gate(samples, 2, 0.02)
	want := []int16{0, 20000, -30000, 0}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestGateBoundaryIsInclusive(t *testing.T) {
	threshold := magnitude(655)
	if got := gate([]int16{655, 654}, 1, threshold); len(got) != 1 || got[0] != 655 {
		t.Fatalf("a sample equal to the gate must be kept, got %v", got)
	}
}

func TestPeakTrackerReportsAndResets(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var reports []float64
	p := newPeakTracker(10*time.Second, func() time.Time { return now }, func(peak float64) {
		reports = append(reports, peak)
	})

	p.observe([]int16{100, -16384})
	if len(reports) != 0 {
		t.Fatal("no report before the interval elapses")
	}

	now = now.Add(10 * time.Second)
	p.observe([]int16{10})
	if len(reports) != 1 || reports[0] != 0.5 {
		t.Fatalf("expected one report of 0.5, got %v", reports)
	}

	now = now.Add(10 * time.Second)
	p.observe([]int16{0})
	if len(reports) != 2 || reports[1] != 0 {
		t.Fatalf("peak must reset after each report, got %v", reports)
	}
}
