package capture

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeTruncated writes a WAV whose header still carries the sizes of an
// empty stream, the way a killed recorder leaves it.
func writeTruncated(t *testing.T, path string, samples []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{Format: &audio.Format{NumChannels: 1, SampleRate: 16000}, SourceBitDepth: 16}); err != nil {
		t.Fatal(err)
	}
	hdr, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	body := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(body[2*i:], uint16(int16(s))) //nolint:gosec // test data fits
	}
	if err := os.WriteFile(path, append(hdr, body...), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestRepairHeaderRecoversSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "20250101_120000.wav.part")
	want := []int{1, -2, 300, -4000, 32767}
	writeTruncated(t, path, want)

	if err := RepairHeader(path); err != nil {
		t.Fatalf("RepairHeader: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); int(got) != len(data)-8 {
		t.Errorf("riff size = %d, want %d", got, len(data)-8)
	}

	got := readWAV(t, path)
	if len(got) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFinalizeRenamesPart(t *testing.T) {
	dir := t.TempDir()
	part := filepath.Join(dir, "20250101_120000.wav.part")
	writeTruncated(t, part, []int{10, 20})

	final, err := Finalize(part)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if final != filepath.Join(dir, "20250101_120000.wav") {
		t.Errorf("final = %s", final)
	}
	if _, err := os.Stat(part); !os.IsNotExist(err) {
		t.Errorf("part file still present: %v", err)
	}
}

func TestFinalizeRejectsFinalPath(t *testing.T) {
	if _, err := Finalize(filepath.Join(t.TempDir(), "x.wav")); err == nil {
		t.Fatal("expected error for path without .part suffix")
	}
}

func TestRepairHeaderNotWAV(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"short.part": "RIF",
		"text.part":  "this is not audio at all",
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := RepairHeader(path); !errors.Is(err, ErrNotWAV) {
			t.Errorf("%s: expected ErrNotWAV, got %v", name, err)
		}
	}
}

func TestPartPath(t *testing.T) {
	p := PartPath("/r/20250101_120000.wav")
	if p != "/r/20250101_120000.wav.part" || !IsPartPath(p) {
		t.Fatalf("PartPath = %s", p)
	}
	if IsPartPath("/r/20250101_120000.wav") {
		t.Fatal("final path reported as part")
	}
}
