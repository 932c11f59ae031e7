package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Strob0t/lifelog/internal/fsutil"
)

// PartSuffix marks a capture file that is still being written or was left
// behind by a crash.
const PartSuffix = ".part"

// ErrNotWAV is returned by RepairHeader for files without a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a RIFF/WAVE file")

// PartPath returns the provisional path for a final capture path.
func PartPath(final string) string { return final + PartSuffix }

// IsPartPath reports whether path names a provisional capture file.
func IsPartPath(path string) bool { return strings.HasSuffix(path, PartSuffix) }

// Finalize repairs the header of a provisional capture file, renames it to
// its final name and syncs the directory. It returns the final path.
func Finalize(partPath string) (string, error) {
	if !IsPartPath(partPath) {
		return "", fmt.Errorf("finalize %s: missing %s suffix", partPath, PartSuffix)
	}
	if err := RepairHeader(partPath); err != nil {
		return "", fmt.Errorf("finalize %s: %w", partPath, err)
	}
	final := strings.TrimSuffix(partPath, PartSuffix)
	if err := fsutil.RenameDurable(partPath, final); err != nil {
		return "", fmt.Errorf("finalize %s: %w", partPath, err)
	}
	return final, nil
}

// RepairHeader rewrites the RIFF and data chunk sizes of a WAV file from its
// actual length. A writer killed mid-session never patches these sizes, and
// decoders then see an empty or truncated stream.
func RepairHeader(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0) //nolint:gosec // G304: internal path
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	var hdr [12]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrNotWAV, err) //nolint:errorlint // sentinel carries the match
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return ErrNotWAV
	}

	pos := int64(12)
	for pos+8 <= size {
		var ch [8]byte
		if _, err := f.ReadAt(ch[:], pos); err != nil {
			return fmt.Errorf("read chunk at %d: %w", pos, err)
		}
		if string(ch[0:4]) == "data" {
			dataLen := size - pos - 8
			if dataLen > 0xFFFFFFFF-36 {
				dataLen = 0xFFFFFFFF - 36
			}
			if err := putUint32(f, pos+4, uint32(dataLen)); err != nil { //nolint:gosec // bounded above
				return err
			}
			if err := putUint32(f, 4, uint32(pos+8+dataLen-8)); err != nil { //nolint:gosec // bounded above
				return err
			}
			return f.Sync()
		}
		chunkLen := int64(binary.LittleEndian.Uint32(ch[4:8]))
		pos += 8 + chunkLen + chunkLen%2
	}
	return fmt.Errorf("%w: no data chunk", ErrNotWAV)
}

func putUint32(f *os.File, off int64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	if _, err := f.WriteAt(b[:], off); err != nil {
		return fmt.Errorf("patch header at %d: %w", off, err)
	}
	return nil
}
