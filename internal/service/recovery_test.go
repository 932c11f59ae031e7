package service

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Strob0t/lifelog/internal/domain/task"
	"github.com/Strob0t/lifelog/internal/fsutil"
)

// partialWAV returns a 16 kHz mono PCM header with zero sizes followed by n
// silent samples, as left by a killed recorder.
func partialWAV(n int) []byte {
	b := make([]byte, 44+2*n)
	copy(b[0:], "RIFF")
	copy(b[8:], "WAVE")
	copy(b[12:], "fmt ")
	binary.LittleEndian.PutUint32(b[16:], 16)
	binary.LittleEndian.PutUint16(b[20:], 1)
	binary.LittleEndian.PutUint16(b[22:], 1)
	binary.LittleEndian.PutUint32(b[24:], 16000)
	binary.LittleEndian.PutUint32(b[28:], 32000)
	binary.LittleEndian.PutUint16(b[32:], 2)
	binary.LittleEndian.PutUint16(b[34:], 16)
	copy(b[36:], "data")
	return b
}

func TestRecoveryFinalizesAndEnqueuesOnce(t *testing.T) {
	dir := t.TempDir()
	part := filepath.Join(dir, "20260314_210002.wav.part")
	if err := os.WriteFile(part, partialWAV(160), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "20260313_080000.wav"), partialWAV(1), 0o600); err != nil {
		t.Fatal(err)
	}

	q := &fakeEnqueuer{}
	n, err := NewRecovery(dir, q).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 1 || len(q.tasks) != 1 {
		t.Fatalf("recovered %d, enqueued %d; want 1 and 1", n, len(q.tasks))
	}
	final := filepath.Join(dir, "20260314_210002.wav")
	got := q.tasks[0]
	if got.TaskType != task.TypeProcessSession || len(got.FilePaths) != 1 || got.FilePaths[0] != final {
		t.Fatalf("unexpected task %+v", got)
	}
	if _, err := os.Stat(part); !os.IsNotExist(err) {
		t.Error(".part file should be gone")
	}
	data, err := os.ReadFile(final)
	if err != nil {
		t.Fatal(err)
	}
	if size := binary.LittleEndian.Uint32(data[40:44]); size != 320 {
		t.Errorf("data size = %d, want 320", size)
	}

	// A second run finds nothing.
	n, err = NewRecovery(dir, q).Run(context.Background())
	if err != nil || n != 0 || len(q.tasks) != 1 {
		t.Fatalf("second run: n=%d err=%v tasks=%d", n, err, len(q.tasks))
	}
}

func TestRecoverySkipsUnrepairableFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20260314_100000.wav.part"), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "20260314_110000.wav.part"), partialWAV(10), 0o600); err != nil {
		t.Fatal(err)
	}

	q := &fakeEnqueuer{}
	n, err := NewRecovery(dir, q).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 1 {
		t.Fatalf("recovered %d, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "20260314_100000.wav.part")); err != nil {
		t.Errorf("unrepairable file should stay for inspection: %v", err)
	}
}

func TestRecoveryEnqueueFailure(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20260314_110000.wav.part"), partialWAV(10), 0o600); err != nil {
		t.Fatal(err)
	}
	errDisk := errors.New("disk full")
	_, err := NewRecovery(dir, &fakeEnqueuer{err: errDisk}).Run(context.Background())
	if !errors.Is(err, errDisk) {
		t.Fatalf("expected disk error, got %v", err)
	}
}

func TestRecoveryMissingDir(t *testing.T) {
	n, err := NewRecovery(filepath.Join(t.TempDir(), "absent"), &fakeEnqueuer{}).Run(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestLockCaptureRefusesSecondRecorder(t *testing.T) {
	dir := t.TempDir()
	part := filepath.Join(dir, "20260315_090000.wav.part")
	if err := os.WriteFile(part, partialWAV(10), 0o600); err != nil {
		t.Fatal(err)
	}

	held, err := LockCapture(dir)
	if err != nil {
		t.Fatalf("LockCapture: %v", err)
	}
	defer func() { _ = held.Release() }()

	if _, err := LockCapture(dir); !errors.Is(err, fsutil.ErrLocked) {
		t.Fatalf("second LockCapture: expected ErrLocked, got %v", err)
	}
	// The live session's file is only touched by the lock holder.
	if _, err := os.Stat(part); err != nil {
		t.Fatalf("part file must be left alone: %v", err)
	}
	if got := held.Path(); got != filepath.Join(dir, CaptureLockFile) {
		t.Fatalf("lock path = %s", got)
	}
}

func TestLockWorkerRefusesSecondWorker(t *testing.T) {
	tasksFile := filepath.Join(t.TempDir(), "tasks.json")
	held, err := LockWorker(tasksFile)
	if err != nil {
		t.Fatalf("LockWorker: %v", err)
	}
	if _, err := LockWorker(tasksFile); !errors.Is(err, fsutil.ErrLocked) {
		t.Fatalf("second LockWorker: expected ErrLocked, got %v", err)
	}
	_ = held.Release()
	again, err := LockWorker(tasksFile)
	if err != nil {
		t.Fatalf("LockWorker after release: %v", err)
	}
	_ = again.Release()
}
