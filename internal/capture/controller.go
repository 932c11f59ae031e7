package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	bitDepth       = 16
	wavFormatPCM   = 1
	chunkQueueSize = 256
)

// Options configures one capture session.
type Options struct {
	SampleRate      int
	Channels        int
	Device          string  // substring of the device name; empty selects the default
	AmplitudeGate   float64 // frames quieter than this (0..1) are not persisted
	PeakLogInterval time.Duration
}

// session is the state of one active capture, owned by the Controller.
type session struct {
	final   string
	part    string
	started time.Time

	stream Stream
	file   *os.File
	enc    *wav.Encoder
	opts   Options
	format SampleFormat

	chunks    chan []byte
	streamErr chan error
	stop      chan struct{}
	done      chan struct{}
	alive     atomic.Bool
	err       error // set by the producer before done is closed
	dropped   atomic.Int64
}

// Controller starts and stops capture sessions on a Backend.
type Controller struct {
	backend Backend
	now     func() time.Time

	mu      sync.Mutex
	session *session
	onPeak  func(peak float64)
}

// NewController creates a controller for backend.
func NewController(backend Backend) *Controller {
	return &Controller{backend: backend, now: time.Now}
}

// Start begins capturing into PartPath(path). It is a no-op while a session
// is active. The device is opened before Start returns, so configuration
// errors (ErrUnsupportedConfig, ErrDeviceNotFound) surface synchronously.
func (c *Controller) Start(path string, opts Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return nil
	}

	devices, err := c.backend.Devices()
	if err != nil {
		return fmt.Errorf("list capture devices: %w", err)
	}
	dev, err := SelectDevice(devices, opts.Device)
	if err != nil {
		return err
	}
	format, err := SelectFormat(dev, opts.SampleRate, opts.Channels)
	if err != nil {
		return err
	}

	s := &session{
		final:     path,
		part:      PartPath(path),
		started:   c.now(),
		opts:      opts,
		format:    format,
		chunks:    make(chan []byte, chunkQueueSize),
		streamErr: make(chan error, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create recordings dir: %w", err)
	}
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("create %s: %w", path, os.ErrExist)
	}
	f, err := os.OpenFile(s.part, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // G304: path built from config
	if err != nil {
		return fmt.Errorf("create %s: %w", s.part, err)
	}
	s.file = f
	s.enc = wav.NewEncoder(f, opts.SampleRate, bitDepth, opts.Channels, wavFormatPCM)
	// Write the header now so even an immediately interrupted session leaves
	// a file that RepairHeader can fix.
	if err := s.enc.Write(s.buffer(nil)); err != nil {
		s.discard()
		return fmt.Errorf("write wav header: %w", err)
	}

	stream, err := c.backend.Open(StreamConfig{
		DeviceID:   dev.ID,
		SampleRate: opts.SampleRate,
		Channels:   opts.Channels,
		Format:     format,
	}, s.onData, s.onError)
	if err != nil {
		s.discard()
		return fmt.Errorf("open %q: %w", dev.Name, err)
	}
	s.stream = stream
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		s.discard()
		return fmt.Errorf("start %q: %w", dev.Name, err)
	}

	s.alive.Store(true)
	var report func(float64)
	if fn := c.onPeak; fn != nil {
		report = func(peak float64) {
			logPeak(peak)
			fn(peak)
		}
	}
	go s.produce(newPeakTracker(opts.PeakLogInterval, c.now, report))
	c.session = s

	slog.Info("capture started", "path", s.part, "device", dev.Name, "format", format.String(),
		"sample_rate", opts.SampleRate, "channels", opts.Channels)
	return nil
}

// Stop ends the active session, waits for the producer to flush and close
// the file, then atomically renames it to its final name. It returns "" and
// nil when no session was active. If the producer had already died the
// provisional file is left in place and ErrAbandoned is returned.
func (c *Controller) Stop() (string, error) {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()

	if s == nil {
		return "", nil
	}

	if err := s.stream.Close(); err != nil {
		slog.Warn("capture: close stream", "error", err)
	}
	close(s.stop)
	<-s.done

	if s.err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrAbandoned, s.part, s.err) //nolint:errorlint // sentinel carries the match
	}

	final, err := Finalize(s.part)
	if err != nil {
		return "", err
	}
	if n := s.dropped.Load(); n > 0 {
		slog.Warn("capture: chunks dropped while the writer was busy", "path", final, "dropped", n)
	}
	slog.Info("capture stopped", "path", final, "duration", c.now().Sub(s.started).Round(time.Second))
	return final, nil
}

// OnPeak registers fn to receive every reported peak level of later
// sessions, in addition to the log line.
func (c *Controller) OnPeak(fn func(peak float64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPeak = fn
}

// Active reports whether a session exists and its producer is still running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.session.alive.Load()
}

// Devices lists input devices and their native formats for diagnostics.
func (c *Controller) Devices() ([]DeviceInfo, error) {
	return c.backend.Devices()
}

// onData runs on the device callback thread and must not block.
func (s *session) onData(raw []byte) {
	buf := make([]byte, len(raw))
	copy(buf, raw)
	select {
	case s.chunks <- buf:
	default:
		s.dropped.Add(1)
	}
}

func (s *session) onError(err error) {
	if err == nil {
		err = ErrDeviceStopped
	}
	select {
	case s.streamErr <- err:
	default:
	}
}

func (s *session) produce(peaks *peakTracker) {
	defer close(s.done)
	defer s.alive.Store(false)

	var samples []int16
	write := func(raw []byte) error {
		samples = decode(samples[:0], raw, s.format)
		peaks.observe(samples)
		kept := gate(samples, s.opts.Channels, s.opts.AmplitudeGate)
		if len(kept) == 0 {
			return nil
		}
		return s.enc.Write(s.buffer(kept))
	}

	var runErr error
loop:
	for {
		select {
		case raw := <-s.chunks:
			if err := write(raw); err != nil {
				runErr = fmt.Errorf("write samples: %w", err)
				break loop
			}
		case err := <-s.streamErr:
			runErr = err
			break loop
		case <-s.stop:
			// The stream is closed; flush what it already delivered.
			for {
				select {
				case raw := <-s.chunks:
					if err := write(raw); err != nil {
						runErr = fmt.Errorf("write samples: %w", err)
						break loop
					}
				default:
					break loop
				}
			}
		}
	}

	if err := s.enc.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close wav encoder: %w", err)
	}
	if err := s.file.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close %s: %w", s.part, err)
	}
	if runErr != nil {
		slog.Error("capture producer stopped", "path", s.part, "error", runErr)
	}
	s.err = runErr
}

func (s *session) buffer(data []int16) *audio.IntBuffer {
	ints := make([]int, len(data))
	for i, v := range data {
		ints[i] = int(v)
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: s.opts.Channels, SampleRate: s.opts.SampleRate},
		Data:           ints,
		SourceBitDepth: bitDepth,
	}
}

// discard removes a provisional file that never received a stream.
func (s *session) discard() {
	if s.file != nil {
		_ = s.file.Close()
	}
	if err := os.Remove(s.part); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("capture: remove unused part file", "path", s.part, "error", err)
	}
}
