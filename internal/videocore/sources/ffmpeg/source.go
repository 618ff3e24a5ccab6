// Package ffmpeg captures raw video frames from camera devices through an
// ffmpeg child process, and enumerates V4L2 capture hardware.
package ffmpeg

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/sentinelvision/sentinel-go/internal/errors"
	"github.com/sentinelvision/sentinel-go/internal/logging"
	"github.com/sentinelvision/sentinel-go/internal/videocore"
)

const (
	defaultWidth     = 640
	defaultHeight    = 480
	defaultFrameRate = 30

	// ringFrames is how many frames the intermediate buffer can hold
	// between the process reader and the frame assembler.
	ringFrames = 4
)

// Factory opens ffmpeg-backed capture streams.
type Factory struct {
	// FfmpegPath is the ffmpeg binary, "ffmpeg" resolved from PATH when
	// empty.
	FfmpegPath string
}

// NewSource creates an unopened source bound to a device id.
func (f *Factory) NewSource(deviceID string, config videocore.CaptureConfig) (videocore.FrameSource, error) {
	if deviceID == "" {
		return nil, errors.Newf("device id is empty").
			Component("ffmpeg").
			Category(errors.CategoryValidation).
			Build()
	}
	if config.Width <= 0 {
		config.Width = defaultWidth
	}
	if config.Height <= 0 {
		config.Height = defaultHeight
	}
	if config.FrameRate <= 0 {
		config.FrameRate = defaultFrameRate
	}
	path := f.FfmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	logger := logging.ForService("ffmpeg")
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		deviceID:   deviceID,
		cfg:        config,
		ffmpegPath: path,
		frames:     make(chan videocore.Frame, 1),
		errs:       make(chan error, 1),
		logger:     logger,
	}, nil
}

// Source is one open camera stream. Frames are RGB24 at the configured
// resolution; a frame the consumer has not drained yet is replaced by the
// next one rather than queued.
type Source struct {
	deviceID   string
	cfg        videocore.CaptureConfig
	ffmpegPath string

	frames chan videocore.Frame
	errs   chan error

	cmd    *exec.Cmd
	cancel context.CancelFunc
	ring   *ringbuffer.RingBuffer
	wg     sync.WaitGroup

	ready     atomic.Bool
	closeOnce sync.Once
	logger    *slog.Logger
}

// DeviceID returns the bound device id.
func (s *Source) DeviceID() string { return s.deviceID }

// Open starts the ffmpeg process and the frame pipeline.
func (s *Source) Open(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	size := strconv.Itoa(s.cfg.Width) + "x" + strconv.Itoa(s.cfg.Height)
	cmd := exec.CommandContext(runCtx, s.ffmpegPath,
		"-f", "v4l2",
		"-framerate", strconv.Itoa(s.cfg.FrameRate),
		"-video_size", size,
		"-i", s.deviceID,
		"-loglevel", "error",
		"-hide_banner",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return errors.New(err).
			Component("ffmpeg").
			Category(errors.CategoryCapture).
			Context("operation", "create_pipe").
			Context("device_id", s.deviceID).
			Build()
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return errors.New(err).
			Component("ffmpeg").
			Category(errors.CategoryCapture).
			Context("operation", "start_ffmpeg").
			Context("device_id", s.deviceID).
			Build()
	}
	s.cmd = cmd
	s.logger.Info("capture started",
		"device_id", s.deviceID,
		"size", size,
		"framerate", s.cfg.FrameRate)

	frameSize := s.cfg.Width * s.cfg.Height * 3
	s.ring = ringbuffer.New(frameSize * ringFrames)
	s.ring.SetBlocking(true)

	// Reader drains the process into the ring so a slow consumer cannot
	// stall the child's stdout pipe for long.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, copyErr := io.Copy(s.ring, stdout)
		s.ring.CloseWriter()

		waitErr := cmd.Wait()
		if runCtx.Err() != nil {
			return
		}
		err := waitErr
		if err == nil {
			err = copyErr
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		select {
		case s.errs <- errors.New(err).
			Component("ffmpeg").
			Category(errors.CategoryCapture).
			Context("operation", "capture_stream").
			Context("device_id", s.deviceID).
			Build():
		default:
		}
	}()

	// Assembler cuts the byte stream into frames.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.frames)
		for {
			buf := make([]byte, frameSize)
			if _, err := io.ReadFull(s.ring, buf); err != nil {
				return
			}
			s.ready.Store(true)

			frame := videocore.Frame{
				Pixels:    buf,
				Width:     s.cfg.Width,
				Height:    s.cfg.Height,
				Timestamp: time.Now(),
				DeviceID:  s.deviceID,
			}
			// Latest-frame semantics: drop the undrained frame.
			select {
			case s.frames <- frame:
			default:
				select {
				case <-s.frames:
				default:
				}
				select {
				case s.frames <- frame:
				default:
				}
			}
		}
	}()

	return nil
}

// Frames returns the captured frame channel. It is closed on teardown.
func (s *Source) Frames() <-chan videocore.Frame { return s.frames }

// Errors returns the hardware error channel.
func (s *Source) Errors() <-chan error { return s.errs }

// Ready reports whether at least one full frame has been captured.
func (s *Source) Ready() bool { return s.ready.Load() }

// Dimensions returns the frame size, zero until the stream is ready.
func (s *Source) Dimensions() (int, int) {
	if !s.ready.Load() {
		return 0, 0
	}
	return s.cfg.Width, s.cfg.Height
}

// Close kills the ffmpeg process and releases the device. Idempotent.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.ring != nil {
			// Unblock the assembler if the reader is already gone.
			s.ring.CloseWriter()
		}
		s.wg.Wait()
		s.logger.Info("capture stopped", "device_id", s.deviceID)
	})
	return nil
}
