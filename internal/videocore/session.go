package videocore

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sentinelvision/sentinel-go/internal/errors"
	"github.com/sentinelvision/sentinel-go/internal/logging"
	"github.com/sentinelvision/sentinel-go/internal/observability/metrics"
)

// SessionState is the lifecycle phase of a detector session.
type SessionState string

const (
	StateIdle         SessionState = "idle"
	StateAcquiring    SessionState = "acquiring"
	StateLoadingModel SessionState = "loading-model"
	StateDetecting    SessionState = "detecting"
	StateSwitching    SessionState = "switching"
	StateTearingDown  SessionState = "tearing-down"
	StateError        SessionState = "error"
)

// SessionConfig carries the lifecycle tuning for one session.
type SessionConfig struct {
	Capture              CaptureConfig
	SwitchSettle         time.Duration
	RecoverySettle       time.Duration
	FailoverDelay        time.Duration
	MaxInferenceFailures int
	HighConfidence       float64
}

func (c *SessionConfig) withDefaults() {
	if c.SwitchSettle <= 0 {
		c.SwitchSettle = DefaultSwitchSettle
	}
	if c.RecoverySettle <= 0 {
		c.RecoverySettle = DefaultRecoverySettle
	}
	if c.FailoverDelay <= 0 {
		c.FailoverDelay = DefaultFailoverDelay
	}
	if c.MaxInferenceFailures <= 0 {
		c.MaxInferenceFailures = DefaultMaxInferenceFailures
	}
	if c.HighConfidence <= 0 {
		c.HighConfidence = DefaultHighConfidence
	}
}

// SessionDeps are the collaborators a session drives.
type SessionDeps struct {
	Sources   SourceFactory
	Detectors DetectorFactory
	Renderer  *Renderer
	Surface   Surface
	Pause     *PauseCoordinator
	History   HistoryRecorder // optional
	UserID    string
	Devices   []Device // failover candidates, enumeration order
	Clock     clock.Clock
	Metrics   *metrics.VideoCoreMetrics
	Logger    *slog.Logger
}

// Session owns one camera stream's full lifecycle: acquire stream, load the
// model, run the inference loop, render results, and release every resource
// on teardown or device switch.
//
// The inference loop is frame-ready driven and strictly sequential: a new
// tick starts only after the previous tick's render step has run. A
// generation counter invalidates ticks that resolve after a switch or
// teardown was requested, so stale completions never act on released
// resources.
type Session struct {
	cfg  SessionConfig
	deps SessionDeps

	mu          sync.Mutex
	state       SessionState
	loading     bool
	lastErr     error
	deviceID    string
	cameraIndex int
	source      FrameSource
	detector    Detector
	runCancel   context.CancelFunc
	baseCtx     context.Context

	sensitivityBits atomic.Uint64
	generation      atomic.Int64
	disposed        atomic.Bool
	wg              sync.WaitGroup

	logger *slog.Logger
}

// NewSession creates an idle session. Call Start to bind it to a device.
func NewSession(cfg SessionConfig, deps SessionDeps) *Session {
	cfg.withDefaults()
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.ForService("videocore")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg:    cfg,
		deps:   deps,
		state:  StateIdle,
		logger: logger,
	}
	s.sensitivityBits.Store(math.Float64bits(DefaultSensitivity))
	return s
}

// Start binds the session to a device and begins detecting. Any previously
// held stream is fully released before the new one is acquired.
func (s *Session) Start(ctx context.Context, deviceID string, cameraIndex int, sensitivity float64) error {
	if s.disposed.Load() {
		return ErrSessionDisposed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.baseCtx = ctx
	s.cameraIndex = cameraIndex
	s.sensitivityBits.Store(math.Float64bits(sensitivity))

	return s.startLocked(deviceID)
}

// startLocked runs the Acquiring -> LoadingModel -> Detecting sequence.
// Caller holds s.mu.
func (s *Session) startLocked(deviceID string) error {
	s.state = StateAcquiring
	s.loading = true
	s.lastErr = nil

	// Release-before-reacquire: a stream left open can strand the camera
	// in an unusable state, especially virtual cameras.
	s.releaseLocked()

	source, err := s.deps.Sources.NewSource(deviceID, s.cfg.Capture)
	if err != nil {
		return s.failLocked(err, errors.CategoryCapture, "create_source", deviceID)
	}
	if err := source.Open(s.baseCtx); err != nil {
		return s.failLocked(err, errors.CategoryCapture, "open_stream", deviceID)
	}
	s.source = source
	s.deviceID = deviceID

	s.state = StateLoadingModel
	detector, err := s.deps.Detectors.NewDetector()
	if err == nil {
		err = detector.Initialize(s.baseCtx)
	}
	if err != nil {
		_ = source.Close()
		s.source = nil
		s.state = StateError
		s.loading = false
		s.lastErr = ErrModelLoadFailed
		s.logger.Error("failed to load model",
			"device_id", deviceID,
			"camera_index", s.cameraIndex,
			"error", err)
		if s.deps.Metrics != nil {
			s.deps.Metrics.SessionStartsTotal.WithLabelValues("error").Inc()
		}
		return ErrModelLoadFailed
	}
	s.detector = detector

	s.state = StateDetecting
	s.loading = false

	gen := s.generation.Add(1)
	runCtx, cancel := context.WithCancel(s.baseCtx)
	s.runCancel = cancel

	s.wg.Add(1)
	go s.run(runCtx, gen, source, detector)

	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionStartsTotal.WithLabelValues("success").Inc()
		s.deps.Metrics.SessionsActive.Inc()
	}
	s.logger.Info("detector session started",
		"device_id", deviceID,
		"camera_index", s.cameraIndex)
	return nil
}

func (s *Session) failLocked(err error, category errors.ErrorCategory, operation, deviceID string) error {
	s.state = StateError
	s.loading = false
	built := errors.New(err).
		Component(ComponentVideoCore).
		Category(category).
		Context("operation", operation).
		Context("device_id", deviceID).
		Context("camera_index", s.cameraIndex).
		Build()
	s.lastErr = built
	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionStartsTotal.WithLabelValues("error").Inc()
	}
	return built
}

// run is the inference loop for one stream generation. It exits when the
// context is cancelled, the generation is superseded, the frame channel
// closes, or recovery/failover takes over.
func (s *Session) run(ctx context.Context, gen int64, source FrameSource, detector Detector) {
	defer s.wg.Done()

	failures := 0
	errs := source.Errors()
	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-source.Frames():
			if !ok {
				return
			}
			if s.generation.Load() != gen {
				// Stale frame delivered after a switch was requested.
				return
			}
			// Camera warm-up window: dimensions are transiently invalid.
			if !source.Ready() || frame.Width == 0 || frame.Height == 0 {
				s.tickMetric("skipped")
				continue
			}

			start := s.deps.Clock.Now()
			detections, err := detector.Detect(ctx, &frame)
			if s.generation.Load() != gen || ctx.Err() != nil {
				// Completed-but-stale tick: discard rather than act on
				// now-invalid references.
				return
			}
			if err != nil {
				failures++
				s.tickMetric("error")
				s.logger.Warn("inference tick failed",
					"device_id", source.DeviceID(),
					"camera_index", s.cameraIndex,
					"consecutive_failures", failures,
					"error", err)
				if failures > s.cfg.MaxInferenceFailures {
					// Accumulated failures indicate a corrupted capture
					// resource, not a bad frame; rebuild the whole session.
					go s.forceRecover(gen)
					return
				}
				continue
			}
			failures = 0
			s.tickMetric("ok")
			if s.deps.Metrics != nil {
				s.deps.Metrics.InferenceDuration.
					WithLabelValues(source.DeviceID()).
					Observe(s.deps.Clock.Since(start).Seconds())
			}

			for i := range detections {
				detections[i].CameraIndex = s.cameraIndex
			}
			if s.deps.Renderer != nil {
				s.deps.Renderer.Render(detections, s.deps.Surface, s.cameraIndex)
			}
			s.recordSignificant(detections, source.DeviceID())

		case err, ok := <-errs:
			if !ok {
				// A closed error channel would fire on every loop pass;
				// a nil channel blocks forever in select.
				errs = nil
				continue
			}
			if err == nil {
				continue
			}
			if s.generation.Load() != gen {
				return
			}
			s.logger.Error("hardware read error",
				"device_id", source.DeviceID(),
				"camera_index", s.cameraIndex,
				"error", err)
			go s.failover(gen, err)
			return
		}
	}
}

func (s *Session) tickMetric(status string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.TicksTotal.WithLabelValues(status).Inc()
	}
}

// recordSignificant applies the significance predicate: person above the
// session sensitivity, or any class above the high absolute threshold.
func (s *Session) recordSignificant(detections []Detection, deviceID string) {
	if s.deps.History == nil {
		return
	}
	sensitivity := s.Sensitivity()
	for i := range detections {
		det := detections[i]
		significant := (det.Class == PersonClass && det.Score > sensitivity) ||
			det.Score > s.cfg.HighConfidence
		if !significant {
			continue
		}
		if err := s.deps.History.AddDetection(s.deps.UserID, deviceID, det); err != nil {
			s.logger.Error("failed to record detection",
				"device_id", deviceID,
				"class", det.Class,
				"error", err)
		}
	}
}

// forceRecover rebuilds the session on the same device after repeated
// inference failures.
func (s *Session) forceRecover(gen int64) {
	if s.disposed.Load() || s.generation.Load() != gen {
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionRestartsTotal.WithLabelValues("inference_failures").Inc()
	}

	s.mu.Lock()
	deviceID := s.deviceID
	s.state = StateTearingDown
	s.loading = true
	s.releaseLocked()
	s.mu.Unlock()

	s.logger.Warn("forcing session restart after repeated inference failures",
		"device_id", deviceID,
		"camera_index", s.cameraIndex)

	if !s.settle(s.cfg.RecoverySettle) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed.Load() {
		return
	}
	if err := s.startLocked(deviceID); err != nil {
		s.logger.Error("session recovery failed",
			"device_id", deviceID,
			"error", err)
	}
}

// failover moves to the next enumerated device after a hardware read error,
// or parks the session in the error state when there is nowhere to go.
func (s *Session) failover(gen int64, cause error) {
	if s.disposed.Load() || s.generation.Load() != gen {
		return
	}

	s.mu.Lock()
	current := s.deviceID
	s.lastErr = errors.New(cause).
		Component(ComponentVideoCore).
		Category(errors.CategoryCapture).
		Context("operation", "hardware_read").
		Context("device_id", current).
		Build()
	next, found := nextDevice(s.deps.Devices, current)
	if !found {
		s.state = StateError
		s.loading = false
		s.releaseLocked()
		s.mu.Unlock()
		return
	}
	s.state = StateSwitching
	s.loading = true
	s.mu.Unlock()

	s.logger.Info("failing over to next camera",
		"from_device", current,
		"to_device", next.ID)
	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionFailovers.Inc()
	}

	if !s.settle(s.cfg.FailoverDelay) {
		return
	}
	if err := s.SwitchDevice(next.ID); err != nil {
		s.logger.Error("failover failed", "device_id", next.ID, "error", err)
	}
}

// SwitchDevice rebinds the session to another camera. The old stream is
// fully released first, then the settle window gives slow drivers time to
// initialize before the model reloads.
func (s *Session) SwitchDevice(newDeviceID string) error {
	if s.disposed.Load() {
		return ErrSessionDisposed
	}

	s.mu.Lock()
	if newDeviceID == s.deviceID && s.state == StateDetecting {
		s.mu.Unlock()
		return nil
	}
	s.state = StateSwitching
	s.loading = true
	// Invalidate in-flight ticks before touching the stream.
	s.generation.Add(1)
	s.releaseLocked()
	s.mu.Unlock()

	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionRestartsTotal.WithLabelValues("device_switch").Inc()
	}

	if !s.settle(s.cfg.SwitchSettle) {
		return errors.Newf("device switch cancelled").
			Component(ComponentVideoCore).
			Category(errors.CategoryCancellation).
			Context("device_id", newDeviceID).
			Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed.Load() {
		return ErrSessionDisposed
	}
	return s.startLocked(newDeviceID)
}

// settle waits out a fixed backoff window. Returns false when the session
// is disposed or its context ends first.
func (s *Session) settle(d time.Duration) bool {
	if d <= 0 {
		return !s.disposed.Load()
	}
	timer := s.deps.Clock.Timer(d)
	defer timer.Stop()

	var done <-chan struct{}
	if s.baseCtx != nil {
		done = s.baseCtx.Done()
	}
	select {
	case <-timer.C:
		return !s.disposed.Load()
	case <-done:
		return false
	}
}

// SetPaused toggles this camera's pause flag.
func (s *Session) SetPaused(value bool) {
	if s.deps.Pause != nil {
		s.deps.Pause.SetPaused(s.CameraIndex(), value)
	}
}

// SetSensitivity re-tunes the person threshold. Visible to the very next
// significance check.
func (s *Session) SetSensitivity(value float64) {
	s.sensitivityBits.Store(math.Float64bits(value))
}

// Sensitivity returns the current person threshold.
func (s *Session) Sensitivity() float64 {
	return math.Float64frombits(s.sensitivityBits.Load())
}

// Dispose cancels the inference loop, stops every track on the bound
// stream, and releases the detector. It is idempotent and runs on every
// exit path: unmount, device switch, forced recovery, grid removal.
func (s *Session) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}

	// Invalidate any tick that resolves after this point.
	s.generation.Add(1)

	s.mu.Lock()
	s.state = StateTearingDown
	s.releaseLocked()
	s.state = StateIdle
	s.loading = false
	s.mu.Unlock()

	s.logger.Info("detector session disposed",
		"device_id", s.DeviceID(),
		"camera_index", s.CameraIndex())
}

// releaseLocked cancels the loop and releases stream and model resources.
// Caller holds s.mu. The run goroutine never takes s.mu, so waiting here
// cannot deadlock.
func (s *Session) releaseLocked() {
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	s.wg.Wait()

	if s.source != nil {
		if err := s.source.Close(); err != nil {
			s.logger.Error("error closing frame source",
				"device_id", s.deviceID,
				"error", err)
		}
		s.source = nil
		if s.deps.Metrics != nil {
			s.deps.Metrics.SessionsActive.Dec()
		}
	}
	if s.detector != nil {
		if err := s.detector.Close(); err != nil {
			s.logger.Error("error closing detector", "error", err)
		}
		s.detector = nil
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the session's error state, nil while healthy.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// IsLoading reports whether the session is between acquire and detect.
func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// DeviceID returns the bound device id.
func (s *Session) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// CameraIndex returns the session's position in the grid.
func (s *Session) CameraIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameraIndex
}

// nextDevice picks the device after current in enumeration order, wrapping
// around, skipping current itself.
func nextDevice(devices []Device, currentID string) (Device, bool) {
	if len(devices) < 2 {
		return Device{}, false
	}
	for i := range devices {
		if devices[i].ID == currentID {
			return devices[(i+1)%len(devices)], true
		}
	}
	// Current device no longer enumerated; fall back to the first.
	return devices[0], true
}
