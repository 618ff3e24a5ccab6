package videocore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// fakeSource is an in-memory FrameSource with track accounting.
type fakeSource struct {
	deviceID string

	frames chan Frame
	errs   chan error

	openCount  atomic.Int32
	closeCount atomic.Int32
	closeOnce  sync.Once
	closed     chan struct{}

	notReady bool
}

func newFakeSource(deviceID string) *fakeSource {
	return &fakeSource{
		deviceID: deviceID,
		frames:   make(chan Frame, 16),
		errs:     make(chan error, 4),
		closed:   make(chan struct{}),
	}
}

func (f *fakeSource) DeviceID() string { return f.deviceID }

func (f *fakeSource) Open(ctx context.Context) error {
	f.openCount.Add(1)
	return nil
}

func (f *fakeSource) Frames() <-chan Frame { return f.frames }
func (f *fakeSource) Errors() <-chan error { return f.errs }
func (f *fakeSource) Ready() bool          { return !f.notReady }

func (f *fakeSource) Dimensions() (int, int) {
	if f.notReady {
		return 0, 0
	}
	return 640, 480
}

func (f *fakeSource) Close() error {
	f.closeCount.Add(1)
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSource) pushFrame() {
	f.frames <- Frame{
		Pixels:    make([]byte, 640*480*3),
		Width:     640,
		Height:    480,
		Timestamp: time.Now(),
		DeviceID:  f.deviceID,
	}
}

// fakeSourceFactory records every source it opened, in order.
type fakeSourceFactory struct {
	mu      sync.Mutex
	sources []*fakeSource
	log     []string // "open:<id>" entries interleaved with test annotations
	openErr error
}

func (f *fakeSourceFactory) NewSource(deviceID string, _ CaptureConfig) (FrameSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	src := newFakeSource(deviceID)
	f.sources = append(f.sources, src)
	f.log = append(f.log, "open:"+deviceID)
	return src, nil
}

func (f *fakeSourceFactory) created() []*fakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeSource, len(f.sources))
	copy(out, f.sources)
	return out
}

func (f *fakeSourceFactory) last() *fakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sources) == 0 {
		return nil
	}
	return f.sources[len(f.sources)-1]
}

func (f *fakeSourceFactory) openedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sources)
}

// fakeDetector returns canned detections, optionally failing or blocking.
type fakeDetector struct {
	results [][]Detection
	err     error
	block   chan struct{} // when non-nil Detect waits for it or ctx

	calls      atomic.Int32
	closeCount atomic.Int32
}

func (f *fakeDetector) Initialize(ctx context.Context) error { return nil }

func (f *fakeDetector) Detect(ctx context.Context, frame *Frame) ([]Detection, error) {
	n := int(f.calls.Add(1))
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return nil, nil
	}
	if n > len(f.results) {
		return f.results[len(f.results)-1], nil
	}
	return f.results[n-1], nil
}

func (f *fakeDetector) Close() error {
	f.closeCount.Add(1)
	return nil
}

// fakeDetectorFactory hands out the same detector config per session.
type fakeDetectorFactory struct {
	mu        sync.Mutex
	detectors []*fakeDetector
	template  fakeDetector
	newErr    error
	initErr   error
}

func (f *fakeDetectorFactory) NewDetector() (Detector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	det := &fakeDetector{
		results: f.template.results,
		err:     f.template.err,
		block:   f.template.block,
	}
	if f.initErr != nil {
		return failingInitDetector{det: det, err: f.initErr}, nil
	}
	f.detectors = append(f.detectors, det)
	return det, nil
}

type failingInitDetector struct {
	det *fakeDetector
	err error
}

func (f failingInitDetector) Initialize(ctx context.Context) error { return f.err }
func (f failingInitDetector) Detect(ctx context.Context, frame *Frame) ([]Detection, error) {
	return f.det.Detect(ctx, frame)
}
func (f failingInitDetector) Close() error { return f.det.Close() }

// fakeSurface records drawing operations in order.
type fakeSurface struct {
	mu  sync.Mutex
	ops []string

	clears  int
	strokes []string // stroke colors in draw order
	fills   []string
	texts   []string
}

func (s *fakeSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	s.ops = append(s.ops, "clear")
}

func (s *fakeSurface) StrokeRect(box BoundingBox, color string, lineWidth float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strokes = append(s.strokes, color)
	s.ops = append(s.ops, "stroke:"+color)
}

func (s *fakeSurface) FillRect(x, y, width, height float64, color string, alpha float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills = append(s.fills, color)
	s.ops = append(s.ops, "fill:"+color)
}

func (s *fakeSurface) FillText(text string, x, y float64, color string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	s.ops = append(s.ops, "text:"+text)
}

func (s *fakeSurface) MeasureText(text string) (float64, float64) {
	return float64(len(text)) * 7, 12
}

func (s *fakeSurface) clearCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

func (s *fakeSurface) operations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ops))
	copy(out, s.ops)
	return out
}

// fakeHistory records AddDetection calls.
type fakeHistory struct {
	mu      sync.Mutex
	entries []Detection
	err     error
}

func (f *fakeHistory) AddDetection(userID, deviceID string, det Detection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, det)
	return nil
}

func (f *fakeHistory) recorded() []Detection {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Detection, len(f.entries))
	copy(out, f.entries)
	return out
}

// fakeSettings is an in-memory SettingsStore.
type fakeSettings struct {
	mu       sync.Mutex
	settings map[string]CameraSetting // key: userID + "/" + deviceID
	paused   map[string][]int
	loadErr  error
	saveErr  error
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{
		settings: make(map[string]CameraSetting),
		paused:   make(map[string][]int),
	}
}

func (f *fakeSettings) CameraSetting(userID, deviceID string) (CameraSetting, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return CameraSetting{}, false, f.loadErr
	}
	setting, ok := f.settings[userID+"/"+deviceID]
	return setting, ok, nil
}

func (f *fakeSettings) SaveCameraSetting(userID string, setting CameraSetting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.settings[userID+"/"+setting.DeviceID] = setting
	return nil
}

func (f *fakeSettings) PausedCameras(userID string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.paused[userID], nil
}

func (f *fakeSettings) SavePausedCameras(userID string, indices []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.paused[userID] = indices
	return nil
}

// fakeLister is a scripted DeviceLister.
type fakeLister struct {
	mu            sync.Mutex
	snapshots     [][]Device // consecutive ListDevices results; last repeats
	listErr       error
	permissionErr error
	sinkSelection bool
	listCalls     int
	permCalls     int
}

func (f *fakeLister) ListDevices(ctx context.Context, kind DeviceKind) ([]Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.snapshots) == 0 {
		return nil, nil
	}
	idx := f.listCalls - 1
	if idx >= len(f.snapshots) {
		idx = len(f.snapshots) - 1
	}
	return f.snapshots[idx], nil
}

func (f *fakeLister) RequestPermission(ctx context.Context, kind DeviceKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permCalls++
	return f.permissionErr
}

func (f *fakeLister) SupportsSinkSelection() bool { return f.sinkSelection }

func (f *fakeLister) calls() (list, perm int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.permCalls
}

// fastSessionConfig keeps lifecycle waits negligible for tests.
func fastSessionConfig() SessionConfig {
	return SessionConfig{
		SwitchSettle:         time.Millisecond,
		RecoverySettle:       time.Millisecond,
		FailoverDelay:        time.Millisecond,
		MaxInferenceFailures: DefaultMaxInferenceFailures,
		HighConfidence:       DefaultHighConfidence,
	}
}
