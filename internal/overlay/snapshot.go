package overlay

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sentinelvision/sentinel-go/internal/logging"
	"github.com/sentinelvision/sentinel-go/internal/videocore"
)

// defaultSnapshotInterval bounds how often a camera's annotation layer is
// written to disk.
const defaultSnapshotInterval = 10 * time.Second

// SnapshotWriter persists the annotation layer of a camera when a person
// is detected, at most once per camera per interval. It observes the
// rendered detection stream.
type SnapshotWriter struct {
	dir      string
	interval time.Duration
	surfaces func(cameraIndex int) *Surface
	clk      clock.Clock
	logger   *slog.Logger

	mu   sync.Mutex
	last map[int]time.Time
}

// SnapshotOption adjusts writer construction.
type SnapshotOption func(*SnapshotWriter)

// WithSnapshotClock injects a clock, used by tests.
func WithSnapshotClock(clk clock.Clock) SnapshotOption {
	return func(w *SnapshotWriter) { w.clk = clk }
}

// WithSnapshotInterval overrides the per-camera write interval.
func WithSnapshotInterval(d time.Duration) SnapshotOption {
	return func(w *SnapshotWriter) { w.interval = d }
}

// NewSnapshotWriter creates the snapshot directory and returns a writer
// that looks up each camera's surface through the given function.
func NewSnapshotWriter(dir string, surfaces func(cameraIndex int) *Surface, opts ...SnapshotOption) (*SnapshotWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating snapshot directory: %w", err)
	}
	w := &SnapshotWriter{
		dir:      dir,
		interval: defaultSnapshotInterval,
		surfaces: surfaces,
		clk:      clock.New(),
		logger:   logging.ForService("overlay"),
		last:     make(map[int]time.Time),
	}
	if w.logger == nil {
		w.logger = slog.Default().With("service", "overlay")
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// ObserveDetection writes a snapshot for person detections.
func (w *SnapshotWriter) ObserveDetection(det videocore.Detection) {
	if det.Class != videocore.PersonClass {
		return
	}
	if !w.shouldWrite(det.CameraIndex) {
		return
	}
	surface := w.surfaces(det.CameraIndex)
	if surface == nil {
		return
	}
	name := fmt.Sprintf("camera%d-%s.png", det.CameraIndex+1, w.clk.Now().Format("20060102-150405"))
	path := filepath.Join(w.dir, name)
	if err := surface.SavePNG(path); err != nil {
		w.logger.Warn("failed to write snapshot",
			"path", path,
			"camera_index", det.CameraIndex,
			"error", err)
		return
	}
	w.logger.Debug("snapshot written", "path", path, "camera_index", det.CameraIndex)
}

// shouldWrite applies the per-camera interval, leading edge.
func (w *SnapshotWriter) shouldWrite(cameraIndex int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.clk.Now()
	if last, ok := w.last[cameraIndex]; ok && now.Sub(last) < w.interval {
		return false
	}
	w.last[cameraIndex] = now
	return true
}
