package videocore

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRendererDrawsPersonAndOtherClasses(t *testing.T) {
	t.Parallel()

	surface := &fakeSurface{}
	renderer := NewRenderer(NewPauseCoordinator(), nil)

	renderer.Render([]Detection{
		{Class: "person", Score: 0.9, Box: BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}},
		{Class: "cat", Score: 0.8, Box: BoundingBox{X: 5, Y: 6, Width: 7, Height: 8}},
	}, surface, 0)

	assert.Equal(t, []string{personStrokeColor, otherStrokeColor}, surface.strokes)
	assert.Equal(t, []string{"person", "cat"}, surface.texts)
	// Person gets the translucent body fill plus a label background; the
	// other class gets only the label background.
	assert.Equal(t, []string{personStrokeColor, personStrokeColor, otherStrokeColor}, surface.fills)
	assert.Equal(t, 1, surface.clearCount())
}

func TestRendererPausedCameraPaintsNothing(t *testing.T) {
	t.Parallel()

	pause := NewPauseCoordinator()
	pause.SetPaused(1, true)

	var alerts atomic.Int32
	renderer := NewRenderer(pause, func() { alerts.Add(1) })

	paused := &fakeSurface{}
	renderer.Render([]Detection{{Class: "person", Score: 0.9}}, paused, 1)
	assert.Empty(t, paused.operations(), "paused camera keeps its last painted state")
	assert.EqualValues(t, 0, alerts.Load())

	// A different camera index is unaffected.
	running := &fakeSurface{}
	renderer.Render([]Detection{{Class: "person", Score: 0.9}}, running, 0)
	assert.Equal(t, 1, running.clearCount())
	assert.EqualValues(t, 1, alerts.Load())
}

func TestRendererAlertThrottleLeadingEdge(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	var alerts atomic.Int32
	renderer := NewRenderer(NewPauseCoordinator(), func() { alerts.Add(1) },
		WithRendererClock(mock))
	surface := &fakeSurface{}
	person := []Detection{{Class: "person", Score: 0.9}}

	// First detection in a window fires immediately.
	renderer.Render(person, surface, 0)
	assert.EqualValues(t, 1, alerts.Load())

	// Further detections inside the window are suppressed.
	for i := 0; i < 5; i++ {
		mock.Add(time.Second)
		renderer.Render(person, surface, 0)
	}
	assert.EqualValues(t, 1, alerts.Load())

	// Once the window elapses the next detection fires again.
	mock.Add(2 * time.Second)
	renderer.Render(person, surface, 0)
	assert.EqualValues(t, 2, alerts.Load())
}

func TestRendererNilSurfaceStillObservesAndAlerts(t *testing.T) {
	t.Parallel()

	var alerts atomic.Int32
	renderer := NewRenderer(NewPauseCoordinator(), func() { alerts.Add(1) })
	rec := &recordingObserver{}
	renderer.RegisterObserver(rec)

	// Headless camera: no drawing target, full detection pipeline.
	require.NotPanics(t, func() {
		renderer.Render([]Detection{{Class: "person", Score: 0.9}}, nil, 0)
	})

	require.Len(t, rec.seen, 1)
	assert.Equal(t, "person", rec.seen[0].Class)
	assert.EqualValues(t, 1, alerts.Load())
}

func TestRendererNoAlertWithoutPerson(t *testing.T) {
	t.Parallel()

	var alerts atomic.Int32
	renderer := NewRenderer(NewPauseCoordinator(), func() { alerts.Add(1) })

	renderer.Render([]Detection{{Class: "dog", Score: 0.99}}, &fakeSurface{}, 0)
	assert.EqualValues(t, 0, alerts.Load())
}

type recordingObserver struct {
	seen []Detection
}

func (r *recordingObserver) ObserveDetection(det Detection) {
	r.seen = append(r.seen, det)
}

type panickyObserver struct{}

func (panickyObserver) ObserveDetection(Detection) { panic("observer bug") }

func TestRendererObserverPanicIsContained(t *testing.T) {
	t.Parallel()

	renderer := NewRenderer(NewPauseCoordinator(), nil)
	rec := &recordingObserver{}
	renderer.RegisterObserver(panickyObserver{})
	renderer.RegisterObserver(rec)

	surface := &fakeSurface{}
	require.NotPanics(t, func() {
		renderer.Render([]Detection{{Class: "person", Score: 0.9}}, surface, 0)
	})

	// The panicking observer must not starve the one after it, nor the
	// painting itself.
	require.Len(t, rec.seen, 1)
	assert.Equal(t, "person", rec.seen[0].Class)
	assert.Equal(t, 1, surface.clearCount())
}
