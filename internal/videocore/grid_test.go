package videocore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestGrid(t *testing.T, settings SettingsStore) (*Grid, *fakeSourceFactory) {
	t.Helper()
	sources := &fakeSourceFactory{}
	pause := NewPauseCoordinator()
	grid := NewGrid(GridConfig{
		UserID:  "user-1",
		Session: fastSessionConfig(),
	}, GridDeps{
		Sources:    sources,
		Detectors:  &fakeDetectorFactory{},
		Renderer:   NewRenderer(pause, nil),
		Pause:      pause,
		Settings:   settings,
		SurfaceFor: func(int) Surface { return &fakeSurface{} },
	})
	return grid, sources
}

func TestGridAttachInitializesDefaults(t *testing.T) {
	defer goleak.VerifyNone(t)

	settings := newFakeSettings()
	grid, sources := newTestGrid(t, settings)
	defer grid.Close()

	require.NoError(t, grid.Attach(context.Background(), "cam-a"))

	setting, err := grid.Setting("cam-a")
	require.NoError(t, err)
	assert.True(t, setting.Enabled)
	assert.Equal(t, DefaultSensitivity, setting.Sensitivity)
	assert.Equal(t, "Camera 1", setting.DisplayName)

	// The default must be persisted, not just held in memory.
	stored, found, err := settings.CameraSetting("user-1", "cam-a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, setting, stored)

	require.NotNil(t, grid.Session("cam-a"))
	assert.Equal(t, 1, sources.openedCount())
}

func TestGridAttachUsesStoredSetting(t *testing.T) {
	defer goleak.VerifyNone(t)

	settings := newFakeSettings()
	require.NoError(t, settings.SaveCameraSetting("user-1", CameraSetting{
		DeviceID:    "cam-a",
		Enabled:     false,
		Sensitivity: 0.8,
		DisplayName: "Porch",
	}))
	grid, sources := newTestGrid(t, settings)
	defer grid.Close()

	require.NoError(t, grid.Attach(context.Background(), "cam-a"))

	setting, err := grid.Setting("cam-a")
	require.NoError(t, err)
	assert.False(t, setting.Enabled)
	assert.Equal(t, 0.8, setting.Sensitivity)
	assert.Equal(t, "Porch", setting.DisplayName)

	// Disabled camera: no stream acquired.
	assert.Nil(t, grid.Session("cam-a"))
	assert.Equal(t, 0, sources.openedCount())
}

// gatedSourceFactory holds NewSource until the gate opens, so a test can keep
// an Attach in flight while another runs.
type gatedSourceFactory struct {
	inner   *fakeSourceFactory
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedSourceFactory) NewSource(deviceID string, cfg CaptureConfig) (FrameSource, error) {
	g.entered <- struct{}{}
	<-g.gate
	return g.inner.NewSource(deviceID, cfg)
}

func TestGridConcurrentAttachOpensOneStream(t *testing.T) {
	defer goleak.VerifyNone(t)

	inner := &fakeSourceFactory{}
	sources := &gatedSourceFactory{
		inner:   inner,
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	pause := NewPauseCoordinator()
	grid := NewGrid(GridConfig{UserID: "user-1", Session: fastSessionConfig()}, GridDeps{
		Sources:    sources,
		Detectors:  &fakeDetectorFactory{},
		Renderer:   NewRenderer(pause, nil),
		Pause:      pause,
		Settings:   newFakeSettings(),
		SurfaceFor: func(int) Surface { return &fakeSurface{} },
	})
	defer grid.Close()

	first := make(chan error, 1)
	go func() {
		first <- grid.Attach(context.Background(), "cam-a")
	}()
	// The first attach is now blocked opening its stream.
	<-sources.entered

	// A second attach for the same device must fail instead of opening a
	// second stream.
	require.Error(t, grid.Attach(context.Background(), "cam-a"))

	close(sources.gate)
	require.NoError(t, <-first)

	assert.Equal(t, 1, inner.openedCount(), "exactly one live stream for the device")
	assert.Equal(t, []string{"cam-a"}, grid.Attached())
	require.NotNil(t, grid.Session("cam-a"))
}

func TestGridRejectsDuplicateAttach(t *testing.T) {
	defer goleak.VerifyNone(t)

	grid, _ := newTestGrid(t, newFakeSettings())
	defer grid.Close()

	require.NoError(t, grid.Attach(context.Background(), "cam-a"))
	require.Error(t, grid.Attach(context.Background(), "cam-a"))
	assert.Equal(t, []string{"cam-a"}, grid.Attached())
}

func TestGridDetachDisposesSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	grid, sources := newTestGrid(t, newFakeSettings())
	defer grid.Close()

	require.NoError(t, grid.Attach(context.Background(), "cam-a"))
	src := sources.last()

	require.NoError(t, grid.Detach("cam-a"))
	assert.EqualValues(t, 1, src.closeCount.Load())
	assert.Nil(t, grid.Session("cam-a"))
	assert.ErrorIs(t, grid.Detach("cam-a"), ErrDeviceNotFound)
}

func TestGridSetEnabledTogglesSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	settings := newFakeSettings()
	grid, sources := newTestGrid(t, settings)
	defer grid.Close()

	require.NoError(t, grid.Attach(context.Background(), "cam-a"))
	src := sources.last()

	require.NoError(t, grid.SetEnabled(context.Background(), "cam-a", false))
	assert.EqualValues(t, 1, src.closeCount.Load(), "disable must release the stream")
	assert.Nil(t, grid.Session("cam-a"))

	stored, _, err := settings.CameraSetting("user-1", "cam-a")
	require.NoError(t, err)
	assert.False(t, stored.Enabled)

	require.NoError(t, grid.SetEnabled(context.Background(), "cam-a", true))
	require.NotNil(t, grid.Session("cam-a"))
	assert.Equal(t, 2, sources.openedCount())
}

func TestGridSetEnabledRollsBackOnStartFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	settings := newFakeSettings()
	require.NoError(t, settings.SaveCameraSetting("user-1", CameraSetting{
		DeviceID:    "cam-a",
		Enabled:     false,
		Sensitivity: 0.6,
		DisplayName: "Porch",
	}))

	sources := &fakeSourceFactory{}
	detectors := &fakeDetectorFactory{}
	pause := NewPauseCoordinator()
	grid := NewGrid(GridConfig{UserID: "user-1", Session: fastSessionConfig()}, GridDeps{
		Sources:    sources,
		Detectors:  detectors,
		Renderer:   NewRenderer(pause, nil),
		Pause:      pause,
		Settings:   settings,
		SurfaceFor: func(int) Surface { return &fakeSurface{} },
	})
	defer grid.Close()

	require.NoError(t, grid.Attach(context.Background(), "cam-a"))
	require.Nil(t, grid.Session("cam-a"))

	detectors.initErr = fmt.Errorf("bad model file")
	require.ErrorIs(t, grid.SetEnabled(context.Background(), "cam-a", true), ErrModelLoadFailed)

	// The flag must reflect the camera's real state and agree with the store.
	setting, err := grid.Setting("cam-a")
	require.NoError(t, err)
	assert.False(t, setting.Enabled)
	assert.Nil(t, grid.Session("cam-a"))

	stored, _, err := settings.CameraSetting("user-1", "cam-a")
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
}

func TestGridSetSensitivity(t *testing.T) {
	defer goleak.VerifyNone(t)

	settings := newFakeSettings()
	grid, _ := newTestGrid(t, settings)
	defer grid.Close()

	require.NoError(t, grid.Attach(context.Background(), "cam-a"))

	require.Error(t, grid.SetSensitivity("cam-a", 0))
	require.Error(t, grid.SetSensitivity("cam-a", 1.5))
	require.ErrorIs(t, grid.SetSensitivity("cam-x", 0.5), ErrDeviceNotFound)

	require.NoError(t, grid.SetSensitivity("cam-a", 0.3))
	assert.Equal(t, 0.3, grid.Session("cam-a").Sensitivity())

	stored, _, err := settings.CameraSetting("user-1", "cam-a")
	require.NoError(t, err)
	assert.Equal(t, 0.3, stored.Sensitivity)
}

func TestGridRenamePersists(t *testing.T) {
	defer goleak.VerifyNone(t)

	settings := newFakeSettings()
	grid, _ := newTestGrid(t, settings)
	defer grid.Close()

	require.NoError(t, grid.Attach(context.Background(), "cam-a"))
	require.NoError(t, grid.Rename("cam-a", "Driveway"))

	stored, _, err := settings.CameraSetting("user-1", "cam-a")
	require.NoError(t, err)
	assert.Equal(t, "Driveway", stored.DisplayName)
}

func TestGridPauseStatePersistsAndRestores(t *testing.T) {
	defer goleak.VerifyNone(t)

	settings := newFakeSettings()
	grid, _ := newTestGrid(t, settings)

	require.NoError(t, grid.Attach(context.Background(), "cam-a"))
	require.NoError(t, grid.Attach(context.Background(), "cam-b"))

	require.NoError(t, grid.SetPaused("cam-b", true))
	indices, err := settings.PausedCameras("user-1")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, indices)
	grid.Close()

	// A fresh grid over the same store restores the paused set.
	pause := NewPauseCoordinator()
	restored := NewGrid(GridConfig{UserID: "user-1", Session: fastSessionConfig()}, GridDeps{
		Sources:   &fakeSourceFactory{},
		Detectors: &fakeDetectorFactory{},
		Renderer:  NewRenderer(pause, nil),
		Pause:     pause,
		Settings:  settings,
	})
	require.NoError(t, restored.RestorePauseState())
	assert.False(t, pause.IsPaused(0))
	assert.True(t, pause.IsPaused(1))
	restored.Close()
}

func TestGridRestorePauseStateDegradesOnError(t *testing.T) {
	defer goleak.VerifyNone(t)

	settings := newFakeSettings()
	settings.loadErr = assert.AnError
	pause := NewPauseCoordinator()
	pause.SetPaused(3, true)

	grid := NewGrid(GridConfig{UserID: "user-1"}, GridDeps{
		Sources:   &fakeSourceFactory{},
		Detectors: &fakeDetectorFactory{},
		Pause:     pause,
		Settings:  settings,
	})
	defer grid.Close()

	// Unreadable state restores to nothing paused rather than failing.
	require.NoError(t, grid.RestorePauseState())
	assert.False(t, pause.IsPaused(3))
}

func TestGridAttachAll(t *testing.T) {
	// The enumerator's snapshot cache runs a background janitor.
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))

	lister := &fakeLister{snapshots: [][]Device{{
		{ID: "cam-a", Kind: DeviceVideoInput, Label: "Front"},
		{ID: "cam-b", Kind: DeviceVideoInput, Label: "Back"},
	}}}
	enumerator := NewEnumerator(lister, nil)

	sources := &fakeSourceFactory{}
	pause := NewPauseCoordinator()
	grid := NewGrid(GridConfig{UserID: "user-1", Session: fastSessionConfig()}, GridDeps{
		Enumerator: enumerator,
		Sources:    sources,
		Detectors:  &fakeDetectorFactory{},
		Renderer:   NewRenderer(pause, nil),
		Pause:      pause,
		Settings:   newFakeSettings(),
		SurfaceFor: func(int) Surface { return &fakeSurface{} },
	})
	defer grid.Close()

	require.NoError(t, grid.AttachAll(context.Background()))
	assert.Equal(t, []string{"cam-a", "cam-b"}, grid.Attached())
	assert.Equal(t, 2, sources.openedCount())

	// Second call is a no-op for already attached devices.
	require.NoError(t, grid.AttachAll(context.Background()))
	assert.Equal(t, 2, sources.openedCount())
}
