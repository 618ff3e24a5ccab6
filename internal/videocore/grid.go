package videocore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/sentinelvision/sentinel-go/internal/errors"
	"github.com/sentinelvision/sentinel-go/internal/logging"
	"github.com/sentinelvision/sentinel-go/internal/observability/metrics"
)

// GridDeps are the collaborators shared by every session in the grid.
type GridDeps struct {
	Enumerator *Enumerator
	Sources    SourceFactory
	Detectors  DetectorFactory
	Renderer   *Renderer
	Pause      *PauseCoordinator
	Settings   SettingsStore // optional
	History    HistoryRecorder
	// SurfaceFor maps a grid position to its drawing target. Nil surfaces
	// are allowed; rendering is skipped for them.
	SurfaceFor func(cameraIndex int) Surface
	Clock      clock.Clock
	Metrics    *metrics.VideoCoreMetrics
	Logger     *slog.Logger
}

// GridConfig tunes the grid and the sessions it creates.
type GridConfig struct {
	UserID  string
	Session SessionConfig
}

type gridSlot struct {
	session *Session
	setting CameraSetting
	index   int
}

// Grid manages the arena of concurrent detector sessions, keyed by device
// id. It owns the per-user camera settings, assigns grid positions, and
// guarantees each device is attached at most once.
type Grid struct {
	cfg  GridConfig
	deps GridDeps

	mu        sync.Mutex
	slots     map[string]*gridSlot
	devices   []Device
	nextIndex int

	logger *slog.Logger
}

// NewGrid creates an empty grid.
func NewGrid(cfg GridConfig, deps GridDeps) *Grid {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Pause == nil {
		deps.Pause = NewPauseCoordinator()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.ForService("videocore")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Grid{
		cfg:    cfg,
		deps:   deps,
		slots:  make(map[string]*gridSlot),
		logger: logger,
	}
}

// Refresh re-enumerates video input devices. The cached list feeds failover
// candidates and AttachAll.
func (g *Grid) Refresh(ctx context.Context) ([]Device, error) {
	if g.deps.Enumerator == nil {
		return nil, errors.Newf("no device enumerator configured").
			Component(ComponentVideoCore).
			Category(errors.CategoryConfig).
			Build()
	}
	devices, err := g.deps.Enumerator.Enumerate(ctx, DeviceVideoInput)
	g.mu.Lock()
	g.devices = devices
	g.mu.Unlock()
	return devices, err
}

// Devices returns the most recently enumerated video devices.
func (g *Grid) Devices() []Device {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Device, len(g.devices))
	copy(out, g.devices)
	return out
}

// Attach adds a device to the grid, loading or initializing its per-user
// setting, and starts a session when the camera is enabled. Attaching an
// already attached device is an error.
func (g *Grid) Attach(ctx context.Context, deviceID string) error {
	g.mu.Lock()
	if _, exists := g.slots[deviceID]; exists {
		g.mu.Unlock()
		return errors.Newf("device %s already attached", deviceID).
			Component(ComponentVideoCore).
			Category(errors.CategoryValidation).
			Context("device_id", deviceID).
			Build()
	}
	index := g.nextIndex
	g.nextIndex++
	// Reserve the slot before releasing the lock so a concurrent Attach of
	// the same device fails instead of opening a second stream.
	slot := &gridSlot{index: index}
	g.slots[deviceID] = slot
	devices := make([]Device, len(g.devices))
	copy(devices, g.devices)
	g.mu.Unlock()

	setting, err := g.loadOrInitSetting(deviceID, index)
	if err != nil {
		g.releaseSlot(deviceID, slot)
		return err
	}

	var session *Session
	if setting.Enabled {
		session, err = g.startSession(ctx, deviceID, index, setting.Sensitivity, devices)
		if err != nil {
			g.releaseSlot(deviceID, slot)
			return err
		}
	}

	g.mu.Lock()
	if current, ok := g.slots[deviceID]; !ok || current != slot {
		// Detached while the session was starting.
		g.mu.Unlock()
		if session != nil {
			session.Dispose()
		}
		return nil
	}
	slot.setting = setting
	slot.session = session
	g.mu.Unlock()

	g.logger.Info("camera attached",
		"device_id", deviceID,
		"camera_index", index,
		"enabled", setting.Enabled)
	return nil
}

// releaseSlot drops a reservation made by Attach, unless the slot was
// already replaced or removed.
func (g *Grid) releaseSlot(deviceID string, slot *gridSlot) {
	g.mu.Lock()
	if current, ok := g.slots[deviceID]; ok && current == slot {
		delete(g.slots, deviceID)
	}
	g.mu.Unlock()
}

// AttachAll enumerates and attaches every video device not yet in the grid.
func (g *Grid) AttachAll(ctx context.Context) error {
	devices, err := g.Refresh(ctx)
	if err != nil && len(devices) == 0 {
		return err
	}
	var attachErr error
	for _, dev := range devices {
		g.mu.Lock()
		_, exists := g.slots[dev.ID]
		g.mu.Unlock()
		if exists {
			continue
		}
		if err := g.Attach(ctx, dev.ID); err != nil {
			g.logger.Error("failed to attach camera", "device_id", dev.ID, "error", err)
			attachErr = err
		}
	}
	return attachErr
}

// Detach disposes a device's session and removes it from the grid.
func (g *Grid) Detach(deviceID string) error {
	g.mu.Lock()
	slot, exists := g.slots[deviceID]
	if exists {
		delete(g.slots, deviceID)
	}
	g.mu.Unlock()
	if !exists {
		return ErrDeviceNotFound
	}
	if slot.session != nil {
		slot.session.Dispose()
	}
	g.logger.Info("camera detached", "device_id", deviceID, "camera_index", slot.index)
	return nil
}

// SetEnabled turns detection for a camera on or off, persisting the choice.
// Disabling fully releases the camera's stream and model.
func (g *Grid) SetEnabled(ctx context.Context, deviceID string, enabled bool) error {
	g.mu.Lock()
	slot, exists := g.slots[deviceID]
	if !exists {
		g.mu.Unlock()
		return ErrDeviceNotFound
	}
	if slot.setting.Enabled == enabled {
		g.mu.Unlock()
		return nil
	}
	slot.setting.Enabled = enabled
	setting := slot.setting
	index := slot.index
	old := slot.session
	slot.session = nil
	devices := make([]Device, len(g.devices))
	copy(devices, g.devices)
	g.mu.Unlock()

	if old != nil {
		old.Dispose()
	}
	if enabled {
		session, err := g.startSession(ctx, deviceID, index, setting.Sensitivity, devices)
		if err != nil {
			// Roll the flag back so Setting reflects the camera's real
			// state and agrees with the store.
			g.mu.Lock()
			if s, ok := g.slots[deviceID]; ok {
				s.setting.Enabled = false
			}
			g.mu.Unlock()
			return err
		}
		g.mu.Lock()
		if s, ok := g.slots[deviceID]; ok {
			s.session = session
		} else {
			session.Dispose()
		}
		g.mu.Unlock()
	}
	return g.persistSetting(setting)
}

// SetSensitivity re-tunes a camera's person threshold and persists it.
func (g *Grid) SetSensitivity(deviceID string, value float64) error {
	if value <= 0 || value > 1 {
		return errors.Newf("sensitivity must be in (0, 1], got %v", value).
			Component(ComponentVideoCore).
			Category(errors.CategoryValidation).
			Context("device_id", deviceID).
			Build()
	}
	g.mu.Lock()
	slot, exists := g.slots[deviceID]
	if !exists {
		g.mu.Unlock()
		return ErrDeviceNotFound
	}
	slot.setting.Sensitivity = value
	setting := slot.setting
	session := slot.session
	g.mu.Unlock()

	if session != nil {
		session.SetSensitivity(value)
	}
	return g.persistSetting(setting)
}

// Rename changes a camera's display name and persists it.
func (g *Grid) Rename(deviceID, name string) error {
	g.mu.Lock()
	slot, exists := g.slots[deviceID]
	if !exists {
		g.mu.Unlock()
		return ErrDeviceNotFound
	}
	slot.setting.DisplayName = name
	setting := slot.setting
	g.mu.Unlock()
	return g.persistSetting(setting)
}

// SetPaused pauses or resumes one camera and persists the full pause set.
func (g *Grid) SetPaused(deviceID string, paused bool) error {
	g.mu.Lock()
	slot, exists := g.slots[deviceID]
	if !exists {
		g.mu.Unlock()
		return ErrDeviceNotFound
	}
	index := slot.index
	g.mu.Unlock()

	g.deps.Pause.SetPaused(index, paused)
	return g.persistPauseState()
}

// RestorePauseState loads the user's persisted paused cameras into the
// coordinator. Missing or unreadable state restores to nothing paused.
func (g *Grid) RestorePauseState() error {
	if g.deps.Settings == nil {
		return nil
	}
	indices, err := g.deps.Settings.PausedCameras(g.cfg.UserID)
	if err != nil {
		g.logger.Warn("could not restore pause state, starting unpaused", "error", err)
		g.deps.Pause.Restore(nil)
		return nil
	}
	g.deps.Pause.Restore(indices)
	return nil
}

// Setting returns the current setting for an attached device.
func (g *Grid) Setting(deviceID string) (CameraSetting, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, exists := g.slots[deviceID]
	if !exists {
		return CameraSetting{}, ErrDeviceNotFound
	}
	return slot.setting, nil
}

// Session returns the live session for an attached, enabled device, or nil.
func (g *Grid) Session(deviceID string) *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, exists := g.slots[deviceID]
	if !exists {
		return nil
	}
	return slot.session
}

// Attached returns the attached device ids in grid order.
func (g *Grid) Attached() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.slots))
	for id := range g.slots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return g.slots[ids[i]].index < g.slots[ids[j]].index
	})
	return ids
}

// Close disposes every session. The grid is not reusable afterwards.
func (g *Grid) Close() {
	g.mu.Lock()
	sessions := make([]*Session, 0, len(g.slots))
	for _, slot := range g.slots {
		if slot.session != nil {
			sessions = append(sessions, slot.session)
		}
	}
	g.slots = make(map[string]*gridSlot)
	g.mu.Unlock()

	for _, session := range sessions {
		session.Dispose()
	}
	g.logger.Info("grid closed", "sessions_disposed", len(sessions))
}

func (g *Grid) startSession(ctx context.Context, deviceID string, index int, sensitivity float64, devices []Device) (*Session, error) {
	var surface Surface
	if g.deps.SurfaceFor != nil {
		surface = g.deps.SurfaceFor(index)
	}
	session := NewSession(g.cfg.Session, SessionDeps{
		Sources:   g.deps.Sources,
		Detectors: g.deps.Detectors,
		Renderer:  g.deps.Renderer,
		Surface:   surface,
		Pause:     g.deps.Pause,
		History:   g.deps.History,
		UserID:    g.cfg.UserID,
		Devices:   devices,
		Clock:     g.deps.Clock,
		Metrics:   g.deps.Metrics,
		Logger:    g.logger,
	})
	if err := session.Start(ctx, deviceID, index, sensitivity); err != nil {
		session.Dispose()
		return nil, err
	}
	return session, nil
}

// loadOrInitSetting returns the stored per-user setting, creating and
// persisting the default when none exists yet.
func (g *Grid) loadOrInitSetting(deviceID string, index int) (CameraSetting, error) {
	fallback := CameraSetting{
		DeviceID:    deviceID,
		Enabled:     true,
		Sensitivity: DefaultSensitivity,
		DisplayName: fmt.Sprintf("Camera %d", index+1),
	}
	if g.deps.Settings == nil {
		return fallback, nil
	}
	setting, found, err := g.deps.Settings.CameraSetting(g.cfg.UserID, deviceID)
	if err != nil {
		g.logger.Warn("could not load camera setting, using defaults",
			"device_id", deviceID,
			"error", err)
		return fallback, nil
	}
	if found {
		return setting, nil
	}
	if err := g.deps.Settings.SaveCameraSetting(g.cfg.UserID, fallback); err != nil {
		g.logger.Error("failed to persist default camera setting",
			"device_id", deviceID,
			"error", err)
	}
	return fallback, nil
}

func (g *Grid) persistSetting(setting CameraSetting) error {
	if g.deps.Settings == nil {
		return nil
	}
	if err := g.deps.Settings.SaveCameraSetting(g.cfg.UserID, setting); err != nil {
		return errors.New(err).
			Component(ComponentVideoCore).
			Category(errors.CategoryDatabase).
			Context("operation", "save_camera_setting").
			Context("device_id", setting.DeviceID).
			Build()
	}
	return nil
}

func (g *Grid) persistPauseState() error {
	if g.deps.Settings == nil {
		return nil
	}
	indices := g.deps.Pause.PausedIndices()
	if err := g.deps.Settings.SavePausedCameras(g.cfg.UserID, indices); err != nil {
		return errors.New(err).
			Component(ComponentVideoCore).
			Category(errors.CategoryDatabase).
			Context("operation", "save_paused_cameras").
			Build()
	}
	return nil
}
