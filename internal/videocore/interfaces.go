// Package videocore provides the camera and detection lifecycle engine for
// sentinel-go. It supports multiple simultaneous camera sources, per-camera
// configuration, and pluggable detector and rendering collaborators.
//
// Architecture overview:
//   Enumerator -> Grid -> N x Session -> Detector -> Renderer
//   Session: FrameSource -> inference tick -> Renderer -> history/observers
//
// Key interfaces:
//   - FrameSource: camera capture stream (ffmpeg, synthetic)
//   - Detector: pre-trained object detection model (opaque collaborator)
//   - Surface: drawing target for bounding boxes and labels
//   - DetectionObserver: analytics fan-out (metrics, MQTT)
package videocore

import (
	"context"
	"time"
)

// DeviceKind distinguishes the hardware classes the enumerator reports.
type DeviceKind string

const (
	// DeviceVideoInput is a camera capture device
	DeviceVideoInput DeviceKind = "videoinput"
	// DeviceAudioOutput is an audio playback sink
	DeviceAudioOutput DeviceKind = "audiooutput"
)

// Device describes one hardware device. The label may be empty until the
// platform grants permission.
type Device struct {
	ID    string
	Kind  DeviceKind
	Label string
}

// IsVirtual reports whether the device label suggests a virtual or software
// camera. These drivers initialize slowly; the fixed settle windows are sized
// with them in mind, and device listings flag them for the operator.
func (d Device) IsVirtual() bool {
	return labelSuggestsVirtual(d.Label)
}

// Frame is one captured video frame with metadata.
type Frame struct {
	Pixels    []byte    // raw pixel data, RGB24
	Width     int       // frame width in pixels
	Height    int       // frame height in pixels
	Timestamp time.Time // when this frame was captured
	DeviceID  string    // identifier of the device that produced it
}

// FrameSource represents one open camera capture stream.
type FrameSource interface {
	// DeviceID returns the identifier of the bound device
	DeviceID() string

	// Open acquires the hardware stream
	Open(ctx context.Context) error

	// Frames returns a channel that emits captured frames
	Frames() <-chan Frame

	// Errors returns a channel for hardware read errors
	Errors() <-chan error

	// Ready reports whether the stream delivers readable frames
	Ready() bool

	// Dimensions returns the current frame dimensions; both are zero
	// during camera warm-up
	Dimensions() (width, height int)

	// Close stops every track on the stream and releases the hardware.
	// It is safe to call multiple times.
	Close() error
}

// CaptureConfig carries the resolution hints passed when opening a stream.
type CaptureConfig struct {
	Width     int
	Height    int
	FrameRate int
}

// SourceFactory opens capture streams for device ids. The grid and the
// sessions never construct sources directly so tests can substitute fakes.
type SourceFactory interface {
	NewSource(deviceID string, config CaptureConfig) (FrameSource, error)
}

// BoundingBox locates a detection in source-frame pixel coordinates.
type BoundingBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Detection is one inference result.
type Detection struct {
	Class       string      // object class label
	Score       float64     // confidence, 0..1
	Box         BoundingBox // location in the source frame
	CameraIndex int         // grid position of the originating camera
}

// Detector is the opaque pre-trained model collaborator.
type Detector interface {
	// Initialize loads the model; it may fail
	Initialize(ctx context.Context) error

	// Detect runs inference on a frame and returns labeled boxes
	Detect(ctx context.Context, frame *Frame) ([]Detection, error)

	// Close releases model resources
	Close() error
}

// DetectorFactory creates one detector handle per session.
type DetectorFactory interface {
	NewDetector() (Detector, error)
}

// Surface is the drawing target for rendered predictions.
type Surface interface {
	// Clear erases the surface
	Clear()

	// StrokeRect draws a box outline
	StrokeRect(box BoundingBox, color string, lineWidth float64)

	// FillRect draws a filled rectangle; color accepts an optional alpha
	FillRect(x, y, width, height float64, color string, alpha float64)

	// FillText draws label text at the given position
	FillText(text string, x, y float64, color string)

	// MeasureText returns the painted size of the given text
	MeasureText(text string) (width, height float64)
}

// DetectionObserver receives every rendered detection. Implementations must
// be fast and must never panic into the render path; the renderer recovers
// panics and drops slow observers' errors.
type DetectionObserver interface {
	ObserveDetection(det Detection)
}

// CameraSetting is the persisted per-user, per-device configuration.
type CameraSetting struct {
	DeviceID    string
	Enabled     bool
	Sensitivity float64
	DisplayName string
}

// SettingsStore persists camera settings and pause state across restarts.
type SettingsStore interface {
	// CameraSetting returns the stored setting and whether one existed
	CameraSetting(userID, deviceID string) (CameraSetting, bool, error)

	// SaveCameraSetting upserts a setting
	SaveCameraSetting(userID string, setting CameraSetting) error

	// PausedCameras returns the camera indices paused by the user
	PausedCameras(userID string) ([]int, error)

	// SavePausedCameras persists the user's paused camera indices
	SavePausedCameras(userID string, indices []int) error
}

// HistoryRecorder receives significant detections for persistence. The
// notification fan-out hangs off this hook.
type HistoryRecorder interface {
	AddDetection(userID, deviceID string, det Detection) error
}
