package videocore

import "github.com/sentinelvision/sentinel-go/internal/errors"

// Sentinel errors for the camera and detection pipeline.
var (
	// ErrPermissionDenied is returned on explicit camera or microphone
	// permission denial. Terminal until the user intervenes; never retried.
	ErrPermissionDenied = errors.Newf("camera permission denied").
				Component(ComponentVideoCore).
				Category(errors.CategoryPermission).
				Build()

	// ErrDevicesUnavailable is surfaced when enumeration exhausts its
	// retries without finding labeled devices.
	ErrDevicesUnavailable = errors.Newf("permission denied or cameras unavailable").
				Component(ComponentVideoCore).
				Category(errors.CategoryDevice).
				Build()

	// ErrSinkSelectionUnsupported reports that the platform exposes no
	// audio output selection capability at all, as distinct from denial.
	ErrSinkSelectionUnsupported = errors.Newf("audio output device selection is not supported").
					Component(ComponentVideoCore).
					Category(errors.CategoryDevice).
					Build()

	// ErrModelLoadFailed is terminal for a session; the user must retry
	// explicitly.
	ErrModelLoadFailed = errors.Newf("failed to load model").
				Component(ComponentVideoCore).
				Category(errors.CategoryModelLoad).
				Build()

	// ErrSessionDisposed is returned by operations on a disposed session.
	ErrSessionDisposed = errors.Newf("session already disposed").
				Component(ComponentVideoCore).
				Category(errors.CategoryState).
				Build()

	// ErrDeviceNotFound is returned when a grid operation names an
	// unknown device id.
	ErrDeviceNotFound = errors.Newf("device not found").
				Component(ComponentVideoCore).
				Category(errors.CategoryNotFound).
				Build()
)
