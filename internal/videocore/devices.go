package videocore

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	gocache "github.com/patrickmn/go-cache"

	"github.com/sentinelvision/sentinel-go/internal/errors"
	"github.com/sentinelvision/sentinel-go/internal/logging"
	"github.com/sentinelvision/sentinel-go/internal/observability/metrics"
)

// DeviceLister is the platform collaborator behind the enumerator. The
// ffmpeg source package provides the real implementation; tests use fakes.
type DeviceLister interface {
	// ListDevices returns the current device snapshot for a kind. Labels
	// may be empty until permission is granted.
	ListDevices(ctx context.Context, kind DeviceKind) ([]Device, error)

	// RequestPermission triggers the platform permission prompt for a
	// device kind. Explicit denial returns ErrPermissionDenied.
	RequestPermission(ctx context.Context, kind DeviceKind) error

	// SupportsSinkSelection reports whether the platform can route audio
	// to a chosen output device at all.
	SupportsSinkSelection() bool
}

const (
	deviceCacheTTL     = 30 * time.Second
	deviceCacheCleanup = time.Minute
)

// Enumerator discovers capture and playback hardware. Because device labels
// are frequently empty immediately after a permission grant, enumeration
// retries a bounded number of times before settling for an unlabeled list.
type Enumerator struct {
	lister  DeviceLister
	policy  *RetryPolicy
	clock   clock.Clock
	cache   *gocache.Cache
	logger  *slog.Logger
	metrics *metrics.VideoCoreMetrics
}

// EnumeratorOption configures an Enumerator.
type EnumeratorOption func(*Enumerator)

// WithEnumeratorClock injects a clock, used by tests to skip the backoff.
func WithEnumeratorClock(clk clock.Clock) EnumeratorOption {
	return func(e *Enumerator) { e.clock = clk }
}

// WithEnumeratorMetrics wires the prometheus collectors.
func WithEnumeratorMetrics(m *metrics.VideoCoreMetrics) EnumeratorOption {
	return func(e *Enumerator) { e.metrics = m }
}

// NewEnumerator creates an enumerator around a platform lister and a retry
// policy. A nil policy gets the standard bounded backoff.
func NewEnumerator(lister DeviceLister, policy *RetryPolicy, opts ...EnumeratorOption) *Enumerator {
	if policy == nil {
		policy = EnumerationRetryPolicy(0, 0, 0)
	}
	e := &Enumerator{
		lister: lister,
		policy: policy,
		clock:  clock.New(),
		cache:  gocache.New(deviceCacheTTL, deviceCacheCleanup),
		logger: logging.ForService("videocore"),
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enumerate returns the device list for a kind, waiting for labels to
// populate. After exhausting retries it returns the unlabeled snapshot
// together with ErrDevicesUnavailable so callers can both degrade and
// surface the condition. Explicit permission denial is returned immediately
// without retrying.
func (e *Enumerator) Enumerate(ctx context.Context, kind DeviceKind) ([]Device, error) {
	if cached, found := e.cache.Get(string(kind)); found {
		return cached.([]Device), nil
	}

	if kind == DeviceAudioOutput && !e.lister.SupportsSinkSelection() {
		e.logger.Info("audio output selection unsupported on this platform")
		return nil, ErrSinkSelectionUnsupported
	}

	if err := e.lister.RequestPermission(ctx, kind); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			e.logger.Warn("permission denied for device kind", "kind", kind)
			return nil, err
		}
		return nil, errors.New(err).
			Component(ComponentVideoCore).
			Category(errors.CategoryPermission).
			Context("kind", string(kind)).
			Build()
	}

	var devices []Device
	err := e.policy.Do(ctx, e.clock, func(attempt int) error {
		if attempt > 1 {
			e.logger.Debug("retrying device enumeration",
				"kind", kind,
				"attempt", attempt,
				"max_attempts", e.policy.MaxAttempts)
			if e.metrics != nil {
				e.metrics.EnumerationRetries.Inc()
			}
		}

		list, err := e.lister.ListDevices(ctx, kind)
		if err != nil {
			return err
		}
		devices = list

		if !anyLabeled(list) {
			return errors.Newf("no labeled %s devices yet", kind).
				Component(ComponentVideoCore).
				Category(errors.CategoryDevice).
				Context("device_count", len(list)).
				Build()
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return nil, err
		}
		// Degrade to whatever snapshot the last attempt produced, but
		// surface the terminal unavailable state to the caller.
		e.logger.Warn("device enumeration gave up",
			"kind", kind,
			"attempts", e.policy.MaxAttempts,
			"unlabeled_devices", len(devices))
		return devices, ErrDevicesUnavailable
	}

	e.cache.Set(string(kind), devices, gocache.DefaultExpiration)
	e.logger.Info("devices enumerated",
		"kind", kind,
		"count", len(devices))
	return devices, nil
}

// Invalidate drops the cached snapshot for a kind. Wire this to the
// platform's device-change signal.
func (e *Enumerator) Invalidate(kind DeviceKind) {
	e.cache.Delete(string(kind))
}

// RequestPermission exposes the underlying permission prompt.
func (e *Enumerator) RequestPermission(ctx context.Context, kind DeviceKind) error {
	return e.lister.RequestPermission(ctx, kind)
}

func anyLabeled(devices []Device) bool {
	for i := range devices {
		if devices[i].Label != "" {
			return true
		}
	}
	return false
}
