package videocore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sentinelvision/sentinel-go/internal/logging"
	"github.com/sentinelvision/sentinel-go/internal/observability/metrics"
)

// AlertFunc plays the alarm sound. The renderer calls it through a hard
// rate limiter so a crowd of person detections cannot machine-gun the alarm.
type AlertFunc func()

// Renderer paints detections onto a surface and raises throttled alerts.
// Observers registered at construction time receive every detection; this
// replaces ambient global hooks with explicit registration.
type Renderer struct {
	pause    *PauseCoordinator
	alert    AlertFunc
	throttle *alertThrottle

	observersMu sync.RWMutex
	observers   []DetectionObserver

	logger  *slog.Logger
	metrics *metrics.VideoCoreMetrics
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithRendererClock injects the throttle clock for tests.
func WithRendererClock(clk clock.Clock) RendererOption {
	return func(r *Renderer) { r.throttle.clk = clk }
}

// WithRendererMetrics wires the prometheus collectors.
func WithRendererMetrics(m *metrics.VideoCoreMetrics) RendererOption {
	return func(r *Renderer) { r.metrics = m }
}

// WithAlertThrottle overrides the alert rate limit window.
func WithAlertThrottle(interval time.Duration) RendererOption {
	return func(r *Renderer) { r.throttle.interval = interval }
}

// NewRenderer creates a renderer. The alert func may be nil when no sound
// output is configured.
func NewRenderer(pause *PauseCoordinator, alert AlertFunc, opts ...RendererOption) *Renderer {
	r := &Renderer{
		pause: pause,
		alert: alert,
		throttle: &alertThrottle{
			interval: DefaultAlertThrottle,
			clk:      clock.New(),
		},
		logger: logging.ForService("videocore"),
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterObserver adds an analytics observer. Registration is explicit so
// teardown cannot race an ambient global.
func (r *Renderer) RegisterObserver(obs DetectionObserver) {
	r.observersMu.Lock()
	defer r.observersMu.Unlock()
	r.observers = append(r.observers, obs)
}

// Render paints the detections for one camera tick. A paused camera paints
// nothing and fires no alert; the surface keeps its last painted state. A nil
// surface skips drawing entirely while observers, metrics and alerts still
// run, so headless sessions keep their full detection pipeline.
func (r *Renderer) Render(detections []Detection, surface Surface, cameraIndex int) {
	if r.pause.IsPaused(cameraIndex) {
		return
	}

	if surface != nil {
		surface.Clear()
	}

	personSeen := false
	for i := range detections {
		det := &detections[i]
		if surface != nil {
			r.drawDetection(surface, det)
		}
		r.notifyObservers(*det)
		if r.metrics != nil {
			r.metrics.DetectionsTotal.WithLabelValues(det.Class).Inc()
		}
		if det.Class == PersonClass {
			personSeen = true
		}
	}

	if personSeen {
		r.triggerAlert(cameraIndex)
	}
}

func (r *Renderer) drawDetection(surface Surface, det *Detection) {
	isPerson := det.Class == PersonClass

	strokeColor := otherStrokeColor
	if isPerson {
		strokeColor = personStrokeColor
	}

	surface.StrokeRect(det.Box, strokeColor, boxLineWidth)
	if isPerson {
		surface.FillRect(det.Box.X, det.Box.Y, det.Box.Width, det.Box.Height, personStrokeColor, personFillAlpha)
	}

	// Label background sized to the text, then the label itself.
	textWidth, textHeight := surface.MeasureText(det.Class)
	surface.FillRect(det.Box.X, det.Box.Y, textWidth+labelPadding, textHeight+labelPadding, strokeColor, 1)
	surface.FillText(det.Class, det.Box.X, det.Box.Y, labelTextColor)
}

func (r *Renderer) triggerAlert(cameraIndex int) {
	if r.alert == nil {
		return
	}
	if !r.throttle.Allow() {
		if r.metrics != nil {
			r.metrics.AlertsThrottled.Inc()
		}
		return
	}
	if r.metrics != nil {
		r.metrics.AlertsTotal.Inc()
	}
	r.logger.Debug("alert fired", "camera_index", cameraIndex)
	r.alert()
}

// notifyObservers fans a detection out to every registered observer.
// Observer panics are recovered so analytics can never break rendering.
func (r *Renderer) notifyObservers(det Detection) {
	r.observersMu.RLock()
	observers := r.observers
	r.observersMu.RUnlock()

	for _, obs := range observers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("detection observer panicked",
						"panic", rec,
						"class", det.Class)
				}
			}()
			obs.ObserveDetection(det)
		}()
	}
}

// alertThrottle is a hard rate limiter, not a debounce: the first call in a
// window fires immediately and every later call is suppressed until the
// window elapses.
type alertThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	clk      clock.Clock
	lastFire time.Time
	fired    bool
}

// Allow reports whether a call may fire now, consuming the window if so.
func (t *alertThrottle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	if t.fired && now.Sub(t.lastFire) < t.interval {
		return false
	}
	t.lastFire = now
	t.fired = true
	return true
}
