// Package notify derives user notifications from significant detections and
// broadcasts them to in-process subscribers.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sentinelvision/sentinel-go/internal/errors"
	"github.com/sentinelvision/sentinel-go/internal/logging"
	"github.com/sentinelvision/sentinel-go/internal/store"
	"github.com/sentinelvision/sentinel-go/internal/videocore"
)

const (
	// TypeDetection marks notifications derived from detections.
	TypeDetection = "detection"

	defaultNotifyScore  = 0.7
	defaultRateInterval = time.Second
	defaultRateBurst    = 30
	subscriberBuffer    = 16
)

// Subscriber receives notifications as they are created. A subscriber that
// falls behind misses notifications rather than blocking the pipeline.
type Subscriber struct {
	ch      chan store.Notification
	service *Service
}

// Notifications returns the subscriber's delivery channel.
func (s *Subscriber) Notifications() <-chan store.Notification { return s.ch }

// Close unregisters the subscriber.
func (s *Subscriber) Close() { s.service.unsubscribe(s) }

// Config tunes the notification service.
type Config struct {
	// NotifyScore is the person confidence above which a notification is
	// created. Defaults to 0.7.
	NotifyScore float64

	// RateInterval and RateBurst bound notification creation; excess
	// qualifying detections are dropped with a log line.
	RateInterval time.Duration
	RateBurst    int
}

// Service persists significant detections and fans qualifying ones out as
// notifications to the owner and every related user. It implements
// videocore.HistoryRecorder so sessions feed it directly.
type Service struct {
	cfg   Config
	store *store.DataStore

	subscribersMu sync.RWMutex
	subscribers   []*Subscriber

	limiter *rateLimiter
	logger  *slog.Logger
}

// NewService creates a notification service over the store.
func NewService(cfg Config, ds *store.DataStore, opts ...Option) *Service {
	if cfg.NotifyScore <= 0 {
		cfg.NotifyScore = defaultNotifyScore
	}
	if cfg.RateInterval <= 0 {
		cfg.RateInterval = defaultRateInterval
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	s := &Service{
		cfg:     cfg,
		store:   ds,
		limiter: newRateLimiter(cfg.RateBurst, cfg.RateInterval, clock.New()),
		logger:  logging.ForService("notify"),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects the rate limiter clock for tests.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) { s.limiter.clk = clk }
}

// AddDetection records a significant detection in the owner's history and,
// when it qualifies, creates notifications for the owner and every related
// user.
func (s *Service) AddDetection(userID, deviceID string, det videocore.Detection) error {
	entry, err := s.store.AddHistoryEntry(userID, deviceID, det)
	if err != nil {
		return err
	}

	if det.Class != videocore.PersonClass || det.Score <= s.cfg.NotifyScore {
		return nil
	}
	if !s.limiter.Allow() {
		s.logger.Debug("notification rate limit exceeded",
			"user_id", userID,
			"camera_index", det.CameraIndex)
		return nil
	}

	message := fmt.Sprintf("A person was detected with %.1f%% confidence on Camera %d",
		det.Score*100, det.CameraIndex+1)

	owned, err := s.store.AddNotification(store.NewNotification{
		UserID:  userID,
		Title:   "Person Detected",
		Message: message,
		Type:    TypeDetection,
		EntryID: entry.EntryID,
	})
	if err != nil {
		return errors.New(err).
			Component("notify").
			Category(errors.CategoryNotification).
			Context("operation", "notify_owner").
			Context("user_id", userID).
			Build()
	}
	s.broadcast(owned)

	s.fanOut(userID, entry.EntryID, message)
	return nil
}

// fanOut delivers an annotated copy to every related user. Each copy is
// independently capped and independently read/unread; a failure for one
// related user does not stop the others.
func (s *Service) fanOut(fromUserID, entryID, message string) {
	related, err := s.store.RelatedUsers(fromUserID)
	if err != nil {
		s.logger.Error("could not resolve related users",
			"user_id", fromUserID,
			"error", err)
		return
	}
	for _, relatedID := range related {
		derived, err := s.store.AddNotification(store.NewNotification{
			UserID:     relatedID,
			FromUserID: fromUserID,
			Title:      fmt.Sprintf("Person Detected (from %s)", fromUserID),
			Message:    message,
			Type:       TypeDetection,
			EntryID:    entryID,
		})
		if err != nil {
			s.logger.Error("failed to fan out notification",
				"from_user", fromUserID,
				"to_user", relatedID,
				"error", err)
			continue
		}
		s.broadcast(derived)
	}
}

// Subscribe registers for live notification delivery.
func (s *Service) Subscribe() *Subscriber {
	sub := &Subscriber{
		ch:      make(chan store.Notification, subscriberBuffer),
		service: s,
	}
	s.subscribersMu.Lock()
	s.subscribers = append(s.subscribers, sub)
	s.subscribersMu.Unlock()
	return sub
}

func (s *Service) unsubscribe(sub *Subscriber) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	for i := range s.subscribers {
		if s.subscribers[i] == sub {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

func (s *Service) broadcast(notification store.Notification) {
	s.subscribersMu.RLock()
	defer s.subscribersMu.RUnlock()
	for _, sub := range s.subscribers {
		select {
		case sub.ch <- notification:
		default:
			s.logger.Warn("dropping notification for slow subscriber",
				"notification_id", notification.NotificationID)
		}
	}
}

// rateLimiter is a sliding-window counter bounding notification creation.
type rateLimiter struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	clk      clock.Clock
	attempts []time.Time
}

func newRateLimiter(max int, window time.Duration, clk clock.Clock) *rateLimiter {
	return &rateLimiter{max: max, window: window, clk: clk}
}

// Allow reports whether another notification may be created now.
func (r *rateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	cutoff := now.Add(-r.window)
	kept := r.attempts[:0]
	for _, t := range r.attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.attempts = kept

	if len(r.attempts) >= r.max {
		return false
	}
	r.attempts = append(r.attempts, now)
	return true
}
