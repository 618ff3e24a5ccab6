// Package analytics forwards rendered detections to external sinks. Sinks
// are fire-and-forget observers; they must never propagate failures back
// into the render path.
package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sentinelvision/sentinel-go/internal/errors"
	"github.com/sentinelvision/sentinel-go/internal/logging"
	"github.com/sentinelvision/sentinel-go/internal/videocore"
)

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 5 * time.Second
)

// MQTTConfig addresses the analytics broker.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	Topic    string
	ClientID string // random suffix appended when empty
	Username string
	Password string
}

// detectionEvent is the published payload for one detection.
type detectionEvent struct {
	Class       string  `json:"class"`
	Score       float64 `json:"score"`
	CameraIndex int     `json:"camera_index"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Timestamp   string  `json:"timestamp"`
}

// MQTTSink publishes every observed detection to an MQTT topic. It
// implements videocore.DetectionObserver.
type MQTTSink struct {
	cfg    MQTTConfig
	client mqtt.Client
	mu     sync.Mutex
	logger *slog.Logger
}

// NewMQTTSink creates an unconnected sink. Call Connect before registering
// it with the renderer.
func NewMQTTSink(cfg MQTTConfig) *MQTTSink {
	if cfg.ClientID == "" {
		cfg.ClientID = "sentinel-" + uuid.New().String()[:8]
	}
	logger := logging.ForService("analytics")
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTSink{cfg: cfg, logger: logger}
}

// Connect establishes the broker connection with automatic reconnect.
func (s *MQTTSink) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetUsername(s.cfg.Username)
	opts.SetPassword(s.cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("analytics broker connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		s.logger.Info("connected to analytics broker", "broker", s.cfg.Broker)
	})

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()

	select {
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component("analytics").
			Category(errors.CategoryCancellation).
			Context("operation", "connect").
			Build()
	case <-time.After(connectTimeout):
		return errors.Newf("timed out connecting to analytics broker %s", s.cfg.Broker).
			Component("analytics").
			Category(errors.CategoryTimeout).
			Build()
	case <-token.Done():
		if err := token.Error(); err != nil {
			return errors.New(err).
				Component("analytics").
				Category(errors.CategoryAnalytics).
				Context("operation", "connect").
				Context("broker", s.cfg.Broker).
				Build()
		}
	}
	return nil
}

// ObserveDetection publishes one detection. Failures are logged and
// swallowed; the render path never sees them.
func (s *MQTTSink) ObserveDetection(det videocore.Detection) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return
	}

	payload, err := json.Marshal(detectionEvent{
		Class:       det.Class,
		Score:       det.Score,
		CameraIndex: det.CameraIndex,
		X:           det.Box.X,
		Y:           det.Box.Y,
		Width:       det.Box.Width,
		Height:      det.Box.Height,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Error("failed to encode detection event", "error", err)
		return
	}

	token := client.Publish(s.cfg.Topic, 0, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			s.logger.Warn("detection publish timed out", "topic", s.cfg.Topic)
			return
		}
		if err := token.Error(); err != nil {
			s.logger.Error("detection publish failed",
				"topic", s.cfg.Topic,
				"error", err)
		}
	}()
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.client = nil
}
