package analytics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelvision/sentinel-go/internal/videocore"
)

func TestNewMQTTSinkGeneratesClientID(t *testing.T) {
	t.Parallel()

	sink := NewMQTTSink(MQTTConfig{Broker: "tcp://localhost:1883", Topic: "detections"})
	assert.NotEmpty(t, sink.cfg.ClientID)

	named := NewMQTTSink(MQTTConfig{ClientID: "fixed"})
	assert.Equal(t, "fixed", named.cfg.ClientID)
}

func TestObserveDetectionWithoutConnectionIsNoop(t *testing.T) {
	t.Parallel()

	sink := NewMQTTSink(MQTTConfig{Broker: "tcp://localhost:1883", Topic: "detections"})
	// Must not panic or block when never connected.
	sink.ObserveDetection(videocore.Detection{Class: "person", Score: 0.9})
	sink.Close()
}

func TestDetectionEventEncoding(t *testing.T) {
	t.Parallel()

	payload, err := json.Marshal(detectionEvent{
		Class:       "person",
		Score:       0.87,
		CameraIndex: 2,
		X:           10, Y: 20, Width: 30, Height: 40,
		Timestamp: "2025-06-18T15:00:00Z",
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "person", decoded["class"])
	assert.EqualValues(t, 2, decoded["camera_index"])
	assert.Contains(t, decoded, "score")
	assert.Contains(t, decoded, "timestamp")
}
