package conf

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func loadDefaults(t *testing.T) *Settings {
	t.Helper()
	viper.Reset()
	setDefaultConfig()

	settings := &Settings{}
	require.NoError(t, viper.Unmarshal(settings))
	return settings
}

func TestDefaultValues(t *testing.T) {
	s := loadDefaults(t)

	assert.InDelta(t, 0.6, s.Session.DefaultSensitivity, 1e-9)
	assert.InDelta(t, 0.85, s.Session.HighConfidence, 1e-9)
	assert.InDelta(t, 0.7, s.Alert.NotifyScore, 1e-9)
	assert.Equal(t, 6*time.Second, s.Alert.Throttle)
	assert.Equal(t, 100, s.Alert.MaxHistory)
	assert.Equal(t, 50, s.Alert.MaxUnreadKept)
	assert.Equal(t, 3, s.Enumeration.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, s.Enumeration.FirstDelay)
	assert.Equal(t, 1500*time.Millisecond, s.Session.SwitchSettle)
	assert.Equal(t, 5, s.Session.MaxInferenceFailures)
}

// TestEmbeddedConfigMatchesDefaults keeps the documented config.yaml in
// sync with the viper defaults.
func TestEmbeddedConfigMatchesDefaults(t *testing.T) {
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(defaultConfig, &doc))

	session, ok := doc["session"].(map[string]any)
	require.True(t, ok, "config.yaml must carry a session section")
	assert.InDelta(t, 0.6, session["defaultsensitivity"], 1e-9)
	assert.InDelta(t, 0.85, session["highconfidence"], 1e-9)

	alert, ok := doc["alert"].(map[string]any)
	require.True(t, ok, "config.yaml must carry an alert section")
	assert.Equal(t, 100, alert["maxhistory"])
	assert.Equal(t, 50, alert["maxunreadkept"])
	assert.Equal(t, "6s", alert["throttle"])

	enumeration, ok := doc["enumeration"].(map[string]any)
	require.True(t, ok, "config.yaml must carry an enumeration section")
	assert.Equal(t, 3, enumeration["maxattempts"])
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults are valid", func(s *Settings) {}, false},
		{"sensitivity above one", func(s *Settings) { s.Session.DefaultSensitivity = 1.2 }, true},
		{"negative notify score", func(s *Settings) { s.Alert.NotifyScore = -0.1 }, true},
		{"zero enumeration attempts", func(s *Settings) { s.Enumeration.MaxAttempts = 0 }, true},
		{"zero history cap", func(s *Settings) { s.Alert.MaxHistory = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadDefaults(t)
			tt.mutate(s)
			err := validateSettings(s)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
