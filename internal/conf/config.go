// Package conf loads and exposes the sentinel-go application settings.
package conf

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/sentinelvision/sentinel-go/internal/errors"
)

//go:embed config.yaml
var defaultConfig []byte

// CaptureSettings controls camera stream acquisition.
type CaptureSettings struct {
	Width      int    // requested frame width hint
	Height     int    // requested frame height hint
	FrameRate  int    // requested capture frame rate
	FfmpegPath string // path to ffmpeg binary, runtime value

	SnapshotDir string // directory for annotated person snapshots, empty disables
}

// DetectorSettings controls the object detection model collaborator.
type DetectorSettings struct {
	ModelPath  string  // path to the pre-trained model file
	LabelPath  string  // path to the class label file
	MaxResults int     // maximum detections returned per frame
	MinScore   float64 // model-level minimum confidence
}

// EnumerationSettings bounds the device discovery retry loop.
type EnumerationSettings struct {
	MaxAttempts int           // attempts before giving up on labels
	FirstDelay  time.Duration // delay before the second attempt
	NextDelay   time.Duration // delay between remaining attempts
}

// SessionSettings holds the detector session lifecycle tuning knobs.
type SessionSettings struct {
	DefaultSensitivity   float64       // per-camera person threshold default
	HighConfidence       float64       // any-class significance threshold
	SwitchSettle         time.Duration // settle delay after a device switch
	RecoverySettle       time.Duration // settle delay after forced recovery
	FailoverDelay        time.Duration // delay before trying the next device
	MaxInferenceFailures int           // consecutive failures forcing restart
}

// AlertSettings controls the throttled alarm sound.
type AlertSettings struct {
	SoundPath     string        // path to the alert clip, wav format
	OutputDevice  string        // preferred audio output device, empty for default
	Throttle      time.Duration // minimum interval between alert sounds
	NotifyScore   float64       // person score that creates a notification
	MaxHistory    int           // history entries kept per user
	MaxUnreadKept int           // notifications kept per user
}

// StoreSettings configures the persistence layer.
type StoreSettings struct {
	Path string // sqlite database file path
}

// AnalyticsSettings configures the optional MQTT detection sink.
type AnalyticsSettings struct {
	Enabled  bool
	Broker   string // MQTT broker URI, e.g. tcp://localhost:1883
	Topic    string
	Username string
	Password string
}

// TelemetrySettings configures the Prometheus metrics endpoint.
type TelemetrySettings struct {
	Enabled bool
	Listen  string // address and port of the metrics endpoint
}

// LogSettings configures file logging.
type LogSettings struct {
	Path       string // log file path, empty disables file logging
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Settings is the root configuration for the application.
type Settings struct {
	Debug bool // enable debug output

	UserID string // identity collaborator: current user id

	Capture     CaptureSettings
	Detector    DetectorSettings
	Enumeration EnumerationSettings
	Session     SessionSettings
	Alert       AlertSettings
	Store       StoreSettings
	Analytics   AnalyticsSettings
	Telemetry   TelemetrySettings
	Log         LogSettings
}

// DefaultUserID keys history, notifications and camera settings when no
// user id is configured.
const DefaultUserID = "default"

// EffectiveUserID returns the configured user id, or DefaultUserID.
func (s *Settings) EffectiveUserID() string {
	if s.UserID == "" {
		return DefaultUserID
	}
	return s.UserID
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment into a Settings struct.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfig).
			Context("operation", "unmarshal_settings").
			Build()
	}

	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settings, nil
}

// initViper initializes viper with default values and reads the
// configuration file if one exists.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("SENTINEL")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file found, create one from the embedded defaults.
		if err := createDefaultConfig(configPaths[0]); err != nil {
			return err
		}
	}

	return nil
}

// createDefaultConfig writes the embedded default configuration to the
// first config path so the user has a file to edit.
func createDefaultConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}
	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in priority order.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user home directory: %w", err)
	}
	return []string{
		filepath.Join(homeDir, ".config", "sentinel-go"),
		".",
	}, nil
}

// validateSettings rejects configurations the runtime cannot honor.
func validateSettings(s *Settings) error {
	if s.Session.DefaultSensitivity < 0 || s.Session.DefaultSensitivity > 1 {
		return errors.Newf("session sensitivity must be between 0.0 and 1.0, got %v", s.Session.DefaultSensitivity).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Alert.NotifyScore < 0 || s.Alert.NotifyScore > 1 {
		return errors.Newf("alert notify score must be between 0.0 and 1.0, got %v", s.Alert.NotifyScore).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Enumeration.MaxAttempts < 1 {
		return errors.Newf("enumeration max attempts must be at least 1, got %d", s.Enumeration.MaxAttempts).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Alert.MaxHistory < 1 || s.Alert.MaxUnreadKept < 1 {
		return errors.Newf("history and notification caps must be positive").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Setting returns the current settings instance, loading it on first use.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				panic(fmt.Sprintf("error loading settings: %v", err))
			}
		}
	})
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
