package videocore

import (
	"strings"
	"time"
)

// ComponentVideoCore is the component tag used in enhanced errors.
const ComponentVideoCore = "videocore"

// Lifecycle timing defaults. These accommodate slow-initializing virtual
// and software camera drivers; they are fixed windows, not adaptive.
const (
	// DefaultSwitchSettle is the delay between releasing a stream and
	// reloading the model after a device switch
	DefaultSwitchSettle = 1500 * time.Millisecond
	// DefaultRecoverySettle is the delay before reacquiring after a
	// forced recovery
	DefaultRecoverySettle = 2 * time.Second
	// DefaultFailoverDelay is the delay before trying the next device
	// after a hardware read error
	DefaultFailoverDelay = 1 * time.Second
	// DefaultMaxInferenceFailures is the consecutive-failure bound that
	// forces a full teardown-and-reacquire cycle
	DefaultMaxInferenceFailures = 5
	// DefaultAlertThrottle is the hard rate limit window for the alarm
	DefaultAlertThrottle = 6 * time.Second
	// DefaultSensitivity is the person threshold for new camera settings
	DefaultSensitivity = 0.6
	// DefaultHighConfidence is the any-class significance threshold
	DefaultHighConfidence = 0.85
)

// PersonClass is the detection class that triggers alerts and notifications.
const PersonClass = "person"

// Rendering styles, matching the original overlay colors.
const (
	personStrokeColor = "#FF0000"
	otherStrokeColor  = "#00FFFF"
	labelTextColor    = "#000000"
	personFillAlpha   = 0.2
	boxLineWidth      = 4.0
	labelPadding      = 4.0
)

// virtualLabelHints mark device labels that usually belong to virtual or
// software cameras (OBS and friends).
var virtualLabelHints = []string{"obs", "virtual", "capture"}

func labelSuggestsVirtual(label string) bool {
	lower := strings.ToLower(label)
	for _, hint := range virtualLabelHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
