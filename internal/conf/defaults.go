package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets the viper defaults. Every key mirrors a field in
// Settings; the embedded config.yaml documents the same values.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("userid", "")

	viper.SetDefault("capture.width", 1280)
	viper.SetDefault("capture.height", 720)
	viper.SetDefault("capture.framerate", 30)
	viper.SetDefault("capture.ffmpegpath", "ffmpeg")
	viper.SetDefault("capture.snapshotdir", "")

	viper.SetDefault("detector.modelpath", "model/ssd_mobilenet_v2.tflite")
	viper.SetDefault("detector.labelpath", "model/labels.txt")
	viper.SetDefault("detector.maxresults", 20)
	viper.SetDefault("detector.minscore", 0.4)

	viper.SetDefault("enumeration.maxattempts", 3)
	viper.SetDefault("enumeration.firstdelay", 500*time.Millisecond)
	viper.SetDefault("enumeration.nextdelay", 1*time.Second)

	viper.SetDefault("session.defaultsensitivity", 0.6)
	viper.SetDefault("session.highconfidence", 0.85)
	viper.SetDefault("session.switchsettle", 1500*time.Millisecond)
	viper.SetDefault("session.recoverysettle", 2*time.Second)
	viper.SetDefault("session.failoverdelay", 1*time.Second)
	viper.SetDefault("session.maxinferencefailures", 5)

	viper.SetDefault("alert.soundpath", "assets/alert-alarm.wav")
	viper.SetDefault("alert.outputdevice", "")
	viper.SetDefault("alert.throttle", 6*time.Second)
	viper.SetDefault("alert.notifyscore", 0.7)
	viper.SetDefault("alert.maxhistory", 100)
	viper.SetDefault("alert.maxunreadkept", 50)

	viper.SetDefault("store.path", "sentinel.db")

	viper.SetDefault("analytics.enabled", false)
	viper.SetDefault("analytics.broker", "tcp://localhost:1883")
	viper.SetDefault("analytics.topic", "sentinel/detections")
	viper.SetDefault("analytics.username", "")
	viper.SetDefault("analytics.password", "")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "localhost:8090")

	viper.SetDefault("log.path", "")
	viper.SetDefault("log.maxsizemb", 100)
	viper.SetDefault("log.maxbackups", 3)
	viper.SetDefault("log.maxagedays", 28)
}
