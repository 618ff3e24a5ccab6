package realtime

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sentinelvision/sentinel-go/internal/conf"
	"github.com/sentinelvision/sentinel-go/internal/monitor"
)

// Command creates a new command for realtime camera detection.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Run detection on all cameras in realtime mode",
		Long:  "Start detection sessions for every available camera and keep them running until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return monitor.RunMonitor(settings)
		},
	}

	// Set up flags specific to the 'realtime' command
	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Detector.ModelPath, "model", viper.GetString("detector.modelpath"), "Path to the detection model file")
	cmd.Flags().StringVar(&settings.Detector.LabelPath, "labels", viper.GetString("detector.labelpath"), "Path to the class label file")
	cmd.Flags().StringVar(&settings.Capture.FfmpegPath, "ffmpeg", viper.GetString("capture.ffmpegpath"), "Path to the ffmpeg binary")
	cmd.Flags().IntVar(&settings.Capture.Width, "width", viper.GetInt("capture.width"), "Requested capture width")
	cmd.Flags().IntVar(&settings.Capture.Height, "height", viper.GetInt("capture.height"), "Requested capture height")
	cmd.Flags().IntVar(&settings.Capture.FrameRate, "framerate", viper.GetInt("capture.framerate"), "Requested capture frame rate")
	cmd.Flags().StringVar(&settings.Capture.SnapshotDir, "snapshotdir", viper.GetString("capture.snapshotdir"), "Directory for annotated person snapshots, empty disables")
	cmd.Flags().StringVar(&settings.Alert.SoundPath, "sound", viper.GetString("alert.soundpath"), "Path to the alert sound clip")
	cmd.Flags().StringVar(&settings.Alert.OutputDevice, "output", viper.GetString("alert.outputdevice"), "Audio output device for alerts (name substring)")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Enable Prometheus telemetry endpoint")
	cmd.Flags().StringVar(&settings.Telemetry.Listen, "listen", viper.GetString("telemetry.listen"), "Listen address and port of telemetry endpoint")
	cmd.Flags().BoolVar(&settings.Analytics.Enabled, "mqtt", viper.GetBool("analytics.enabled"), "Publish detections to the MQTT analytics broker")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
