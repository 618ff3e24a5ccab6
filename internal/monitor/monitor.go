// Package monitor wires the camera grid pipeline together and runs it
// until a termination signal arrives.
package monitor

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sentinelvision/sentinel-go/internal/analytics"
	"github.com/sentinelvision/sentinel-go/internal/audio"
	"github.com/sentinelvision/sentinel-go/internal/conf"
	"github.com/sentinelvision/sentinel-go/internal/detectors/tflite"
	"github.com/sentinelvision/sentinel-go/internal/logging"
	"github.com/sentinelvision/sentinel-go/internal/notify"
	"github.com/sentinelvision/sentinel-go/internal/observability"
	"github.com/sentinelvision/sentinel-go/internal/observability/metrics"
	"github.com/sentinelvision/sentinel-go/internal/overlay"
	"github.com/sentinelvision/sentinel-go/internal/store"
	"github.com/sentinelvision/sentinel-go/internal/videocore"
	"github.com/sentinelvision/sentinel-go/internal/videocore/sources/ffmpeg"
)

// RunMonitor starts realtime detection on every available camera and
// blocks until SIGINT or SIGTERM.
func RunMonitor(settings *conf.Settings) error {
	logger := logging.ForService("monitor")
	if logger == nil {
		logger = slog.Default().With("service", "monitor")
	}

	userID := settings.EffectiveUserID()

	dataStore := store.New(store.Config{
		Path:             settings.Store.Path,
		MaxHistoryItems:  settings.Alert.MaxHistory,
		MaxNotifications: settings.Alert.MaxUnreadKept,
		Debug:            settings.Debug,
	})
	if err := dataStore.Open(); err != nil {
		return err
	}
	defer closeDataStore(dataStore, logger)

	notifier := notify.NewService(notify.Config{
		NotifyScore: settings.Alert.NotifyScore,
	}, dataStore)

	player, err := audio.NewPlayer(audio.Config{
		SoundPath:    settings.Alert.SoundPath,
		OutputDevice: settings.Alert.OutputDevice,
	})
	if err != nil {
		logger.Warn("alert sound unavailable, continuing without playback", "error", err)
		player = nil
	} else {
		defer player.Close()
	}

	registry := prometheus.NewRegistry()
	vcMetrics, err := metrics.NewVideoCoreMetrics(registry)
	if err != nil {
		return err
	}

	var alert videocore.AlertFunc
	if player != nil && player.Enabled() {
		alert = player.Play
	}

	pause := videocore.NewPauseCoordinator()
	renderer := videocore.NewRenderer(pause, alert,
		videocore.WithAlertThrottle(settings.Alert.Throttle),
		videocore.WithRendererMetrics(vcMetrics))

	// One annotation surface per grid position, created lazily at the
	// configured capture size.
	var surfaceMu sync.Mutex
	surfaces := make(map[int]*overlay.Surface)
	surfaceFor := func(cameraIndex int) *overlay.Surface {
		surfaceMu.Lock()
		defer surfaceMu.Unlock()
		s, ok := surfaces[cameraIndex]
		if !ok {
			s = overlay.NewSurface(settings.Capture.Width, settings.Capture.Height)
			surfaces[cameraIndex] = s
		}
		return s
	}

	if settings.Capture.SnapshotDir != "" {
		writer, snapErr := overlay.NewSnapshotWriter(settings.Capture.SnapshotDir, surfaceFor)
		if snapErr != nil {
			logger.Warn("snapshots disabled", "error", snapErr)
		} else {
			renderer.RegisterObserver(writer)
			logger.Info("person snapshots enabled", "directory", settings.Capture.SnapshotDir)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if settings.Analytics.Enabled {
		sink := analytics.NewMQTTSink(analytics.MQTTConfig{
			Broker:   settings.Analytics.Broker,
			Topic:    settings.Analytics.Topic,
			Username: settings.Analytics.Username,
			Password: settings.Analytics.Password,
		})
		if mqttErr := sink.Connect(ctx); mqttErr != nil {
			logger.Warn("analytics sink unavailable", "broker", settings.Analytics.Broker, "error", mqttErr)
		} else {
			renderer.RegisterObserver(sink)
			defer sink.Close()
		}
	}

	lister := &ffmpeg.Lister{}
	if player != nil && player.Enabled() {
		lister.Audio = player
	}
	enumerator := videocore.NewEnumerator(lister,
		videocore.EnumerationRetryPolicy(
			settings.Enumeration.MaxAttempts,
			settings.Enumeration.FirstDelay,
			settings.Enumeration.NextDelay),
		videocore.WithEnumeratorMetrics(vcMetrics))

	detectorFactory, err := tflite.NewFactory(tflite.Config{
		ModelPath:  settings.Detector.ModelPath,
		LabelPath:  settings.Detector.LabelPath,
		MaxResults: settings.Detector.MaxResults,
		MinScore:   settings.Detector.MinScore,
		UseXNNPACK: true,
	})
	if err != nil {
		return err
	}

	grid := videocore.NewGrid(videocore.GridConfig{
		UserID: userID,
		Session: videocore.SessionConfig{
			Capture: videocore.CaptureConfig{
				Width:     settings.Capture.Width,
				Height:    settings.Capture.Height,
				FrameRate: settings.Capture.FrameRate,
			},
			SwitchSettle:         settings.Session.SwitchSettle,
			RecoverySettle:       settings.Session.RecoverySettle,
			FailoverDelay:        settings.Session.FailoverDelay,
			MaxInferenceFailures: settings.Session.MaxInferenceFailures,
			HighConfidence:       settings.Session.HighConfidence,
		},
	}, videocore.GridDeps{
		Enumerator: enumerator,
		Sources:    &ffmpeg.Factory{FfmpegPath: settings.Capture.FfmpegPath},
		Detectors:  detectorFactory,
		Renderer:   renderer,
		Pause:      pause,
		Settings:   dataStore,
		History:    notifier,
		SurfaceFor: func(cameraIndex int) videocore.Surface {
			return surfaceFor(cameraIndex)
		},
		Metrics: vcMetrics,
		Logger:  logger,
	})

	if err := grid.RestorePauseState(); err != nil {
		logger.Warn("pause state not restored", "error", err)
	}
	if err := grid.AttachAll(ctx); err != nil {
		// Keep running so cameras that did attach stay live; the CLI
		// reports devices that never came up.
		logger.Error("not all cameras attached", "error", err)
	}
	logger.Info("monitor started",
		"user_id", userID,
		"cameras", len(grid.Attached()))

	var wg sync.WaitGroup
	quitChan := make(chan struct{})

	if settings.Telemetry.Enabled {
		endpoint := observability.NewEndpoint(settings.Telemetry.Listen, registry)
		endpoint.Start(&wg, quitChan)
	}

	monitorSignals(quitChan, logger)
	<-quitChan

	grid.Close()
	cancel()
	wg.Wait()
	return nil
}

// monitorSignals closes quitChan on SIGINT or SIGTERM.
func monitorSignals(quitChan chan struct{}, logger *slog.Logger) {
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutting down", "signal", sig.String())
		close(quitChan)
	}()
}

func closeDataStore(ds *store.DataStore, logger *slog.Logger) {
	if err := ds.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
}
