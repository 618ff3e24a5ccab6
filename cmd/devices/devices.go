// Package devices implements the device listing command.
package devices

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentinelvision/sentinel-go/internal/audio"
	"github.com/sentinelvision/sentinel-go/internal/conf"
	"github.com/sentinelvision/sentinel-go/internal/errors"
	"github.com/sentinelvision/sentinel-go/internal/videocore"
	"github.com/sentinelvision/sentinel-go/internal/videocore/sources/ffmpeg"
)

// Command creates the command that lists cameras and audio outputs.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available cameras and audio outputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listDevices(cmd.Context(), settings)
		},
	}
}

func listDevices(ctx context.Context, settings *conf.Settings) error {
	if ctx == nil {
		ctx = context.Background()
	}

	lister := &ffmpeg.Lister{}

	// The audio backend is only available when an alert sound is
	// configured; without it output selection is unsupported.
	player, err := audio.NewPlayer(audio.Config{SoundPath: settings.Alert.SoundPath})
	if err == nil && player.Enabled() {
		lister.Audio = player
		defer player.Close()
	}

	enumerator := videocore.NewEnumerator(lister,
		videocore.EnumerationRetryPolicy(
			settings.Enumeration.MaxAttempts,
			settings.Enumeration.FirstDelay,
			settings.Enumeration.NextDelay))

	cameras, err := enumerator.Enumerate(ctx, videocore.DeviceVideoInput)
	switch {
	case errors.Is(err, videocore.ErrPermissionDenied):
		return fmt.Errorf("camera access denied: %w", err)
	case errors.Is(err, videocore.ErrDevicesUnavailable):
		fmt.Println("⚠️  Camera labels unavailable, showing best-effort list")
	case err != nil:
		return err
	}

	fmt.Println("Cameras:")
	if len(cameras) == 0 {
		fmt.Println("  (none found)")
	}
	for i, dev := range cameras {
		marker := ""
		if dev.IsVirtual() {
			marker = " (virtual)"
		}
		fmt.Printf("  %d: %s [%s]%s\n", i+1, dev.Label, dev.ID, marker)
	}

	outputs, err := enumerator.Enumerate(ctx, videocore.DeviceAudioOutput)
	if errors.Is(err, videocore.ErrSinkSelectionUnsupported) {
		fmt.Println("\nAudio output selection is not supported on this system.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println("\nAudio outputs:")
	if len(outputs) == 0 {
		fmt.Println("  (none found)")
	}
	for i, dev := range outputs {
		fmt.Printf("  %d: %s [%s]\n", i+1, dev.Label, dev.ID)
	}
	return nil
}
