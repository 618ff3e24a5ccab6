// Package audio plays the alert sound through a selectable output device,
// degrading to the default output when selection is unsupported or the
// configured device is missing.
package audio

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/sentinelvision/sentinel-go/internal/errors"
	"github.com/sentinelvision/sentinel-go/internal/logging"
	"github.com/sentinelvision/sentinel-go/internal/videocore"
)

// playbackTimeout bounds a single alert playback.
const playbackTimeout = 10 * time.Second

// Config selects the alert sound and output device.
type Config struct {
	// SoundPath is the WAV file played on alerts. Empty disables playback.
	SoundPath string

	// OutputDevice matches a playback device by name substring. Empty
	// plays on the platform default.
	OutputDevice string
}

// Player plays the decoded alert sample. Use Player.Play as the renderer's
// alert func.
type Player struct {
	cfg Config

	pcm        []byte // S16LE interleaved
	sampleRate uint32
	channels   uint32

	ctx     *malgo.AllocatedContext
	playing atomic.Bool
	closeMu sync.Mutex
	closed  bool

	logger *slog.Logger
}

// NewPlayer decodes the alert sound and initializes the audio backend. A
// config with no sound path yields a disabled player whose Play is a no-op.
func NewPlayer(cfg Config) (*Player, error) {
	logger := logging.ForService("audio")
	if logger == nil {
		logger = slog.Default()
	}
	p := &Player{cfg: cfg, logger: logger}
	if cfg.SoundPath == "" {
		logger.Info("alert sound not configured, playback disabled")
		return p, nil
	}

	pcm, sampleRate, channels, err := decodeWav(cfg.SoundPath)
	if err != nil {
		return nil, err
	}
	p.pcm = pcm
	p.sampleRate = sampleRate
	p.channels = channels

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryAudio).
			Context("operation", "init_audio_context").
			Build()
	}
	p.ctx = ctx

	logger.Info("alert sound loaded",
		"path", cfg.SoundPath,
		"sample_rate", sampleRate,
		"channels", channels)
	return p, nil
}

// Enabled reports whether an alert sound is loaded.
func (p *Player) Enabled() bool { return p.ctx != nil }

// Play starts one asynchronous playback of the alert sample. Overlapping
// calls while a playback is running are dropped; the renderer's throttle
// already spaces alerts out.
func (p *Player) Play() {
	if !p.Enabled() {
		return
	}
	if !p.playing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer p.playing.Store(false)
		if err := p.playOnce(); err != nil {
			p.logger.Error("alert playback failed", "error", err)
		}
	}()
}

func (p *Player) playOnce() error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = p.channels
	deviceConfig.SampleRate = p.sampleRate
	deviceConfig.Alsa.NoMMap = 1

	if id, found := p.resolveOutputDevice(); found {
		deviceConfig.Playback.DeviceID = id.Pointer()
	}

	var (
		pos  int
		once sync.Once
		done = make(chan struct{})
	)
	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			n := copy(output, p.pcm[pos:])
			pos += n
			if pos >= len(p.pcm) {
				once.Do(func() { close(done) })
			}
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryAudio).
			Context("operation", "init_playback_device").
			Build()
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryAudio).
			Context("operation", "start_playback").
			Build()
	}

	select {
	case <-done:
	case <-time.After(playbackTimeout):
		p.logger.Warn("alert playback timed out", "path", p.cfg.SoundPath)
	}
	return device.Stop()
}

// resolveOutputDevice matches the configured output device by name. A
// missing or unmatched device falls back to the platform default.
func (p *Player) resolveOutputDevice() (malgo.DeviceID, bool) {
	if p.cfg.OutputDevice == "" {
		return malgo.DeviceID{}, false
	}
	infos, err := p.ctx.Devices(malgo.Playback)
	if err != nil {
		p.logger.Warn("could not enumerate playback devices, using default output",
			"error", err)
		return malgo.DeviceID{}, false
	}
	want := strings.ToLower(p.cfg.OutputDevice)
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), want) {
			return infos[i].ID, true
		}
	}
	p.logger.Warn("configured output device not found, using default output",
		"device", p.cfg.OutputDevice)
	return malgo.DeviceID{}, false
}

// ListOutputDevices returns the available playback sinks.
func (p *Player) ListOutputDevices() ([]videocore.Device, error) {
	if p.ctx == nil {
		return nil, videocore.ErrSinkSelectionUnsupported
	}
	infos, err := p.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryAudio).
			Context("operation", "list_playback_devices").
			Build()
	}
	devices := make([]videocore.Device, 0, len(infos))
	for i := range infos {
		devices = append(devices, videocore.Device{
			ID:    infos[i].ID.String(),
			Kind:  videocore.DeviceAudioOutput,
			Label: infos[i].Name(),
		})
	}
	return devices, nil
}

// Close releases the audio backend. Safe to call on a disabled player.
func (p *Player) Close() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed || p.ctx == nil {
		p.closed = true
		return nil
	}
	p.closed = true
	return p.ctx.Uninit()
}
