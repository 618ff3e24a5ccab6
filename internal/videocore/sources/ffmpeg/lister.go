package ffmpeg

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sentinelvision/sentinel-go/internal/errors"
	"github.com/sentinelvision/sentinel-go/internal/videocore"
)

// AudioDeviceLister enumerates audio playback sinks. The audio package's
// Player satisfies it.
type AudioDeviceLister interface {
	ListOutputDevices() ([]videocore.Device, error)
}

// Lister implements videocore.DeviceLister over V4L2 device nodes, with
// audio output enumeration delegated to an optional audio backend.
type Lister struct {
	// DevDir and SysDir default to the standard /dev and
	// /sys/class/video4linux locations; tests point them elsewhere.
	DevDir string
	SysDir string

	// Audio provides playback sink enumeration. Nil means the platform
	// does not support output selection.
	Audio AudioDeviceLister
}

func (l *Lister) devDir() string {
	if l.DevDir != "" {
		return l.DevDir
	}
	return "/dev"
}

func (l *Lister) sysDir() string {
	if l.SysDir != "" {
		return l.SysDir
	}
	return "/sys/class/video4linux"
}

// ListDevices returns the current device snapshot for a kind.
func (l *Lister) ListDevices(ctx context.Context, kind videocore.DeviceKind) ([]videocore.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch kind {
	case videocore.DeviceVideoInput:
		return l.listVideoDevices()
	case videocore.DeviceAudioOutput:
		if l.Audio == nil {
			return nil, videocore.ErrSinkSelectionUnsupported
		}
		return l.Audio.ListOutputDevices()
	default:
		return nil, errors.Newf("unknown device kind %q", kind).
			Component("ffmpeg").
			Category(errors.CategoryValidation).
			Build()
	}
}

func (l *Lister) listVideoDevices() ([]videocore.Device, error) {
	nodes, err := filepath.Glob(filepath.Join(l.devDir(), "video*"))
	if err != nil {
		return nil, errors.New(err).
			Component("ffmpeg").
			Category(errors.CategoryDevice).
			Context("operation", "glob_video_nodes").
			Build()
	}
	sort.Strings(nodes)

	devices := make([]videocore.Device, 0, len(nodes))
	for _, node := range nodes {
		devices = append(devices, videocore.Device{
			ID:    node,
			Kind:  videocore.DeviceVideoInput,
			Label: l.deviceLabel(node),
		})
	}
	return devices, nil
}

// deviceLabel reads the driver-reported card name for a device node. Empty
// when sysfs has not populated it yet.
func (l *Lister) deviceLabel(node string) string {
	name := filepath.Base(node)
	raw, err := os.ReadFile(filepath.Join(l.sysDir(), name, "name"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// RequestPermission checks that the video device nodes are accessible.
// An explicit access denial maps to ErrPermissionDenied; an empty device
// list is not a denial, enumeration retry handles it.
func (l *Lister) RequestPermission(ctx context.Context, kind videocore.DeviceKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if kind != videocore.DeviceVideoInput {
		return nil
	}
	nodes, err := filepath.Glob(filepath.Join(l.devDir(), "video*"))
	if err != nil || len(nodes) == 0 {
		return nil
	}
	f, err := os.Open(nodes[0])
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return videocore.ErrPermissionDenied
		}
		// Busy or transient open failures are not denials.
		return nil
	}
	return f.Close()
}

// SupportsSinkSelection reports whether audio output routing is available.
func (l *Lister) SupportsSinkSelection() bool { return l.Audio != nil }
