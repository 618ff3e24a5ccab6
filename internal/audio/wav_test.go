package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestWav produces a short 16-bit mono sine tone.
func writeTestWav(t *testing.T, path string, sampleRate, samples int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)

	encoder := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, samples),
	}
	for i := range buf.Data {
		buf.Data[i] = int(10000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	require.NoError(t, encoder.Write(buf))
	require.NoError(t, encoder.Close())
	require.NoError(t, f.Close())
}

func TestDecodeWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeTestWav(t, path, 22050, 2205)

	pcm, sampleRate, channels, err := decodeWav(path)
	require.NoError(t, err)
	assert.EqualValues(t, 22050, sampleRate)
	assert.EqualValues(t, 1, channels)
	assert.Len(t, pcm, 2205*2, "2 bytes per 16-bit mono sample")
}

func TestDecodeWavMissingFile(t *testing.T) {
	_, _, _, err := decodeWav(filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
}

func TestDecodeWavRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav file"), 0o644))

	_, _, _, err := decodeWav(path)
	require.Error(t, err)
}

func TestDisabledPlayer(t *testing.T) {
	player, err := NewPlayer(Config{})
	require.NoError(t, err)
	assert.False(t, player.Enabled())

	// No-ops on a disabled player.
	player.Play()
	_, err = player.ListOutputDevices()
	require.Error(t, err)
	require.NoError(t, player.Close())
	require.NoError(t, player.Close())
}
