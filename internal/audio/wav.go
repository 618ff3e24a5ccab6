package audio

import (
	"encoding/binary"
	"os"

	"github.com/go-audio/wav"

	"github.com/sentinelvision/sentinel-go/internal/errors"
)

// decodeWav reads a WAV file into interleaved S16LE samples.
func decodeWav(path string) (pcm []byte, sampleRate, channels uint32, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, errors.New(err).
			Component("audio").
			Category(errors.CategoryFileIO).
			Context("operation", "open_sound_file").
			Context("path", path).
			Build()
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, errors.New(err).
			Component("audio").
			Category(errors.CategoryAudio).
			Context("operation", "decode_wav").
			Context("path", path).
			Build()
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, 0, errors.Newf("sound file %s contains no samples", path).
			Component("audio").
			Category(errors.CategoryAudio).
			Build()
	}

	// Normalize to 16-bit regardless of the source bit depth.
	shift := 0
	switch {
	case decoder.BitDepth > 16:
		shift = int(decoder.BitDepth) - 16
	case decoder.BitDepth < 16:
		shift = -(16 - int(decoder.BitDepth))
	}

	pcm = make([]byte, len(buf.Data)*2)
	for i, sample := range buf.Data {
		s := sample
		if shift > 0 {
			s >>= shift
		} else if shift < 0 {
			s <<= -shift
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}

	return pcm, uint32(buf.Format.SampleRate), uint32(buf.Format.NumChannels), nil
}
