package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

var (
	ErrInvalidWAV     = errors.New("invalid wav file")
	ErrUnsupportedWAV = errors.New("unsupported wav format")
)

// decodeWAV reads integer PCM WAV data into interleaved float32 samples.
func decodeWAV(r io.ReadSeeker) (samples []float32, sampleRate, channels int, err error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, ErrInvalidWAV
	}
	extensible := dec.WavAudioFormat == wavFormatExtensible
	if dec.WavAudioFormat != wavFormatPCM && !extensible {
		return nil, 0, 0, fmt.Errorf("%w: audio format %d", ErrUnsupportedWAV, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if buf == nil || buf.Format == nil {
		return nil, 0, 0, ErrInvalidWAV
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}

	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, 0, 0, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedWAV, bitDepth)
	}
	// The extensible sub-format is not exposed, and 32-bit extensible is
	// usually IEEE float; leave it to ffmpeg.
	if extensible && bitDepth == 32 {
		return nil, 0, 0, fmt.Errorf("%w: 32-bit extensible samples", ErrUnsupportedWAV)
	}

	samples = make([]float32, len(buf.Data))
	if bitDepth == 8 {
		for i, v := range buf.Data {
			samples[i] = float32(v-128) / 128.0
		}
	} else {
		scale := float32(math.Pow(2, float64(bitDepth-1)))
		for i, v := range buf.Data {
			samples[i] = float32(v) / scale
		}
	}

	return samples, buf.Format.SampleRate, buf.Format.NumChannels, nil
}

// WriteWAV stores mono samples as 16-bit PCM, the input whisper.cpp and
// OpenAI-compatible endpoints accept.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, wavFormatPCM)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(clamp(s) * math.MaxInt16)
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}

func clamp(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
