package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fmueller/transkribera/internal/apperr"
	"go.uber.org/zap"
)

var (
	ErrEmptyAudio          = errors.New("audio contains no samples")
	ErrDecoderUnavailable  = errors.New("ffmpeg not found on PATH; install ffmpeg to decode compressed audio")
	supportedExtensionList = []string{".wav", ".mp3", ".m4a", ".flac", ".ogg", ".aac"}
)

const ffmpegPathEnv = "TRANSKRIBERA_FFMPEG_PATH"

// SupportedExtensions lists the file extensions treated as audio, lower case.
func SupportedExtensions() []string {
	out := make([]string, len(supportedExtensionList))
	copy(out, supportedExtensionList)
	return out
}

// IsSupported matches path against SupportedExtensions case-insensitively.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range supportedExtensionList {
		if ext == candidate {
			return true
		}
	}
	return false
}

// Loader decodes audio files. WAV is parsed in-process; everything else goes
// through ffmpeg.
type Loader struct {
	FFmpegPath string
	Logger     *zap.Logger

	lookPath func(string) (string, error)
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		FFmpegPath: strings.TrimSpace(os.Getenv(ffmpegPathEnv)),
		Logger:     logger,
		lookPath:   exec.LookPath,
	}
}

// Load returns mono samples resampled to sampleRate.
func (l *Loader) Load(ctx context.Context, path string, sampleRate int) (*Buffer, error) {
	const op = "load audio"

	if sampleRate <= 0 {
		sampleRate = ModelSampleRate
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.Newf(apperr.KindAudioDecode, op, "audio file %q not found", path)
		}
		return nil, apperr.E(apperr.KindAudioDecode, op, err)
	}
	if info.IsDir() {
		return nil, apperr.Newf(apperr.KindAudioDecode, op, "%s is a directory", path)
	}

	l.log().Debug("loading audio file", zap.String("path", path))

	var buf *Buffer
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		buf, err = l.loadWAV(path, sampleRate)
		if err != nil && (errors.Is(err, ErrUnsupportedWAV) || errors.Is(err, ErrInvalidWAV)) {
			l.log().Debug("in-process wav decode failed; trying ffmpeg", zap.String("path", path), zap.Error(err))
			if ffBuf, ffErr := l.loadFFmpeg(ctx, path, sampleRate); ffErr == nil {
				buf, err = ffBuf, nil
			}
		}
	} else {
		buf, err = l.loadFFmpeg(ctx, path, sampleRate)
	}
	if err != nil {
		return nil, apperr.E(apperr.KindAudioDecode, op, err)
	}

	if len(buf.Samples) == 0 {
		return nil, apperr.E(apperr.KindAudioDecode, op, ErrEmptyAudio)
	}

	l.log().Info("audio loaded", zap.String("path", path), zap.Float64("seconds", math.Round(buf.Seconds()*100)/100))
	return buf, nil
}

func (l *Loader) loadWAV(path string, sampleRate int) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	samples, srcRate, channels, err := decodeWAV(f)
	if err != nil {
		return nil, err
	}

	mono := downmix(samples, channels)
	return &Buffer{Samples: resample(mono, srcRate, sampleRate), SampleRate: sampleRate}, nil
}

func (l *Loader) loadFFmpeg(ctx context.Context, path string, sampleRate int) (*Buffer, error) {
	ffmpeg, err := l.resolveFFmpeg()
	if err != nil {
		return nil, err
	}

	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	l.log().Debug("running ffmpeg", zap.String("ffmpeg", ffmpeg), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	return &Buffer{Samples: pcm16ToFloat(stdout.Bytes()), SampleRate: sampleRate}, nil
}

func (l *Loader) resolveFFmpeg() (string, error) {
	if l.FFmpegPath != "" {
		return l.FFmpegPath, nil
	}
	lookPath := l.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath("ffmpeg")
	if err != nil {
		return "", ErrDecoderUnavailable
	}
	return path, nil
}

func (l *Loader) log() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

func pcm16ToFloat(raw []byte) []float32 {
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples
}
