// Package transcribe turns decoded audio into trimmed text through a model
// handle's generator.
package transcribe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fmueller/transkribera/internal/apperr"
	"github.com/fmueller/transkribera/internal/audio"
	"github.com/fmueller/transkribera/internal/whisper"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrNoSpeech means the audio produced no text.
var ErrNoSpeech = errors.New("no speech detected")

const DefaultLanguage = "sv"

// AudioLoader decodes a file to mono samples at sampleRate.
type AudioLoader interface {
	Load(ctx context.Context, path string, sampleRate int) (*audio.Buffer, error)
}

type Config struct {
	Language             string
	SilenceGate          bool
	SilenceThresholdDBFS float64
	// MaxConcurrent bounds simultaneous generator calls on the shared handle.
	MaxConcurrent int64
	TempDir       string
	Logger        *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		Language:             DefaultLanguage,
		SilenceGate:          true,
		SilenceThresholdDBFS: -65,
		MaxConcurrent:        1,
	}
}

type Result struct {
	Text         string
	AudioSeconds float64
	Elapsed      time.Duration
}

type Pipeline struct {
	generator whisper.Generator
	loader    AudioLoader
	extractor FeatureExtractor
	cfg       Config
	sem       *semaphore.Weighted
	logger    *zap.Logger
}

func New(generator whisper.Generator, loader AudioLoader, cfg Config) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = DefaultLanguage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		generator: generator,
		loader:    loader,
		extractor: FeatureExtractor{TempDir: cfg.TempDir},
		cfg:       cfg,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:    logger,
	}
}

// TranscribeFile loads path and transcribes it.
func (p *Pipeline) TranscribeFile(ctx context.Context, path, language string) (Result, error) {
	started := time.Now()

	if p.loader == nil {
		return Result{}, apperr.Newf(apperr.KindAudioDecode, "load audio", "no audio loader configured")
	}
	buf, err := p.loader.Load(ctx, path, audio.ModelSampleRate)
	if err != nil {
		return Result{}, apperr.E(apperr.KindAudioDecode, "", err)
	}

	text, err := p.Transcribe(ctx, buf, language)
	if err != nil {
		return Result{}, err
	}

	return Result{Text: text, AudioSeconds: buf.Seconds(), Elapsed: time.Since(started)}, nil
}

// Transcribe returns non-empty trimmed text or a classified error.
func (p *Pipeline) Transcribe(ctx context.Context, buf *audio.Buffer, language string) (string, error) {
	const op = "transcribe"

	if buf == nil || len(buf.Samples) == 0 {
		return "", apperr.E(apperr.KindAudioDecode, op, audio.ErrEmptyAudio)
	}
	if strings.TrimSpace(language) == "" {
		language = p.cfg.Language
	}

	if p.cfg.SilenceGate {
		metrics := audio.Analyze(buf.Samples)
		if metrics.IsSilent(p.cfg.SilenceThresholdDBFS) {
			p.logger.Info("audio considered silent; skipping transcription",
				zap.Float64("rms_dbfs", metrics.RMSdBFS),
				zap.Float64("peak_dbfs", metrics.PeakdBFS),
				zap.Float64("threshold_dbfs", p.cfg.SilenceThresholdDBFS),
			)
			return "", apperr.E(apperr.KindInference, op, ErrNoSpeech)
		}
	}

	if p.generator == nil {
		return "", apperr.Newf(apperr.KindModelLoad, op, "model not loaded")
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", apperr.E(apperr.KindInference, op, err)
	}
	defer p.sem.Release(1)

	features, cleanup, err := p.extractor.Extract(buf)
	defer cleanup()
	if err != nil {
		return "", apperr.E(apperr.KindInference, op, err)
	}

	started := time.Now()
	p.logger.Debug("generating", zap.String("language", language), zap.Float64("audio_seconds", buf.Seconds()))
	out, err := p.generator.Generate(ctx, features, whisper.Options{Language: language, Task: whisper.TaskTranscribe})
	if err != nil {
		p.logger.Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return "", apperr.E(apperr.KindInference, op, err)
	}

	text := whisper.Decode(out)
	if text == "" {
		return "", apperr.E(apperr.KindInference, op, ErrNoSpeech)
	}

	p.logger.Info("transcription finished", zap.Duration("elapsed", time.Since(started)), zap.Int("chars", len(text)))
	return text, nil
}
