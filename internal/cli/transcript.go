package cli

import (
	"errors"

	"github.com/fmueller/transkribera/internal/audio"
	"github.com/fmueller/transkribera/internal/batch"
	"github.com/fmueller/transkribera/internal/transcribe"
	"go.uber.org/zap"
)

func noSpeechHint() string {
	return "No speech detected. Check that the recording is not muted, or lower --silence-threshold-dbfs."
}

func audioExtensions() []string {
	return audio.SupportedExtensions()
}

// summarize logs per-file failures that have a known remedy and the final
// counts. It never changes the exit status.
func (a *appState) summarize(report batch.Report) {
	for _, f := range report.Files {
		if errors.Is(f.Err, transcribe.ErrNoSpeech) {
			a.log().Warn(noSpeechHint(), zap.String("file", f.Input))
		}
	}

	if failed := report.Failed(); failed > 0 {
		a.log().Warn("some files could not be transcribed", zap.Int("failed", failed), zap.Int("succeeded", report.Succeeded()))
	}
}
