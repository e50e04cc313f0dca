package cli

import (
	"errors"
	"testing"

	"github.com/fmueller/transkribera/internal/apperr"
	"github.com/fmueller/transkribera/internal/batch"
	"github.com/fmueller/transkribera/internal/transcribe"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSummarizeHintsAtNoSpeech(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	app := &appState{logger: zap.New(core)}

	app.summarize(batch.Report{Files: []batch.FileResult{
		{Input: "quiet.wav", Err: apperr.E(apperr.KindInference, "transcribe", transcribe.ErrNoSpeech)},
		{Input: "broken.mp3", Err: errors.New("decode failed")},
		{Input: "ok.wav", Text: "Hej"},
	}})

	hints := logs.FilterMessage(noSpeechHint()).All()
	require.Len(t, hints, 1)
	require.Equal(t, "quiet.wav", hints[0].ContextMap()["file"])

	summary := logs.FilterMessage("some files could not be transcribed").All()
	require.Len(t, summary, 1)
	require.EqualValues(t, 2, summary[0].ContextMap()["failed"])
	require.EqualValues(t, 1, summary[0].ContextMap()["succeeded"])
}

func TestSummarizeQuietOnSuccess(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	app := &appState{logger: zap.New(core)}

	app.summarize(batch.Report{Files: []batch.FileResult{{Input: "ok.wav", Text: "Hej"}}})
	require.Zero(t, logs.Len())
}
