package cli

import (
	"bytes"
	"context"
	"math"
	"os"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	return runApp(t, newAppState(), args)
}

func runApp(t *testing.T, app *appState, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := newRootCmd(app)
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetContext(context.Background())
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func writeWAV(t *testing.T, path string, samples []int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

// writeToneWAV writes a 16 kHz mono tone loud enough to pass the silence gate.
func writeToneWAV(t *testing.T, path string, seconds float64) {
	t.Helper()

	samples := make([]int, int(16000*seconds))
	for i := range samples {
		samples[i] = int(8000 * math.Sin(2*math.Pi*220*float64(i)/16000))
	}
	writeWAV(t, path, samples)
}

func writeSilentWAV(t *testing.T, path string, seconds float64) {
	t.Helper()

	writeWAV(t, path, make([]int, int(16000*seconds)))
}
