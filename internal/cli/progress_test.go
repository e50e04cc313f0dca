package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSpinnerStopIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newSpinner(new(bytes.Buffer), "Transcribing clip.wav")
	time.Sleep(2 * spinnerInterval)
	s.Stop()
	s.Stop()

	select {
	case <-s.done:
	default:
		t.Fatal("spinner goroutine still running")
	}
}

func TestStartSpinnerDisabled(t *testing.T) {
	t.Parallel()

	stop := startSpinner(false, "Loading model")
	require.NotNil(t, stop)
	stop()
	stop()
}
