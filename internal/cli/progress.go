package cli

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

const spinnerInterval = 120 * time.Millisecond

// spinner animates an indeterminate bar while a model loads or a file is
// transcribed. Stop is idempotent.
type spinner struct {
	bar  *progressbar.ProgressBar
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// startSpinner draws on stderr when enabled and returns its stop func.
func startSpinner(enabled bool, description string) func() {
	if !enabled {
		return func() {}
	}
	return newSpinner(os.Stderr, description).Stop
}

func newSpinner(w io.Writer, description string) *spinner {
	s := &spinner{
		bar: progressbar.NewOptions(
			-1,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(w),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionThrottle(80*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *spinner) run() {
	defer close(s.done)

	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			_ = s.bar.Finish()
			return
		case <-ticker.C:
			_ = s.bar.Add(1)
		}
	}
}

func (s *spinner) Stop() {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
	})
}
