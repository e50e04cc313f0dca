// Package audio turns audio files into mono float32 sample buffers at the
// rate the speech model expects.
package audio

import "time"

// ModelSampleRate is the input rate whisper models are trained on.
const ModelSampleRate = 16000

// Buffer holds mono samples in [-1, 1].
type Buffer struct {
	Samples    []float32
	SampleRate int
}

func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Seconds is Duration in floating point seconds.
func (b *Buffer) Seconds() float64 {
	return b.Duration().Seconds()
}
