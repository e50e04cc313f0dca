// Package whisper runs speech recognition through an external whisper
// backend and decodes its token output into text.
package whisper

import "context"

// TaskTranscribe keeps the output in the spoken language.
const TaskTranscribe = "transcribe"

// Features is the model input produced by the feature extractor: a 16 kHz
// mono PCM16 WAV file.
type Features struct {
	WAVPath    string
	SampleRate int
	Samples    int
}

type Options struct {
	Language string
	Task     string
}

type Token struct {
	ID   int
	Text string
}

type Segment struct {
	Text   string
	Tokens []Token
}

// Output is the raw generation result before decoding.
type Output struct {
	Segments []Segment
	Text     string
}

// Generator runs inference on prepared features.
type Generator interface {
	Generate(ctx context.Context, features Features, opts Options) (Output, error)
}
