package transcribe

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fmueller/transkribera/internal/audio"
	"github.com/fmueller/transkribera/internal/whisper"
	"github.com/google/uuid"
)

// FeatureExtractor writes samples in the representation the backends read:
// a 16 kHz mono PCM16 WAV file.
type FeatureExtractor struct {
	TempDir string
}

// Extract returns the features and a cleanup func that removes the file.
func (f FeatureExtractor) Extract(buf *audio.Buffer) (whisper.Features, func(), error) {
	dir := f.TempDir
	if dir == "" {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, "transkribera-features-"+uuid.NewString()+".wav")
	if err := audio.WriteWAV(path, buf.Samples, buf.SampleRate); err != nil {
		_ = os.Remove(path)
		return whisper.Features{}, func() {}, fmt.Errorf("extract features: %w", err)
	}

	return whisper.Features{
			WAVPath:    path,
			SampleRate: buf.SampleRate,
			Samples:    len(buf.Samples),
		}, func() {
			_ = os.Remove(path)
		}, nil
}
