// Package batch transcribes a single file or every audio file in a
// directory, writing one transcript per input.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/transkribera/internal/apperr"
	"github.com/fmueller/transkribera/internal/audio"
	"github.com/fmueller/transkribera/internal/transcribe"
	"go.uber.org/zap"
)

// OutputSuffix is appended to the input stem for per-file transcripts.
const OutputSuffix = "_transcription.txt"

type FileTranscriber interface {
	TranscribeFile(ctx context.Context, path, language string) (transcribe.Result, error)
}

type Runner struct {
	Transcriber FileTranscriber
	Language    string
	Out         io.Writer
	Logger      *zap.Logger
	// Spinner wraps each transcription; nil disables it.
	Spinner func(description string) func()
}

type FileResult struct {
	Input        string
	Output       string
	Text         string
	AudioSeconds float64
	Elapsed      time.Duration
	Err          error
}

type Report struct {
	Files []FileResult
}

func (r Report) Succeeded() int {
	n := 0
	for _, f := range r.Files {
		if f.Err == nil {
			n++
		}
	}
	return n
}

func (r Report) Failed() int {
	return len(r.Files) - r.Succeeded()
}

// OutputName derives <stem>_transcription.txt from an input file name.
func OutputName(input string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "transcription"
	}
	return stem + OutputSuffix
}

// Run dispatches on input: a file is transcribed to output (a file path), a
// directory to output (a directory). Only an invalid input path is returned
// as an error; per-file failures are recorded in the report.
func (r *Runner) Run(ctx context.Context, input, output string) (Report, error) {
	info, err := ValidateInput(input)
	if err != nil {
		return Report{}, err
	}

	if info.IsDir() {
		return r.runDir(ctx, input, output)
	}
	res := r.runFile(ctx, input, output, false)
	return Report{Files: []FileResult{res}}, nil
}

// ValidateInput accepts an existing regular file or directory.
func ValidateInput(input string) (fs.FileInfo, error) {
	info, err := os.Stat(input)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.Newf(apperr.KindInvalidInput, "batch", "%q is not a valid file or directory", input)
		}
		return nil, apperr.E(apperr.KindInvalidInput, "batch", err)
	}
	if !info.Mode().IsRegular() && !info.IsDir() {
		return nil, apperr.Newf(apperr.KindInvalidInput, "batch", "%q is not a valid file or directory", input)
	}
	return info, nil
}

func (r *Runner) runDir(ctx context.Context, dir, outputDir string) (Report, error) {
	files, err := AudioFiles(dir)
	if err != nil {
		return Report{}, apperr.E(apperr.KindInvalidInput, "batch", err)
	}

	if len(files) == 0 {
		r.log().Warn("No audio files found", zap.String("dir", dir))
		return Report{}, nil
	}

	r.log().Info("found audio files to transcribe", zap.Int("count", len(files)), zap.String("dir", dir))

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return Report{}, fmt.Errorf("create output directory: %w", err)
		}
	}

	report := Report{Files: make([]FileResult, 0, len(files))}
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		r.log().Info("processing", zap.Int("index", i+1), zap.Int("total", len(files)), zap.String("file", filepath.Base(path)))

		out := ""
		if outputDir != "" {
			out = filepath.Join(outputDir, OutputName(path))
		}
		report.Files = append(report.Files, r.runFile(ctx, path, out, true))
	}

	r.log().Info("batch finished", zap.Int("succeeded", report.Succeeded()), zap.Int("failed", report.Failed()))
	return report, nil
}

func (r *Runner) runFile(ctx context.Context, path, output string, withHeader bool) FileResult {
	res := FileResult{Input: path}

	stop := func() {}
	if r.Spinner != nil {
		stop = r.Spinner("Transcribing " + filepath.Base(path))
	}
	result, err := r.Transcriber.TranscribeFile(ctx, path, r.Language)
	stop()
	if err != nil {
		res.Err = err
		r.log().Error("transcription failed", zap.String("file", path), zap.String("kind", apperr.KindOf(err).String()), zap.Error(err))
		return res
	}

	res.Text = result.Text
	res.AudioSeconds = result.AudioSeconds
	res.Elapsed = result.Elapsed

	if withHeader {
		fmt.Fprintf(r.out(), "--- %s ---\n%s\n", filepath.Base(path), result.Text)
	} else {
		fmt.Fprintln(r.out(), result.Text)
	}

	if output != "" {
		if err := writeTranscript(output, result.Text); err != nil {
			res.Err = err
			r.log().Error("failed to save transcription", zap.String("output", output), zap.Error(err))
			return res
		}
		res.Output = output
		r.log().Info("transcription saved", zap.String("output", output))
	}

	return res
}

// AudioFiles lists regular files in dir with a supported extension, in
// directory order.
func AudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if audio.IsSupported(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func writeTranscript(path, text string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write transcription: %w", err)
	}
	return nil
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return os.Stdout
	}
	return r.Out
}

func (r *Runner) log() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
