package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/fmueller/transkribera/internal/platform"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EnginePathEnv overrides the whisper-cli executable lookup.
const EnginePathEnv = "TRANSKRIBERA_WHISPER_PATH"

// CLIEngine generates with a whisper.cpp whisper-cli executable. Executable
// and ModelPath are fixed once the model is loaded.
type CLIEngine struct {
	Executable string
	ModelPath  string
	UseGPU     bool
	Threads    int
	TempDir    string
	Logger     *zap.Logger
}

// LocateEngine finds whisper-cli: an explicit override, then the env
// override, then a bundled copy next to the running binary, then $PATH.
func LocateEngine(override string) (string, error) {
	if override = strings.TrimSpace(override); override != "" {
		if err := ensureExecutable(override); err != nil {
			return "", fmt.Errorf("whisper engine %s is not executable: %w", override, err)
		}
		return override, nil
	}

	if fromEnv := strings.TrimSpace(os.Getenv(EnginePathEnv)); fromEnv != "" {
		if err := ensureExecutable(fromEnv); err != nil {
			return "", fmt.Errorf("%s is not executable: %w", EnginePathEnv, err)
		}
		return fromEnv, nil
	}

	if self, err := os.Executable(); err == nil {
		if path, err := ResolveBundledEnginePath(self); err == nil {
			return path, nil
		}
	}

	if path, err := exec.LookPath(engineBinaryName()); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("whisper engine %s not found; install whisper.cpp or set %s", engineBinaryName(), EnginePathEnv)
}

func ResolveBundledEnginePath(selfExecutable string) (string, error) {
	for _, candidate := range EnginePathCandidates(selfExecutable) {
		if err := ensureExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("bundled whisper engine not found near %s, expected at ../libexec/whisper/%s", selfExecutable, engineBinaryName())
}

func EnginePathCandidates(selfExecutable string) []string {
	binDir := filepath.Dir(selfExecutable)
	engineName := engineBinaryName()
	hostTarget := fmt.Sprintf("%s_%s", runtime.GOOS, platform.NormalizeArch(runtime.GOARCH))

	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", engineName),
		filepath.Join(binDir, "libexec", "whisper", engineName),
		filepath.Join(binDir, "packaging", "whisper", hostTarget, engineName),
		filepath.Join(binDir, engineName),
	}
}

func (e *CLIEngine) Generate(ctx context.Context, features Features, opts Options) (Output, error) {
	if strings.TrimSpace(features.WAVPath) == "" {
		return Output{}, errors.New("feature file is required")
	}
	if strings.TrimSpace(e.ModelPath) == "" {
		return Output{}, errors.New("model path is required")
	}
	if opts.Task != "" && opts.Task != TaskTranscribe {
		return Output{}, fmt.Errorf("unsupported task %q", opts.Task)
	}

	if err := ensureExecutable(e.Executable); err != nil {
		return Output{}, fmt.Errorf("whisper engine missing or not executable: %w", err)
	}

	tempDir := e.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	outBase := filepath.Join(tempDir, "transkribera-"+uuid.NewString())
	jsonOut := outBase + ".json"
	defer os.Remove(jsonOut)

	args := e.args(features.WAVPath, outBase, opts.Language)

	cmd := exec.CommandContext(ctx, e.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	e.log().Debug("running whisper engine", zap.String("engine", e.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Output{}, ctxErr
		}
		errText := strings.TrimSpace(stderr.String())
		if isMissingSharedLibraryError(errText) {
			return Output{}, fmt.Errorf("whisper engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF", e.Executable, errText)
		}
		if isIllegalInstructionError(errText) || isIllegalInstructionError(err.Error()) {
			return Output{}, fmt.Errorf("whisper engine crashed with an illegal CPU instruction; "+
				"your CPU may lack required instruction set extensions; "+
				"set %s to a whisper-cli binary built for your CPU", EnginePathEnv)
		}
		return Output{}, fmt.Errorf("whisper generate failed: %w (%s)", err, errText)
	}

	raw, err := os.ReadFile(jsonOut)
	if err != nil {
		return Output{}, fmt.Errorf("read whisper output: %w", err)
	}

	return parseFullJSON(raw)
}

func (e *CLIEngine) args(wavPath, outBase, language string) []string {
	args := []string{"-m", e.ModelPath, "-f", wavPath, "-ojf", "-of", outBase, "-np"}
	if lang := strings.TrimSpace(language); lang != "" {
		args = append(args, "-l", lang)
	}
	if !e.UseGPU {
		args = append(args, "-ng")
	}
	if e.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(e.Threads))
	}
	return args
}

func (e *CLIEngine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// fullJSON mirrors the parts of whisper-cli --output-json-full we read.
type fullJSON struct {
	Transcription []struct {
		Text   string `json:"text"`
		Tokens []struct {
			ID   int             `json:"id"`
			Text json.RawMessage `json:"text"`
		} `json:"tokens"`
	} `json:"transcription"`
}

func parseFullJSON(raw []byte) (Output, error) {
	var doc fullJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Output{}, fmt.Errorf("parse whisper output: %w", err)
	}

	out := Output{Segments: make([]Segment, 0, len(doc.Transcription))}
	var text strings.Builder
	for _, seg := range doc.Transcription {
		s := Segment{Text: seg.Text, Tokens: make([]Token, 0, len(seg.Tokens))}
		for _, tok := range seg.Tokens {
			s.Tokens = append(s.Tokens, Token{ID: tok.ID, Text: tokenText(tok.Text)})
		}
		out.Segments = append(out.Segments, s)
		text.WriteString(seg.Text)
	}
	out.Text = text.String()
	return out, nil
}

// tokenText keeps the bytes of a token string as written. Byte-level BPE
// tokens may hold part of a UTF-8 sequence, which a string decode would
// replace with U+FFFD.
func tokenText(raw json.RawMessage) string {
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return ""
	}
	if !bytes.ContainsRune(raw, '\\') {
		return string(raw[1 : len(raw)-1])
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	for _, pattern := range []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	} {
		if strings.Contains(value, pattern) {
			return true
		}
	}
	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}
