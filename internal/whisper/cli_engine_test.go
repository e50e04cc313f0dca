package whisper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/fmueller/transkribera/internal/platform"
	"github.com/stretchr/testify/require"
)

const fullJSONFixture = `{
  "systeminfo": "AVX = 1",
  "params": {"model": "ggml-model.bin", "language": "sv", "translate": false},
  "result": {"language": "sv"},
  "transcription": [
    {
      "offsets": {"from": 0, "to": 2100},
      "text": " Hej och välkommen.",
      "tokens": [
        {"text": "[_BEG_]", "id": 50365, "p": 0.98},
        {"text": " Hej", "id": 7453, "p": 0.91},
        {"text": " och", "id": 2051, "p": 0.95},
        {"text": " välkommen.", "id": 19632, "p": 0.88},
        {"text": "[_TT_105]", "id": 50470, "p": 0.40}
      ]
    }
  ]
}`

func writeFakeEngine(t *testing.T, dir, body string) string {
	t.Helper()

	path := filepath.Join(dir, "whisper-cli")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func fakeEngineWritingJSON(t *testing.T, dir string) (engine, argsFile string) {
	t.Helper()

	argsFile = filepath.Join(dir, "args.txt")
	fixture := filepath.Join(dir, "fixture.json")
	require.NoError(t, os.WriteFile(fixture, []byte(fullJSONFixture), 0o644))

	script := fmt.Sprintf(`echo "$@" > %q
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-of" ]; then out="$2"; fi
  shift
done
cp %q "$out.json"
`, argsFile, fixture)
	return writeFakeEngine(t, dir, script), argsFile
}

func TestCLIEngineGenerateParsesFullJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	exe, argsFile := fakeEngineWritingJSON(t, dir)
	engine := &CLIEngine{Executable: exe, ModelPath: "/models/ggml-model.bin", Threads: 4, TempDir: dir}

	out, err := engine.Generate(context.Background(), Features{WAVPath: "/tmp/in.wav"}, Options{Language: "sv", Task: TaskTranscribe})
	require.NoError(t, err)
	require.Len(t, out.Segments, 1)
	require.Len(t, out.Segments[0].Tokens, 5)
	require.Equal(t, 7453, out.Segments[0].Tokens[1].ID)
	require.Equal(t, "Hej och välkommen.", Decode(out))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Contains(t, string(args), "-m /models/ggml-model.bin -f /tmp/in.wav -ojf")
	require.Contains(t, string(args), "-l sv")
	require.Contains(t, string(args), "-ng")
	require.Contains(t, string(args), "-t 4")
	require.NotContains(t, string(args), "-tr")

	leftovers, err := filepath.Glob(filepath.Join(dir, "transkribera-*.json"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestParseFullJSONKeepsSplitTokenBytes(t *testing.T) {
	t.Parallel()

	raw := []byte("{\"transcription\":[" +
		"{\"text\":\" p\xc3\xa5\",\"tokens\":[" +
		"{\"id\":279,\"text\":\" p\"}," +
		"{\"id\":3461,\"text\":\"\xc3\"}," +
		"{\"id\":98,\"text\":\"\xa5\"}," +
		"{\"id\":50415,\"text\":\"[_extra_token_50]\"}]}," +
		"{\"text\":\"\",\"tokens\":[" +
		"{\"id\":1,\"text\":\" sj\\u00f6\"}," +
		"{\"id\":2,\"text\":\"n\\\"\"}]}]}")

	out, err := parseFullJSON(raw)
	require.NoError(t, err)
	require.Len(t, out.Segments, 2)

	tokens := out.Segments[0].Tokens
	require.Equal(t, "\xc3\xa5", tokens[1].Text+tokens[2].Text)
	require.Equal(t, "sjön\"", Decode(Output{Segments: out.Segments[1:]}))
	require.Equal(t, "på sjön\"", Decode(out))
}

func TestCLIEngineArgsOnGPU(t *testing.T) {
	t.Parallel()

	engine := &CLIEngine{ModelPath: "m.bin", UseGPU: true}
	args := engine.args("in.wav", "/tmp/out", "")
	require.Equal(t, []string{"-m", "m.bin", "-f", "in.wav", "-ojf", "-of", "/tmp/out", "-np"}, args)
}

func TestCLIEngineRejectsTranslateTask(t *testing.T) {
	t.Parallel()

	engine := &CLIEngine{Executable: "/bin/true", ModelPath: "m.bin"}
	_, err := engine.Generate(context.Background(), Features{WAVPath: "in.wav"}, Options{Task: "translate"})
	require.ErrorContains(t, err, "unsupported task")
}

func TestCLIEngineReportsEngineFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	exe := writeFakeEngine(t, dir, "echo 'failed to read audio data' >&2\nexit 2\n")
	engine := &CLIEngine{Executable: exe, ModelPath: "m.bin", TempDir: dir}

	_, err := engine.Generate(context.Background(), Features{WAVPath: "in.wav"}, Options{Language: "sv"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "whisper generate failed")
	require.Contains(t, err.Error(), "failed to read audio data")
}

func TestCLIEngineClassifiesSharedLibraryFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	exe := writeFakeEngine(t, dir, "echo 'error while loading shared libraries: libwhisper.so.1: cannot open shared object file' >&2\nexit 127\n")
	engine := &CLIEngine{Executable: exe, ModelPath: "m.bin", TempDir: dir}

	_, err := engine.Generate(context.Background(), Features{WAVPath: "in.wav"}, Options{})
	require.ErrorContains(t, err, "BUILD_SHARED_LIBS=OFF")
}

func TestCLIEngineRejectsMalformedOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	exe := writeFakeEngine(t, dir, `out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-of" ]; then out="$2"; fi
  shift
done
echo "not json" > "$out.json"
`)
	engine := &CLIEngine{Executable: exe, ModelPath: "m.bin", TempDir: dir}

	_, err := engine.Generate(context.Background(), Features{WAVPath: "in.wav"}, Options{})
	require.ErrorContains(t, err, "parse whisper output")
}

func TestLocateEngineOverride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	exe := writeFakeEngine(t, dir, "exit 0\n")

	path, err := LocateEngine(exe)
	require.NoError(t, err)
	require.Equal(t, exe, path)

	notExec := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(notExec, []byte("x"), 0o644))
	_, err = LocateEngine(notExec)
	require.ErrorContains(t, err, "not executable")
}

func TestResolveBundledEnginePathFindsLibexecSibling(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	binDir := filepath.Join(root, "bin")
	engineDir := filepath.Join(root, "libexec", "whisper")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	require.NoError(t, os.MkdirAll(engineDir, 0o755))

	self := filepath.Join(binDir, "transkribera")
	require.NoError(t, os.WriteFile(self, []byte(""), 0o755))

	enginePath := filepath.Join(engineDir, engineBinaryName())
	require.NoError(t, os.WriteFile(enginePath, []byte(""), 0o755))

	resolved, err := ResolveBundledEnginePath(self)
	require.NoError(t, err)
	require.Equal(t, enginePath, resolved)
}

func TestResolveBundledEnginePathFindsPackagingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	self := filepath.Join(root, "transkribera")
	require.NoError(t, os.WriteFile(self, []byte(""), 0o755))

	targetDir := filepath.Join(root, "packaging", "whisper", fmt.Sprintf("%s_%s", runtime.GOOS, platform.NormalizeArch(runtime.GOARCH)))
	require.NoError(t, os.MkdirAll(targetDir, 0o755))
	enginePath := filepath.Join(targetDir, engineBinaryName())
	require.NoError(t, os.WriteFile(enginePath, []byte(""), 0o755))

	resolved, err := ResolveBundledEnginePath(self)
	require.NoError(t, err)
	require.Equal(t, enginePath, resolved)
}

func TestResolveBundledEnginePathMissing(t *testing.T) {
	t.Parallel()

	self := filepath.Join(t.TempDir(), "bin", "transkribera")
	require.NoError(t, os.MkdirAll(filepath.Dir(self), 0o755))
	require.NoError(t, os.WriteFile(self, []byte(""), 0o755))

	_, err := ResolveBundledEnginePath(self)
	require.ErrorContains(t, err, "bundled whisper engine not found")
}

func TestFailureClassifiers(t *testing.T) {
	t.Parallel()

	require.True(t, isMissingSharedLibraryError("dyld: Library not loaded: @rpath/libwhisper.dylib"))
	require.False(t, isMissingSharedLibraryError("some other runtime error"))
	require.True(t, isIllegalInstructionError("signal: illegal instruction (core dumped)"))
	require.False(t, isIllegalInstructionError(strings.Repeat(" ", 3)))
}
