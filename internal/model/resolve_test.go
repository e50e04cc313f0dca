package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveDefaultModel(t *testing.T) {
	t.Parallel()

	modelDir := t.TempDir()
	resolved, err := Resolve("", modelDir, "")
	require.NoError(t, err)
	require.Equal(t, "kb-whisper-large", resolved.Name)
	require.Equal(t, "KBLab/kb-whisper-large", resolved.Repo)
	require.Equal(t, filepath.Join(modelDir, "KBLab", "kb-whisper-large", "ggml-model.bin"), resolved.Path)
	require.Equal(t, "https://huggingface.co/KBLab/kb-whisper-large/resolve/main/ggml-model.bin", resolved.URL)
	require.True(t, resolved.NeedsDownload)
	require.False(t, resolved.IsCustomPath)
}

func TestResolveShortNameAndRepoIDAgree(t *testing.T) {
	t.Parallel()

	modelDir := t.TempDir()
	short, err := Resolve("kb-whisper-small", modelDir, "")
	require.NoError(t, err)
	full, err := Resolve("kblab/KB-Whisper-Small", modelDir, "")
	require.NoError(t, err)
	require.Equal(t, short, full)
}

func TestResolveExistingModelSkipsDownload(t *testing.T) {
	t.Parallel()

	modelDir := t.TempDir()
	modelPath := filepath.Join(modelDir, "KBLab", "kb-whisper-tiny", "ggml-model.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(modelPath), 0o755))
	require.NoError(t, os.WriteFile(modelPath, []byte("ok"), 0o644))

	resolved, err := Resolve("kb-whisper-tiny", modelDir, "")
	require.NoError(t, err)
	require.Equal(t, modelPath, resolved.Path)
	require.False(t, resolved.NeedsDownload)
}

func TestResolveArbitraryRepo(t *testing.T) {
	t.Parallel()

	modelDir := t.TempDir()
	resolved, err := Resolve("someone/whisper-sv-ggml", modelDir, "http://mirror.local/")
	require.NoError(t, err)
	require.Equal(t, "someone/whisper-sv-ggml", resolved.Repo)
	require.Equal(t, "http://mirror.local/someone/whisper-sv-ggml/resolve/main/ggml-model.bin", resolved.URL)
	require.Equal(t, filepath.Join(modelDir, "someone", "whisper-sv-ggml", "ggml-model.bin"), resolved.Path)
}

func TestResolveCustomPath(t *testing.T) {
	t.Parallel()

	custom := filepath.Join(t.TempDir(), "custom.bin")
	require.NoError(t, os.WriteFile(custom, []byte("x"), 0o644))

	resolved, err := Resolve(custom, t.TempDir(), "")
	require.NoError(t, err)
	require.True(t, resolved.IsCustomPath)
	require.Equal(t, custom, resolved.Path)
	require.False(t, resolved.NeedsDownload)
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		ref         string
		errContains string
	}{
		{name: "unknown name", ref: "super-huge", errContains: "unknown model"},
		{name: "missing custom file", ref: "/no/such/model.bin", errContains: "custom model path does not exist"},
		{name: "nested path is not a repo", ref: "a/b/c", errContains: "unknown model"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Resolve(tt.ref, t.TempDir(), "")
			require.ErrorContains(t, err, tt.errContains)
		})
	}
}

func TestRegistryEntriesAreKBLabRepos(t *testing.T) {
	t.Parallel()

	for _, name := range Names() {
		entry, ok := Lookup(name)
		require.True(t, ok)
		require.Equal(t, "KBLab/"+name, entry.Repo)
		require.Equal(t, "ggml-model.bin", entry.FileName)
	}
}
