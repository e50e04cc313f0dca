package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fmueller/transkribera/internal/model"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func noDotEnv(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), ".env")
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, ":5050", cfg.Server.Addr)
	require.Equal(t, int64(100<<20), cfg.MaxUploadBytes())
	require.Equal(t, model.DefaultModel, cfg.Model.Name)
	require.Equal(t, "sv", cfg.Transcribe.Language)
	require.True(t, cfg.Transcribe.SilenceGate)
	require.EqualValues(t, 1, cfg.Transcribe.MaxConcurrent)
}

func TestLoadLayersFileDotEnvAndEnvironment(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "transkribera.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  addr: "127.0.0.1:8080"
  shutdown_timeout: 10s
model:
  name: kb-whisper-small
  threads: 4
transcribe:
  max_concurrent: 2
log:
  file: /var/log/transkribera.log
`), 0o644))

	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("HF_TOKEN=from-dotenv\nTRANSKRIBERA_MODEL=kb-whisper-medium\nOPENAI_API_KEY=dotenv-key\n"), 0o644))

	cfg, err := load(file, dotenv, envMap(map[string]string{
		"TRANSKRIBERA_MODEL":        "kb-whisper-base",
		"TRANSKRIBERA_SILENCE_GATE": "false",
	}))
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	require.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, 4, cfg.Model.Threads)
	require.EqualValues(t, 2, cfg.Transcribe.MaxConcurrent)
	require.Equal(t, "/var/log/transkribera.log", cfg.Log.File)

	require.Equal(t, "kb-whisper-base", cfg.Model.Name, "environment wins over .env")
	require.Equal(t, "from-dotenv", cfg.Model.HFToken)
	require.Equal(t, "dotenv-key", cfg.OpenAI.APIKey)
	require.False(t, cfg.Transcribe.SilenceGate)
	require.Equal(t, int64(100), cfg.Server.MaxUploadMB, "unset keys keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsUnknownYAMLKeys(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("server:\n  port: 5050\n"), 0o644))

	_, err := load(file, noDotEnv(t), envMap(nil))
	require.ErrorContains(t, err, "parse config file")
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := load(filepath.Join(t.TempDir(), "missing.yaml"), noDotEnv(t), envMap(nil))
	require.ErrorContains(t, err, "open config file")
}

func TestLoadReportsBadEnvironmentValues(t *testing.T) {
	t.Parallel()

	_, err := load("", noDotEnv(t), envMap(map[string]string{
		"TRANSKRIBERA_AUTO_DOWNLOAD":          "sometimes",
		"TRANSKRIBERA_MAX_CONCURRENT":         "many",
		"TRANSKRIBERA_SILENCE_THRESHOLD_DBFS": "loud",
	}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "TRANSKRIBERA_AUTO_DOWNLOAD")
	require.Contains(t, err.Error(), "TRANSKRIBERA_MAX_CONCURRENT")
	require.Contains(t, err.Error(), "TRANSKRIBERA_SILENCE_THRESHOLD_DBFS")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{name: "bad addr", mutate: func(c *Config) { c.Server.Addr = "5050" }, errContains: "server.addr"},
		{name: "bad port", mutate: func(c *Config) { c.Server.Addr = ":99999" }, errContains: "0-65535"},
		{name: "zero upload", mutate: func(c *Config) { c.Server.MaxUploadMB = 0 }, errContains: "max_upload_mb"},
		{name: "unknown backend", mutate: func(c *Config) { c.Model.Backend = "onnx" }, errContains: "model.backend"},
		{name: "openai without url", mutate: func(c *Config) { c.Model.Backend = model.BackendOpenAI }, errContains: "OPENAI_BASE_URL"},
		{name: "empty language", mutate: func(c *Config) { c.Transcribe.Language = " " }, errContains: "language"},
		{name: "positive threshold", mutate: func(c *Config) { c.Transcribe.SilenceThresholdDBFS = 3 }, errContains: "silence_threshold_dbfs"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Transcribe.MaxConcurrent = 0 }, errContains: "max_concurrent"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.errContains)
		})
	}
}

func TestConversions(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Model.Name = "kb-whisper-tiny"
	cfg.Model.HFToken = "tok"
	cfg.OpenAI.BaseURL = "http://localhost:8000/v1"

	opts := cfg.ModelOptions()
	require.Equal(t, "kb-whisper-tiny", opts.Ref)
	require.Equal(t, "tok", opts.HFToken)
	require.True(t, opts.AutoDownload)
	require.True(t, opts.NoProgress)
	require.Equal(t, "http://localhost:8000/v1", opts.OpenAIBaseURL)

	pc := cfg.PipelineConfig()
	require.Equal(t, "sv", pc.Language)
	require.EqualValues(t, 1, pc.MaxConcurrent)
}
