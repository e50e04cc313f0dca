// Package config loads settings shared by the CLI and the web service from
// defaults, an optional YAML file, a .env file and the environment, in
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fmueller/transkribera/internal/model"
	"github.com/fmueller/transkribera/internal/transcribe"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultAddr = ":5050"

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Model      ModelConfig      `yaml:"model"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MaxUploadMB     int64         `yaml:"max_upload_mb"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type ModelConfig struct {
	Name         string `yaml:"name"`
	Dir          string `yaml:"dir"`
	Backend      string `yaml:"backend"`
	AutoDownload bool   `yaml:"auto_download"`
	Endpoint     string `yaml:"endpoint"`
	WhisperPath  string `yaml:"whisper_path"`
	Threads      int    `yaml:"threads"`
	// HFToken is only read from the environment.
	HFToken string `yaml:"-"`
}

type OpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"-"`
}

type TranscribeConfig struct {
	Language             string  `yaml:"language"`
	SilenceGate          bool    `yaml:"silence_gate"`
	SilenceThresholdDBFS float64 `yaml:"silence_threshold_dbfs"`
	MaxConcurrent        int64   `yaml:"max_concurrent"`
}

type LogConfig struct {
	Verbose bool   `yaml:"verbose"`
	JSON    bool   `yaml:"json"`
	File    string `yaml:"file"`
}

func Default() Config {
	tc := transcribe.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			MaxUploadMB:     100,
			ShutdownTimeout: 5 * time.Second,
		},
		Model: ModelConfig{
			Name:         model.DefaultModel,
			Backend:      model.BackendWhisperCLI,
			AutoDownload: true,
		},
		Transcribe: TranscribeConfig{
			Language:             tc.Language,
			SilenceGate:          tc.SilenceGate,
			SilenceThresholdDBFS: tc.SilenceThresholdDBFS,
			MaxConcurrent:        tc.MaxConcurrent,
		},
	}
}

// Load builds a Config from defaults, then file (skipped when empty), then
// dotenv (skipped when missing), then the process environment.
func Load(file, dotenv string) (Config, error) {
	return load(file, dotenv, os.LookupEnv)
}

func load(file, dotenv string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(file) != "" {
		if err := readYAML(file, &cfg); err != nil {
			return Config{}, err
		}
	}

	dotenvValues, err := readDotEnv(dotenv)
	if err != nil {
		return Config{}, err
	}

	env := envSource{lookup: lookup, fallback: dotenvValues}
	if err := env.apply(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readYAML(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		path = ".env"
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return values, nil
}

// envSource prefers the real environment over .env values.
type envSource struct {
	lookup   func(string) (string, bool)
	fallback map[string]string
}

func (e envSource) get(key string) (string, bool) {
	if e.lookup != nil {
		if v, ok := e.lookup(key); ok {
			return v, true
		}
	}
	v, ok := e.fallback[key]
	return v, ok
}

func (e envSource) apply(cfg *Config) error {
	var problems []string

	str := func(key string, dst *string) {
		if v, ok := e.get(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := e.get(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int64) {
		if v, ok := e.get(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := e.get(key); ok && strings.TrimSpace(v) != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %q is not a number", key, v))
				return
			}
			*dst = f
		}
	}

	str("TRANSKRIBERA_ADDR", &cfg.Server.Addr)
	integer("TRANSKRIBERA_MAX_UPLOAD_MB", &cfg.Server.MaxUploadMB)

	str("TRANSKRIBERA_MODEL", &cfg.Model.Name)
	str("TRANSKRIBERA_MODEL_DIR", &cfg.Model.Dir)
	str("TRANSKRIBERA_BACKEND", &cfg.Model.Backend)
	boolean("TRANSKRIBERA_AUTO_DOWNLOAD", &cfg.Model.AutoDownload)
	str("HF_ENDPOINT", &cfg.Model.Endpoint)
	str("HF_TOKEN", &cfg.Model.HFToken)
	str("TRANSKRIBERA_WHISPER_PATH", &cfg.Model.WhisperPath)
	threads := int64(cfg.Model.Threads)
	integer("TRANSKRIBERA_THREADS", &threads)
	cfg.Model.Threads = int(threads)

	str("OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	str("OPENAI_API_KEY", &cfg.OpenAI.APIKey)

	str("TRANSKRIBERA_LANGUAGE", &cfg.Transcribe.Language)
	boolean("TRANSKRIBERA_SILENCE_GATE", &cfg.Transcribe.SilenceGate)
	float("TRANSKRIBERA_SILENCE_THRESHOLD_DBFS", &cfg.Transcribe.SilenceThresholdDBFS)
	integer("TRANSKRIBERA_MAX_CONCURRENT", &cfg.Transcribe.MaxConcurrent)

	boolean("TRANSKRIBERA_VERBOSE", &cfg.Log.Verbose)
	boolean("TRANSKRIBERA_LOG_JSON", &cfg.Log.JSON)
	str("TRANSKRIBERA_LOG_FILE", &cfg.Log.File)

	if len(problems) > 0 {
		return fmt.Errorf("invalid environment:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var problems []string

	if _, port, err := net.SplitHostPort(c.Server.Addr); err != nil {
		problems = append(problems, fmt.Sprintf("server.addr %q is not host:port", c.Server.Addr))
	} else if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		problems = append(problems, fmt.Sprintf("server.addr port %q must be 0-65535", port))
	}
	if c.Server.MaxUploadMB <= 0 {
		problems = append(problems, "server.max_upload_mb must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		problems = append(problems, "server.shutdown_timeout must be positive")
	}

	validBackend := false
	for _, b := range model.Backends() {
		if c.Model.Backend == b {
			validBackend = true
		}
	}
	if !validBackend {
		problems = append(problems, fmt.Sprintf("model.backend %q must be one of: %s", c.Model.Backend, strings.Join(model.Backends(), ", ")))
	}
	if c.Model.Backend == model.BackendOpenAI && strings.TrimSpace(c.OpenAI.BaseURL) == "" {
		problems = append(problems, "openai.base_url (OPENAI_BASE_URL) is required for the openai backend")
	}
	if c.Model.Threads < 0 {
		problems = append(problems, "model.threads must not be negative")
	}

	if strings.TrimSpace(c.Transcribe.Language) == "" {
		problems = append(problems, "transcribe.language must not be empty")
	}
	if c.Transcribe.SilenceThresholdDBFS >= 0 {
		problems = append(problems, "transcribe.silence_threshold_dbfs must be negative")
	}
	if c.Transcribe.MaxConcurrent < 1 {
		problems = append(problems, "transcribe.max_concurrent must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// MaxUploadBytes is the multipart body limit.
func (c Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}

// PipelineConfig converts to pipeline settings.
func (c Config) PipelineConfig() transcribe.Config {
	return transcribe.Config{
		Language:             c.Transcribe.Language,
		SilenceGate:          c.Transcribe.SilenceGate,
		SilenceThresholdDBFS: c.Transcribe.SilenceThresholdDBFS,
		MaxConcurrent:        c.Transcribe.MaxConcurrent,
	}
}

// ModelOptions converts to model loader settings.
func (c Config) ModelOptions() model.Options {
	return model.Options{
		Ref:           c.Model.Name,
		ModelDir:      c.Model.Dir,
		Backend:       c.Model.Backend,
		AutoDownload:  c.Model.AutoDownload,
		Endpoint:      c.Model.Endpoint,
		HFToken:       c.Model.HFToken,
		NoProgress:    true,
		WhisperPath:   c.Model.WhisperPath,
		Threads:       c.Model.Threads,
		OpenAIBaseURL: c.OpenAI.BaseURL,
		OpenAIAPIKey:  c.OpenAI.APIKey,
	}
}
