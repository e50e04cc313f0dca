package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fmueller/transkribera/internal/batch"
	"github.com/fmueller/transkribera/internal/config"
	"github.com/fmueller/transkribera/internal/logging"
	"github.com/fmueller/transkribera/internal/model"
	"github.com/fmueller/transkribera/internal/transcribe"
	"github.com/fmueller/transkribera/internal/version"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

const dotenvFile = ".env"

type appState struct {
	configFile   string
	verbose      bool
	jsonLogs     bool
	logFile      string
	noProgress   bool
	model        string
	modelDir     string
	endpoint     string
	backend      string
	whisperPath  string
	threads      int
	language     string
	autoDownload bool
	silenceGate  bool
	silenceDBFS  float64
	output       string
	addr         string

	cfg    config.Config
	logger *zap.Logger

	loadFn func(ctx context.Context, cfg config.Config) (batch.FileTranscriber, error)
}

func newAppState() *appState {
	defaults := config.Default()
	app := &appState{
		model:        defaults.Model.Name,
		backend:      defaults.Model.Backend,
		language:     defaults.Transcribe.Language,
		autoDownload: defaults.Model.AutoDownload,
		silenceGate:  defaults.Transcribe.SilenceGate,
		silenceDBFS:  defaults.Transcribe.SilenceThresholdDBFS,
		cfg:          defaults,
	}
	app.loadFn = app.loadPipeline
	return app
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState())
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transkribera <input>",
		Short: "Transcribe Swedish speech in an audio file or a directory of audio files",
		Long: "Transcribe Swedish speech with a KB-Whisper model.\n\n" +
			"<input> is an audio file or a directory. Directories are scanned (non-recursively) for " +
			strings.Join(audioExtensions(), ", ") + " files; each transcript is written to " +
			"<output>/<name>" + batch.OutputSuffix + ".",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.resolveConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{Verbose: cfg.Log.Verbose, JSON: cfg.Log.JSON, File: cfg.Log.File})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.cfg = cfg
			app.logger = logger
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runBatch(cmd, args[0])
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindConfigFlag(cmd, app)
	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindModelFlags(cmd, app)
	bindBackendFlags(cmd, app)
	bindLanguageAndSilenceFlags(cmd, app)
	cmd.Flags().StringVarP(&app.output, "output", "o", app.output, "Output file (single input) or directory (directory input)")

	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindConfigFlag(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.configFile, "config", app.configFile, "YAML config file; environment and flags override it")
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	cmd.PersistentFlags().StringVar(&app.logFile, "log-file", app.logFile, "Also write JSON logs to this rotating file")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindModelFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.model, "model", app.model, "Model name ("+strings.Join(model.Names(), "|")+"), Hugging Face repo id or ggml file path")
	cmd.PersistentFlags().StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where models are stored")
	cmd.PersistentFlags().StringVar(&app.endpoint, "endpoint", app.endpoint, "Hugging Face endpoint (default $HF_ENDPOINT or https://huggingface.co)")
	cmd.PersistentFlags().BoolVar(&app.autoDownload, "auto-download", app.autoDownload, "Automatically download missing models")
}

func bindBackendFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.backend, "backend", app.backend, "Inference backend: "+strings.Join(model.Backends(), "|"))
	cmd.PersistentFlags().StringVar(&app.whisperPath, "whisper-path", app.whisperPath, "Path to the whisper-cli executable")
	cmd.PersistentFlags().IntVar(&app.threads, "threads", app.threads, "whisper-cli thread count; 0 uses the engine default")
}

func bindLanguageAndSilenceFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.language, "language", app.language, "Language code passed to the model")
	cmd.PersistentFlags().BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Skip near-silent audio instead of transcribing it")
	cmd.PersistentFlags().Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", app.silenceDBFS, "Silence gate threshold in dBFS")
}

// resolveConfig layers flags the user set over config file, .env and
// environment.
func (a *appState) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(a.configFile, dotenvFile)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	override := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	override("addr", func() { cfg.Server.Addr = a.addr })
	override("verbose", func() { cfg.Log.Verbose = a.verbose })
	override("json", func() { cfg.Log.JSON = a.jsonLogs })
	override("log-file", func() { cfg.Log.File = a.logFile })
	override("model", func() { cfg.Model.Name = a.model })
	override("model-dir", func() { cfg.Model.Dir = a.modelDir })
	override("endpoint", func() { cfg.Model.Endpoint = a.endpoint })
	override("auto-download", func() { cfg.Model.AutoDownload = a.autoDownload })
	override("backend", func() { cfg.Model.Backend = a.backend })
	override("whisper-path", func() { cfg.Model.WhisperPath = a.whisperPath })
	override("threads", func() { cfg.Model.Threads = a.threads })
	override("language", func() { cfg.Transcribe.Language = a.language })
	override("silence-gate", func() { cfg.Transcribe.SilenceGate = a.silenceGate })
	override("silence-threshold-dbfs", func() { cfg.Transcribe.SilenceThresholdDBFS = a.silenceDBFS })

	cfg.Transcribe.Language = sanitizeLanguage(cfg.Transcribe.Language)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return transcribe.DefaultLanguage
	}
	return trimmed
}
