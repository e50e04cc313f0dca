package model

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/fmueller/transkribera/internal/apperr"
	"github.com/fmueller/transkribera/internal/download"
	"github.com/fmueller/transkribera/internal/platform"
	"github.com/fmueller/transkribera/internal/whisper"
	"go.uber.org/zap"
)

const (
	BackendWhisperCLI = "whisper-cli"
	BackendOpenAI     = "openai"
)

// Backends lists the accepted backend names.
func Backends() []string {
	return []string{BackendWhisperCLI, BackendOpenAI}
}

type Options struct {
	Ref          string
	ModelDir     string
	Backend      string
	AutoDownload bool
	// Endpoint is the Hugging Face base URL; HF_ENDPOINT is honored when empty.
	Endpoint   string
	HFToken    string
	NoProgress bool

	// Device skips detection when set.
	Device      platform.Device
	WhisperPath string
	Threads     int

	OpenAIBaseURL string
	OpenAIAPIKey  string

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Handle is a loaded model. It is immutable and safe to share.
type Handle struct {
	Name      string
	Path      string
	Device    platform.Device
	Backend   string
	Generator whisper.Generator
}

// Load resolves and materializes the weights, selects a device and binds the
// backend. Every failure is a model load error.
func Load(ctx context.Context, opts Options) (*Handle, error) {
	const op = "load model"

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	backend := strings.TrimSpace(opts.Backend)
	if backend == "" {
		backend = BackendWhisperCLI
	}

	switch backend {
	case BackendWhisperCLI:
		h, err := loadWhisperCLI(ctx, opts, logger)
		if err != nil {
			return nil, apperr.E(apperr.KindModelLoad, op, err)
		}
		return h, nil
	case BackendOpenAI:
		h, err := loadOpenAI(ctx, opts, logger)
		if err != nil {
			return nil, apperr.E(apperr.KindModelLoad, op, err)
		}
		return h, nil
	default:
		return nil, apperr.Newf(apperr.KindModelLoad, op, "unknown backend %q (expected %s)", backend, strings.Join(Backends(), "|"))
	}
}

func loadWhisperCLI(ctx context.Context, opts Options, logger *zap.Logger) (*Handle, error) {
	resolved, err := Ensure(ctx, opts)
	if err != nil {
		return nil, err
	}

	engine, err := whisper.LocateEngine(opts.WhisperPath)
	if err != nil {
		return nil, err
	}

	device := opts.Device
	if device == "" {
		device = platform.DetectDevice()
	}

	logger.Info("model loaded",
		zap.String("model", resolved.Name),
		zap.String("path", resolved.Path),
		zap.String("device", string(device)),
		zap.String("engine", engine),
	)

	return &Handle{
		Name:    resolved.Name,
		Path:    resolved.Path,
		Device:  device,
		Backend: BackendWhisperCLI,
		Generator: &whisper.CLIEngine{
			Executable: engine,
			ModelPath:  resolved.Path,
			UseGPU:     device.Accelerated(),
			Threads:    opts.Threads,
			Logger:     logger,
		},
	}, nil
}

func loadOpenAI(ctx context.Context, opts Options, logger *zap.Logger) (*Handle, error) {
	ref := strings.TrimSpace(opts.Ref)
	if ref == "" {
		ref = DefaultModel
	}

	engine, err := whisper.NewOpenAIEngine(whisper.OpenAIConfig{
		BaseURL:    opts.OpenAIBaseURL,
		APIKey:     opts.OpenAIAPIKey,
		Model:      ref,
		HTTPClient: opts.HTTPClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	if err := engine.CheckModel(ctx); err != nil {
		return nil, err
	}

	logger.Info("model loaded", zap.String("model", ref), zap.String("device", string(platform.DeviceRemote)), zap.String("endpoint", opts.OpenAIBaseURL))

	return &Handle{
		Name:      ref,
		Device:    platform.DeviceRemote,
		Backend:   BackendOpenAI,
		Generator: engine,
	}, nil
}

// Ensure resolves opts.Ref and downloads the weights when they are missing.
func Ensure(ctx context.Context, opts Options) (Resolved, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	modelDir, err := platform.ResolveModelDir(opts.ModelDir)
	if err != nil {
		return Resolved{}, err
	}

	resolved, err := Resolve(opts.Ref, modelDir, endpoint(opts.Endpoint))
	if err != nil {
		return Resolved{}, err
	}
	if !resolved.NeedsDownload {
		return resolved, nil
	}

	if !opts.AutoDownload {
		return Resolved{}, fmt.Errorf("model %q is missing at %s; run `transkribera setup --model %s` or use --auto-download=true", resolved.Name, resolved.Path, resolved.Repo)
	}

	logger.Info("model not found, downloading", zap.String("model", resolved.Repo), zap.String("destination", resolved.Path))
	if err := Fetch(ctx, resolved, opts); err != nil {
		return Resolved{}, err
	}

	resolved.NeedsDownload = false
	return resolved, nil
}

// Fetch downloads resolved.URL into resolved.Path, verifying the sha256 the
// host advertises when it advertises one.
func Fetch(ctx context.Context, resolved Resolved, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	token := hfToken(opts.HFToken)
	checksum, err := download.ResolveRemoteChecksum(ctx, resolved.URL, token, opts.HTTPClient)
	if err != nil {
		logger.Warn("remote checksum unavailable; download will not be verified", zap.String("model", resolved.Repo), zap.Error(err))
	}

	if err := download.DownloadFile(ctx, download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: checksum,
		Token:          token,
		Description:    "downloading " + resolved.Name,
		NoProgress:     opts.NoProgress,
		HTTPClient:     opts.HTTPClient,
		Logger:         logger,
	}); err != nil {
		return fmt.Errorf("download model %q: %w", resolved.Repo, err)
	}
	return nil
}

// RemoteChecksum returns the sha256 the host advertises for resolved, if any.
func RemoteChecksum(ctx context.Context, resolved Resolved, opts Options) (string, error) {
	return download.ResolveRemoteChecksum(ctx, resolved.URL, hfToken(opts.HFToken), opts.HTTPClient)
}

// ModelDir is the directory Ensure stores repo weights under.
func ModelDir(override string) (string, error) {
	return platform.ResolveModelDir(override)
}

// Endpoint returns the Hugging Face base URL in effect.
func Endpoint(override string) string {
	return endpoint(override)
}

func endpoint(override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	if env := strings.TrimSpace(os.Getenv("HF_ENDPOINT")); env != "" {
		return env
	}
	return defaultEndpoint
}

func hfToken(explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	return strings.TrimSpace(os.Getenv("HF_TOKEN"))
}
