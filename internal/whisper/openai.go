package whisper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// OpenAIEngine generates through an OpenAI-compatible
// /v1/audio/transcriptions endpoint.
type OpenAIEngine struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("openai model id is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAIEngine{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// CheckModel confirms the endpoint serves the configured model.
func (e *OpenAIEngine) CheckModel(ctx context.Context) error {
	list, err := e.client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if m.ID == e.model {
			return nil
		}
		ids = append(ids, m.ID)
	}
	return fmt.Errorf("model %q not served by endpoint (available: %s)", e.model, strings.Join(ids, ", "))
}

func (e *OpenAIEngine) Generate(ctx context.Context, features Features, opts Options) (Output, error) {
	if strings.TrimSpace(features.WAVPath) == "" {
		return Output{}, errors.New("feature file is required")
	}
	if opts.Task != "" && opts.Task != TaskTranscribe {
		return Output{}, fmt.Errorf("unsupported task %q", opts.Task)
	}

	req := openai.AudioRequest{
		Model:    e.model,
		FilePath: features.WAVPath,
		Language: strings.TrimSpace(opts.Language),
		Format:   openai.AudioResponseFormatVerboseJSON,
	}

	e.logger.Debug("requesting remote transcription", zap.String("model", e.model), zap.String("language", req.Language))
	resp, err := e.client.CreateTranscription(ctx, req)
	if err != nil {
		return Output{}, fmt.Errorf("remote transcription failed: %w", err)
	}

	out := Output{Text: resp.Text, Segments: make([]Segment, 0, len(resp.Segments))}
	for _, seg := range resp.Segments {
		s := Segment{Text: seg.Text, Tokens: make([]Token, 0, len(seg.Tokens))}
		for _, id := range seg.Tokens {
			s.Tokens = append(s.Tokens, Token{ID: id})
		}
		out.Segments = append(out.Segments, s)
	}
	return out, nil
}
