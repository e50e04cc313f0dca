package transcribe

import (
	"context"

	"github.com/fmueller/transkribera/internal/audio"
	"github.com/fmueller/transkribera/internal/model"
)

// Load binds the model described by opts and returns a pipeline over it
// that decodes files with the default audio loader.
func Load(ctx context.Context, opts model.Options, cfg Config) (*Pipeline, *model.Handle, error) {
	if cfg.Logger == nil {
		cfg.Logger = opts.Logger
	}

	handle, err := model.Load(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	return New(handle.Generator, audio.NewLoader(cfg.Logger), cfg), handle, nil
}
