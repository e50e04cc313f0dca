package cli

import (
	"context"

	"github.com/fmueller/transkribera/internal/batch"
	"github.com/fmueller/transkribera/internal/config"
	"github.com/fmueller/transkribera/internal/model"
	"github.com/fmueller/transkribera/internal/transcribe"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runBatch checks the input before paying for the model load. A failed load
// or an invalid input is returned; per-file failures are only reported.
func (a *appState) runBatch(cmd *cobra.Command, input string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := batch.ValidateInput(input); err != nil {
		return err
	}

	loadFn := a.loadFn
	if loadFn == nil {
		loadFn = a.loadPipeline
	}

	a.log().Info("loading model", zap.String("model", a.cfg.Model.Name), zap.String("backend", a.cfg.Model.Backend))
	stop := startSpinner(a.progressEnabled(), "Loading model")
	transcriber, err := loadFn(ctx, a.cfg)
	stop()
	if err != nil {
		return err
	}

	runner := &batch.Runner{
		Transcriber: transcriber,
		Language:    a.cfg.Transcribe.Language,
		Out:         cmd.OutOrStdout(),
		Logger:      a.log(),
		Spinner: func(description string) func() {
			return startSpinner(a.progressEnabled(), description)
		},
	}

	report, err := runner.Run(ctx, input, a.output)
	if err != nil {
		return err
	}
	a.summarize(report)
	return nil
}

func (a *appState) loadPipeline(ctx context.Context, cfg config.Config) (batch.FileTranscriber, error) {
	opts := a.modelOptions(cfg)

	pc := cfg.PipelineConfig()
	pc.Logger = a.log()

	p, _, err := transcribe.Load(ctx, opts, pc)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (a *appState) modelOptions(cfg config.Config) model.Options {
	opts := cfg.ModelOptions()
	opts.NoProgress = !a.progressEnabled()
	opts.Logger = a.log()
	return opts
}
