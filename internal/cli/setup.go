package cli

import (
	"fmt"

	"github.com/fmueller/transkribera/internal/download"
	"github.com/fmueller/transkribera/internal/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSetupCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Download and verify speech model assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.cfg
			if cfg.Model.Backend == model.BackendOpenAI {
				return fmt.Errorf("setup downloads weights for the %s backend; the %s backend serves %s remotely", model.BackendWhisperCLI, model.BackendOpenAI, cfg.Model.Name)
			}
			opts := app.modelOptions(cfg)

			modelDir, err := model.ModelDir(opts.ModelDir)
			if err != nil {
				return err
			}

			resolved, err := model.Resolve(opts.Ref, modelDir, model.Endpoint(opts.Endpoint))
			if err != nil {
				return err
			}
			if resolved.IsCustomPath {
				return fmt.Errorf("setup expects a model name or repo id; got custom path %s", resolved.Path)
			}

			if !resolved.NeedsDownload {
				checksum, err := model.RemoteChecksum(cmd.Context(), resolved, opts)
				switch {
				case err != nil:
					app.log().Warn("could not fetch remote checksum; keeping existing model", zap.String("model", resolved.Repo), zap.Error(err))
				case download.VerifyFileChecksum(resolved.Path, checksum) != nil:
					app.log().Warn("model checksum verification failed; downloading fresh copy", zap.String("model", resolved.Repo))
					resolved.NeedsDownload = true
				}
			}

			if !resolved.NeedsDownload {
				app.log().Info("model already present", zap.String("model", resolved.Repo), zap.String("path", resolved.Path))
				fmt.Fprintf(cmd.OutOrStdout(), "Model %s already present at %s\n", resolved.Name, resolved.Path)
				return nil
			}

			app.log().Info("downloading model", zap.String("model", resolved.Repo), zap.String("path", resolved.Path))
			if err := model.Fetch(cmd.Context(), resolved, opts); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Model %s installed at %s\n", resolved.Name, resolved.Path)
			return nil
		},
	}
}
