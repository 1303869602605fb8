// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/layerdeploy/internal/layer"
)

func newFingerprintCommand(app *App) *cobra.Command {
	var (
		short   bool
		version string
	)
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the dependency fingerprint of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := app.loadConfig(ctx)
			if err != nil {
				return app.renderError(cmd, err)
			}
			in, err := resolveInputs(cfg, version)
			if err != nil {
				return app.renderError(cmd, err)
			}
			fp, err := layer.ComputeFingerprint(ctx, in.manifests, in.version)
			if err != nil {
				return app.renderError(cmd, err)
			}

			if short {
				fmt.Fprintln(app.stdout, fp.Short())
				return nil
			}
			fmt.Fprintln(app.stdout, fp.String())
			if app.verbose {
				fmt.Fprintf(app.stdout, "%s %s\n", SubtitleStyle.Render("version:"), in.version)
				for _, m := range in.manifests {
					fmt.Fprintf(app.stdout, "%s %s\n", SubtitleStyle.Render("manifest:"), m)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print the 12-character prefix only")
	cmd.Flags().StringVar(&version, "project-version", "", "override the project version from package.json")
	return cmd
}
