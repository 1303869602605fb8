// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/spf13/cobra"

func newPlanCommand(app *App) *cobra.Command {
	var (
		force   bool
		version string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which functions would get the dependency layer",
		Long: `Plan compares the current dependency fingerprint with the fingerprint
recorded for each function. It reads the local state file only: nothing is
uploaded, published or updated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := app.loadConfig(ctx)
			if err != nil {
				return app.renderError(cmd, err)
			}
			svc, err := app.wire(ctx, cfg, app.logger(), wireOptions{version: version})
			if err != nil {
				return app.renderError(cmd, err)
			}
			req := svc.request
			req.Force = force
			plan, err := svc.engine.Preview(ctx, req)
			if err != nil {
				return app.renderError(cmd, err)
			}

			key := ""
			if !plan.NoLayerWork {
				key = svc.artifacts.ArtifactKey(req.LayerName, plan.Fingerprint)
			}
			renderPlan(app.stdout, plan, key)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "treat every function as changed")
	cmd.Flags().StringVar(&version, "project-version", "", "override the project version from package.json")
	return cmd
}
