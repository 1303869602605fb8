// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/invowk/layerdeploy/internal/config"
	"github.com/invowk/layerdeploy/internal/watch"
)

type deployFlags struct {
	dryRun  bool
	force   bool
	watch   bool
	version string
}

func newDeployCommand(app *App) *cobra.Command {
	var flags deployFlags
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Publish the dependency layer if needed and update every function",
		Long: `Deploy computes the dependency fingerprint, uploads the dependency bundle and
publishes a layer version only when no existing version carries that
fingerprint, then updates each configured function in order. Functions whose
recorded fingerprint already matches keep their layer list and only get new
code. The first failing function stops the batch.

With --watch the deploy is repeated whenever a file in the project changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runDeploy(cmd, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "run against in-memory storage and control plane; nothing remote is written")
	cmd.Flags().BoolVar(&flags.force, "force", false, "attach the layer to every function regardless of recorded fingerprints")
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "re-deploy when project files change")
	cmd.Flags().StringVar(&flags.version, "project-version", "", "override the project version from package.json")
	return cmd
}

func (a *App) runDeploy(cmd *cobra.Command, flags deployFlags) error {
	ctx := cmd.Context()
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return a.renderError(cmd, err)
	}
	logger := a.logger()
	if flags.dryRun {
		fmt.Fprintln(a.stdout, WarningStyle.Render("Dry run: storage, layers and functions are simulated in memory"))
	}

	err = a.deployOnce(ctx, cfg, logger, flags)
	if !flags.watch {
		if err != nil {
			return a.renderError(cmd, err)
		}
		return nil
	}
	if err != nil {
		_ = a.renderError(cmd, err)
	}

	dir, codeDir, err := projectDirs(cfg)
	if err != nil {
		return a.renderError(cmd, err)
	}
	w, err := watch.New(watch.Config{
		Dir:      dir,
		Ignore:   watchIgnores(cfg, dir, codeDir),
		Observer: logger,
		OnChange: func(ctx context.Context, changed []string) error {
			logger.Debug("changed files", "paths", changed)
			return a.deployOnce(ctx, cfg, logger, flags)
		},
	})
	if err != nil {
		return a.renderError(cmd, err)
	}
	fmt.Fprintf(a.stdout, "%s Watching %s for changes (Ctrl+C to stop)\n", SubtitleStyle.Render(skipIcon), dir)
	if err := w.Run(ctx); err != nil {
		return a.renderError(cmd, err)
	}
	return nil
}

// deployOnce wires a fresh pipeline so each run re-reads package.json and the
// state file.
func (a *App) deployOnce(ctx context.Context, cfg *config.Config, logger *log.Logger, flags deployFlags) error {
	svc, err := a.wire(ctx, cfg, logger, wireOptions{dryRun: flags.dryRun, version: flags.version})
	if err != nil {
		return err
	}
	req := svc.request
	req.Force = flags.force

	report, err := svc.orchestrator.Deploy(ctx, req, svc.inputs.codeDir)
	if err != nil {
		if report != nil && len(report.Results) > 0 {
			renderReport(a.stdout, report)
		}
		return err
	}
	renderReport(a.stdout, report)
	return nil
}
