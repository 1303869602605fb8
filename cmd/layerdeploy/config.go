// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/invowk/layerdeploy/internal/config"
	"github.com/invowk/layerdeploy/internal/issue"
)

func newConfigCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the layerdeploy configuration",
	}
	cmd.AddCommand(newConfigShowCommand(app))
	cmd.AddCommand(newConfigInitCommand(app))
	cmd.AddCommand(newConfigValidateCommand(app))
	return cmd
}

func newConfigShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as CUE",
		Long: `Show prints the configuration after defaults, the config file and
LAYERDEPLOY_* environment variables are merged. Credentials are never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.renderError(cmd, err)
			}
			source := app.configPath()
			if source == "" {
				source = "(defaults and environment only)"
			}
			fmt.Fprintf(app.stderr, "%s %s\n", SubtitleStyle.Render("# source:"), source)
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	}
}

func newConfigInitCommand(app *App) *cobra.Command {
	var (
		force     bool
		stdout    bool
		layerName string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a layerdeploy.cue with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := app.dir
			if dir == "" {
				dir = "."
			}
			cfg := config.DefaultConfig()
			cfg.Layer.Name = layerName
			if cfg.Layer.Name == "" {
				abs, err := filepath.Abs(dir)
				if err != nil {
					return app.renderError(cmd, err)
				}
				cfg.Layer.Name = filepath.Base(abs) + "-deps"
			}

			if stdout {
				fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
				return nil
			}
			path := app.cfgFile
			if path == "" {
				path = config.DefaultPath(dir)
			}
			if err := config.WriteFile(path, cfg, force); err != nil {
				return app.renderError(cmd, issue.NewErrorContext().
					WithOperation("write configuration").
					WithResource(path).
					WithSuggestion("Pass --force to overwrite an existing file").
					Wrap(err).
					BuildError())
			}
			fmt.Fprintf(app.stdout, "%s Created %s\n", SuccessStyle.Render(successIcon), CodeStyle.Render(path))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the config instead of writing it")
	cmd.Flags().StringVar(&layerName, "layer", "", "layer name (default: <directory>-deps)")
	return cmd
}

func newConfigValidateCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration against the schema and required settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.renderError(cmd, err)
			}
			if ok, errs := cfg.IsValid(); !ok {
				return app.renderError(cmd, errs[0])
			}
			fmt.Fprintf(app.stdout, "%s Configuration is valid (%d target(s))\n",
				SuccessStyle.Render(successIcon), len(cfg.Targets))
			return nil
		},
	}
}

// configPath returns the config file Load would read, or "" when none exists.
func (a *App) configPath() string {
	if a.cfgFile != "" {
		return a.cfgFile
	}
	dir := a.dir
	if dir == "" {
		dir = "."
	}
	if _, err := os.Stat(config.DefaultPath(dir)); err == nil {
		return config.DefaultPath(dir)
	}
	return ""
}
