// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree for app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "layerdeploy",
		Short: "Deploy functions with content-addressed dependency layers",
		Long: TitleStyle.Render("layerdeploy") + SubtitleStyle.Render(" - content-addressed dependency layers for serverless functions") + `

layerdeploy fingerprints your dependency manifests, publishes the dependency
tree as a layer at most once per fingerprint, and attaches that layer to every
function whose deployed fingerprint differs.

` + SubtitleStyle.Render("Examples:") + `
  layerdeploy config init      Create layerdeploy.cue in the current directory
  layerdeploy fingerprint      Print the current dependency fingerprint
  layerdeploy plan             Show which functions need the layer
  layerdeploy deploy           Deploy every configured function`,
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging and detailed errors")
	root.PersistentFlags().StringVar(&app.cfgFile, "config", "", "config file (default is ./layerdeploy.cue)")
	root.PersistentFlags().StringVarP(&app.dir, "dir", "C", "", "project directory")

	root.AddCommand(newDeployCommand(app))
	root.AddCommand(newPlanCommand(app))
	root.AddCommand(newFingerprintCommand(app))
	root.AddCommand(newConfigCommand(app))
	return root
}

func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the command's status.
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
