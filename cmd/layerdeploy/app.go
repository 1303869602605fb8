// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/invowk/layerdeploy/internal/config"
	"github.com/invowk/layerdeploy/internal/deploy"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// App wires CLI services. Every command handler receives the App and
	// reaches configuration and control planes through it.
	App struct {
		Config ConfigProvider
		// ControlPlanes builds a client per credential identity. Dry runs
		// ignore it.
		ControlPlanes deploy.Factory
		stdout        io.Writer
		stderr        io.Writer

		verbose bool
		cfgFile string
		dir     string
	}

	// Dependencies defines the injection points for NewApp. Nil fields get
	// production defaults.
	Dependencies struct {
		Config        ConfigProvider
		ControlPlanes deploy.Factory
		Stdout        io.Writer
		Stderr        io.Writer
	}
)

// NewApp builds an App from deps.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:        deps.Config,
		ControlPlanes: deps.ControlPlanes,
		stdout:        deps.Stdout,
		stderr:        deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.ControlPlanes == nil {
		app.ControlPlanes = httpControlPlane
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// logger returns the stderr logger, at debug level when verbose.
func (a *App) logger() *log.Logger {
	l := log.NewWithOptions(a.stderr, log.Options{
		Prefix:          config.AppName,
		ReportTimestamp: a.verbose,
	})
	if a.verbose {
		l.SetLevel(log.DebugLevel)
	}
	return l
}

func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	return a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.cfgFile, Dir: a.dir})
}
