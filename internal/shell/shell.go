// SPDX-License-Identifier: MPL-2.0

// Package shell runs POSIX shell snippets with the embedded mvdan/sh
// interpreter, so hooks behave the same on every platform.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/invowk/layerdeploy/internal/layer"
)

type (
	// ExitError is returned when a script exits with a non-zero status.
	ExitError struct {
		Code int
	}

	// Runner executes scripts.
	Runner struct {
		stdout io.Writer
		stderr io.Writer
		env    []string
	}

	// Option configures a Runner.
	Option func(*Runner)
)

func (e *ExitError) Error() string {
	return fmt.Sprintf("script exited with status %d", e.Code)
}

// WithOutput sets where script stdout and stderr go. Defaults to io.Discard.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(kv ...string) Option {
	return func(r *Runner) { r.env = append(r.env, kv...) }
}

// New creates a Runner that inherits the process environment.
func New(opts ...Option) *Runner {
	r := &Runner{stdout: io.Discard, stderr: io.Discard, env: os.Environ()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate parses script without running it.
func Validate(script string) error {
	if _, err := syntax.NewParser().Parse(strings.NewReader(script), "script"); err != nil {
		return fmt.Errorf("failed to parse script: %w", err)
	}
	return nil
}

// Run executes script with dir as the working directory.
func (r *Runner) Run(ctx context.Context, dir, script string) error {
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "script")
	if err != nil {
		return fmt.Errorf("failed to parse script: %w", err)
	}

	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(r.env...)),
		interp.StdIO(nil, r.stdout, r.stderr),
	)
	if err != nil {
		return fmt.Errorf("failed to create interpreter: %w", err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return &ExitError{Code: int(exitStatus)}
		}
		return fmt.Errorf("script execution failed: %w", err)
	}
	return nil
}

// Prebuild returns a hook that runs script in the parent directory of the
// dependency source directory, e.g. "npm ci --omit=dev" next to node_modules.
func (r *Runner) Prebuild(script string) layer.PrebuildFunc {
	return func(ctx context.Context, sourceDir string) error {
		return r.Run(ctx, filepath.Dir(filepath.Clean(sourceDir)), script)
	}
}
