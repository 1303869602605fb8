// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/invowk/layerdeploy/internal/layer"
)

type (
	// LogSink receives one line per function update. Emit errors are logged
	// and never abort a deploy.
	LogSink interface {
		Emit(ctx context.Context, message string) error
	}

	// FileSink appends lines to a file, creating it and its parent directory
	// on first use.
	FileSink struct {
		mu   sync.Mutex
		fs   afero.Fs
		path string
	}

	// LoggerSink forwards lines to a structured logger at info level.
	LoggerSink struct {
		logger *log.Logger
	}

	nopSink struct{}
)

// NewFileSink returns a FileSink writing to path on fs.
func NewFileSink(fs afero.Fs, path string) *FileSink {
	return &FileSink{fs: fs, path: path}
}

// Emit appends message and a newline.
func (s *FileSink) Emit(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create log sink directory: %w", err)
	}
	f, err := s.fs.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log sink %s: %w", s.path, err)
	}
	if _, err := f.WriteString(message + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write log sink %s: %w", s.path, err)
	}
	return f.Close()
}

// NewLoggerSink returns a LoggerSink writing to logger.
func NewLoggerSink(logger *log.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

// Emit logs message.
func (s *LoggerSink) Emit(_ context.Context, message string) error {
	s.logger.Info(message)
	return nil
}

func (nopSink) Emit(context.Context, string) error { return nil }

// UpdateLine formats the sink line for one function update.
func UpdateLine(at time.Time, target layer.Target, res *layer.FunctionUpdate) string {
	return fmt.Sprintf("%s %s status=%d size=%d",
		at.UTC().Format(time.RFC3339), target, res.StatusCode, res.CodeSize)
}
