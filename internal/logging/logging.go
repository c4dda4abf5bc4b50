// Package logging builds the process slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

// Rotation limits for the log file.
const (
	rotateThresholdKB = 10 * 1024
	maxRolls          = 3
)

// Options configures New.
type Options struct {
	Level slog.Level
	// File, when set, also receives every record through a size-based rotator.
	File string
	// Console is where records are printed; os.Stdout when nil.
	Console io.Writer
}

// New returns a JSON logger and a func that closes the log file, if any.
func New(opts Options) (*slog.Logger, func() error, error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	out := console
	closeFn := func() error { return nil }
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: create log dir: %w", err)
		}
		r, err := rotator.New(opts.File, rotateThresholdKB, false, maxRolls)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: open rotator: %w", err)
		}
		out = io.MultiWriter(console, r)
		closeFn = r.Close
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: opts.Level}))
	return logger, closeFn, nil
}
