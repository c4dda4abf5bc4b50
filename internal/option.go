package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	console io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConsole sends log output to w instead of stdout. The MCP server uses
// it to keep stdout free for the protocol.
func WithConsole(w io.Writer) Option {
	return func(a *application) {
		a.console = w
	}
}
