package logger

import corelogger "github.com/kilianp07/loom/core/logger"

// Logger is the core logging interface.
type Logger = corelogger.Logger

// NopLogger drops every message. Tests and optional components use it.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// New returns the zerolog logger for component. APP_ENV=dev switches to
// human-readable console output.
func New(component string) Logger {
	return NewZerologLogger(component)
}
