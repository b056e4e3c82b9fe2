// Package logger declares the logging interface shared by the core
// services. Adapters live in infra/logger.
package logger

// Logger is the levelled logger injected into every service.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs msg with structured fields, e.g. per-request or
	// per-date context that should stay queryable.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
