package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when an id does not resolve.
var ErrNotFound = errors.New("not found")

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of a request. It is never
// persisted.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field error.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// OrNil returns e when it holds at least one field error.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ConflictError reports a collision with an existing rule.
type ConflictError struct {
	Entity     string
	ExistingID string
	Message    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict with %s %s: %s", e.Entity, e.ExistingID, e.Message)
}

// SystemError wraps unexpected store or runtime failures.
type SystemError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *SystemError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *SystemError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Resource names a shortfall kind.
type Resource string

const (
	ResourceStaff   Resource = "staff"
	ResourceVehicle Resource = "vehicle"
)

// ShortfallWarning flags under-staffing or missing vehicle capacity. It is
// persisted on the instance and never blocks it.
type ShortfallWarning struct {
	Resource Resource `json:"resource"`
	Required int      `json:"required"`
	Assigned int      `json:"assigned"`
	Detail   string   `json:"detail,omitempty"`
}

// OptimizationWarning reports a route that exceeded the run ceiling and was
// split.
type OptimizationWarning struct {
	VehicleID        string    `json:"vehicle_id"`
	Direction        Direction `json:"direction"`
	EstimatedMinutes float64   `json:"estimated_minutes"`
	CeilingMinutes   float64   `json:"ceiling_minutes"`
	Runs             int       `json:"runs"`
}
