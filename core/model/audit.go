package model

import "time"

// Severity of an audit entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// AuditEntry records one mutation or roll outcome for operators.
type AuditEntry struct {
	ID         int64
	At         time.Time
	Action     string
	EntityType string
	EntityID   string
	Severity   Severity
	Details    map[string]any
}
