// Package store declares the transactional persistence contract used by the
// scheduling core. Implementations live under infra/.
package store

import (
	"context"
	"time"

	"github.com/kilianp07/loom/core/model"
)

// IntentFilter narrows ListIntents. Zero fields are ignored.
type IntentFilter struct {
	ProgramID     string
	ParticipantID string
	StaffID       string
	Kind          model.IntentKind
	StartDate     *time.Time
	ActiveOn      *time.Time
}

// ExceptionFilter narrows ListExceptions. Zero fields are ignored; From/To
// bound the exception date as [From, To).
type ExceptionFilter struct {
	ProgramID     string
	ParticipantID string
	Kind          model.ExceptionKind
	Date          *time.Time
	From          *time.Time
	To            *time.Time
}

// InstanceFilter narrows ListInstances. From/To bound the date as [From, To).
type InstanceFilter struct {
	ProgramID  string
	From       *time.Time
	To         *time.Time
	Stale      *bool
	CardsDirty *bool
}

// CardFilter narrows ListCards. From/To bound the date as [From, To).
type CardFilter struct {
	InstanceID    string
	ParticipantID string
	StaffID       string
	Date          *time.Time
	From          *time.Time
	To            *time.Time
}

// Booking is a staff or vehicle commitment on another instance.
type Booking struct {
	InstanceID string
	ResourceID string
	Start      model.TimeOfDay
	End        model.TimeOfDay
}

// RuleStore persists intents and exceptions.
type RuleStore interface {
	CreateIntent(ctx context.Context, in model.Intent) error
	GetIntent(ctx context.Context, id string) (model.Intent, error)
	UpdateIntent(ctx context.Context, in model.Intent) error
	DeleteIntent(ctx context.Context, id string) error
	ListIntents(ctx context.Context, f IntentFilter) ([]model.Intent, error)
	// OverlappingIntents returns intents sharing key whose range overlaps iv,
	// excluding excludeID.
	OverlappingIntents(ctx context.Context, key model.IntentKey, iv model.Interval, excludeID string) ([]model.Intent, error)

	CreateException(ctx context.Context, ex model.Exception) error
	GetException(ctx context.Context, id string) (model.Exception, error)
	DeleteException(ctx context.Context, id string) error
	ListExceptions(ctx context.Context, f ExceptionFilter) ([]model.Exception, error)
}

// CatalogStore exposes the reference data instances are built from.
type CatalogStore interface {
	GetProgram(ctx context.Context, id string) (model.Program, error)
	ListPrograms(ctx context.Context, activeOnly bool) ([]model.Program, error)
	UpsertProgram(ctx context.Context, p model.Program) error

	GetParticipant(ctx context.Context, id string) (model.Participant, error)
	ListParticipants(ctx context.Context) ([]model.Participant, error)
	UpsertParticipant(ctx context.Context, p model.Participant) error

	GetStaff(ctx context.Context, id string) (model.Staff, error)
	ListStaff(ctx context.Context) ([]model.Staff, error)
	UpsertStaff(ctx context.Context, s model.Staff) error

	GetVehicle(ctx context.Context, id string) (model.Vehicle, error)
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)
	UpsertVehicle(ctx context.Context, v model.Vehicle) error

	GetVenue(ctx context.Context, id string) (model.Venue, error)
	UpsertVenue(ctx context.Context, v model.Venue) error

	GetBillingCode(ctx context.Context, code string) (model.BillingCode, error)
	UpsertBillingCode(ctx context.Context, b model.BillingCode) error
}

// InstanceStore persists instances together with their child rows.
type InstanceStore interface {
	GetInstance(ctx context.Context, id string) (model.Instance, error)
	FindInstance(ctx context.Context, programID string, date time.Time) (model.Instance, error)
	// SaveInstance upserts by (program, date) and replaces every child row.
	SaveInstance(ctx context.Context, inst model.Instance) error
	DeleteInstance(ctx context.Context, id string) error
	ListInstances(ctx context.Context, f InstanceFilter) ([]model.Instance, error)
	// MarkStale flags non-finalised instances of programID dated in iv.
	MarkStale(ctx context.Context, programID string, iv model.Interval) (int, error)
	SetStage(ctx context.Context, id string, stage model.Stage, cardsDirty bool) error
	SetStatus(ctx context.Context, id string, status model.InstanceStatus) error
	StaffBookings(ctx context.Context, date time.Time, excludeInstanceID string) ([]Booking, error)
	VehicleBookings(ctx context.Context, date time.Time, excludeInstanceID string) ([]Booking, error)
	// PruneInstances deletes non-finalised instances dated in iv.
	PruneInstances(ctx context.Context, iv model.Interval) (int, error)
}

// CardStore persists generated cards.
type CardStore interface {
	// ReplaceCards deletes every card of the instance and inserts cards.
	ReplaceCards(ctx context.Context, instanceID string, cards []model.Card) error
	ListCards(ctx context.Context, f CardFilter) ([]model.Card, error)
}

// SettingsStore is a string key-value table.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// AuditStore appends operator-visible audit entries.
type AuditStore interface {
	AppendAudit(ctx context.Context, e model.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

// Tx groups every repository bound to one transaction.
type Tx interface {
	RuleStore
	CatalogStore
	InstanceStore
	CardStore
	SettingsStore
	AuditStore
}

// Store runs repositories either directly or inside a transaction.
type Store interface {
	Tx
	// InTx runs fn in a single transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
