package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
)

const intentColumns = `id, kind, program_id, participant_id, staff_id, vehicle_id, venue_id,
    start_date, end_date, payload, created_by, created_at, updated_at`

func (q *queries) CreateIntent(ctx context.Context, in model.Intent) error {
	payload, err := toJSON(in.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `INSERT INTO intents (`+intentColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, string(in.Kind), in.ProgramID, in.ParticipantID, in.StaffID, in.VehicleID, in.VenueID,
		dateArg(in.Start), nullDate(in.End), payload, in.CreatedBy, timestamp(in.CreatedAt), timestamp(in.UpdatedAt))
	if isUniqueViolation(err) {
		return &model.ConflictError{Entity: "intent", ExistingID: in.ID, Message: "duplicate id"}
	}
	return err
}

func (q *queries) GetIntent(ctx context.Context, id string) (model.Intent, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+intentColumns+` FROM intents WHERE id = ?`, id)
	in, err := scanIntent(row)
	if err != nil {
		return model.Intent{}, notFound(err, "intent", id)
	}
	return in, nil
}

func (q *queries) UpdateIntent(ctx context.Context, in model.Intent) error {
	payload, err := toJSON(in.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	res, err := q.db.ExecContext(ctx, `UPDATE intents SET kind = ?, program_id = ?, participant_id = ?,
        staff_id = ?, vehicle_id = ?, venue_id = ?, start_date = ?, end_date = ?, payload = ?, updated_at = ?
        WHERE id = ?`,
		string(in.Kind), in.ProgramID, in.ParticipantID, in.StaffID, in.VehicleID, in.VenueID,
		dateArg(in.Start), nullDate(in.End), payload, timestamp(in.UpdatedAt), in.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "intent", in.ID)
}

func (q *queries) DeleteIntent(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM intents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "intent", id)
}

func (q *queries) ListIntents(ctx context.Context, f store.IntentFilter) ([]model.Intent, error) {
	var args []any
	query := `SELECT ` + intentColumns + ` FROM intents WHERE 1=1`
	if f.ProgramID != "" {
		query += ` AND program_id = ?`
		args = append(args, f.ProgramID)
	}
	if f.ParticipantID != "" {
		query += ` AND participant_id = ?`
		args = append(args, f.ParticipantID)
	}
	if f.StaffID != "" {
		query += ` AND staff_id = ?`
		args = append(args, f.StaffID)
	}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	if f.StartDate != nil {
		query += ` AND start_date = ?`
		args = append(args, dateArg(*f.StartDate))
	}
	if f.ActiveOn != nil {
		query += ` AND start_date <= ? AND (end_date IS NULL OR end_date > ?)`
		d := dateArg(*f.ActiveOn)
		args = append(args, d, d)
	}
	query += ` ORDER BY start_date, created_at, id`
	return q.queryIntents(ctx, query, args...)
}

func (q *queries) OverlappingIntents(ctx context.Context, key model.IntentKey, iv model.Interval, excludeID string) ([]model.Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM intents
        WHERE kind = ? AND program_id = ? AND id != ?
        AND (end_date IS NULL OR end_date > ?)`
	args := []any{string(key.Kind), key.ProgramID, excludeID, dateArg(iv.Start)}
	// Only the fields the key carries narrow the match.
	if key.ParticipantID != "" {
		query += ` AND participant_id = ?`
		args = append(args, key.ParticipantID)
	}
	if key.StaffID != "" {
		query += ` AND staff_id = ?`
		args = append(args, key.StaffID)
	}
	if iv.End != nil {
		query += ` AND start_date < ?`
		args = append(args, dateArg(*iv.End))
	}
	query += ` ORDER BY start_date, id`
	return q.queryIntents(ctx, query, args...)
}

func (q *queries) queryIntents(ctx context.Context, query string, args ...any) ([]model.Intent, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Intent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

func scanIntent(s scanner) (model.Intent, error) {
	var (
		in                   model.Intent
		kind, start, payload string
		created, updated     string
		end                  sql.NullString
	)
	if err := s.Scan(&in.ID, &kind, &in.ProgramID, &in.ParticipantID, &in.StaffID, &in.VehicleID, &in.VenueID,
		&start, &end, &payload, &in.CreatedBy, &created, &updated); err != nil {
		return model.Intent{}, err
	}
	in.Kind = model.IntentKind(kind)
	var err error
	if in.Start, err = model.ParseDate(start); err != nil {
		return model.Intent{}, err
	}
	if in.End, err = scanNullDate(end); err != nil {
		return model.Intent{}, err
	}
	if in.Payload, err = model.DecodePayload(in.Kind, []byte(payload)); err != nil {
		return model.Intent{}, err
	}
	if in.CreatedAt, err = parseTimestamp(created); err != nil {
		return model.Intent{}, err
	}
	if in.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return model.Intent{}, err
	}
	return in, nil
}

const exceptionColumns = `id, kind, program_id, participant_id, exception_date, details, created_by, created_at`

func (q *queries) CreateException(ctx context.Context, ex model.Exception) error {
	details, err := toJSON(ex.Details)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `INSERT INTO exceptions (`+exceptionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, string(ex.Kind), ex.ProgramID, ex.ParticipantID, dateArg(ex.Date), details, ex.CreatedBy, timestamp(ex.CreatedAt))
	if isUniqueViolation(err) {
		return &model.ConflictError{Entity: "exception", Message: fmt.Sprintf("%s already exists for %s on %s", ex.Kind, ex.ProgramID, model.FormatDate(ex.Date))}
	}
	return err
}

func (q *queries) GetException(ctx context.Context, id string) (model.Exception, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+exceptionColumns+` FROM exceptions WHERE id = ?`, id)
	ex, err := scanException(row)
	if err != nil {
		return model.Exception{}, notFound(err, "exception", id)
	}
	return ex, nil
}

func (q *queries) DeleteException(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM exceptions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "exception", id)
}

func (q *queries) ListExceptions(ctx context.Context, f store.ExceptionFilter) ([]model.Exception, error) {
	var args []any
	query := `SELECT ` + exceptionColumns + ` FROM exceptions WHERE 1=1`
	if f.ProgramID != "" {
		query += ` AND program_id = ?`
		args = append(args, f.ProgramID)
	}
	if f.ParticipantID != "" {
		query += ` AND participant_id = ?`
		args = append(args, f.ParticipantID)
	}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	if f.Date != nil {
		query += ` AND exception_date = ?`
		args = append(args, dateArg(*f.Date))
	}
	if f.From != nil {
		query += ` AND exception_date >= ?`
		args = append(args, dateArg(*f.From))
	}
	if f.To != nil {
		query += ` AND exception_date < ?`
		args = append(args, dateArg(*f.To))
	}
	query += ` ORDER BY exception_date, created_at, id`
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Exception
	for rows.Next() {
		ex, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ex)
	}
	return res, rows.Err()
}

func scanException(s scanner) (model.Exception, error) {
	var (
		ex                  model.Exception
		kind, date, details string
		created             string
	)
	if err := s.Scan(&ex.ID, &kind, &ex.ProgramID, &ex.ParticipantID, &date, &details, &ex.CreatedBy, &created); err != nil {
		return model.Exception{}, err
	}
	ex.Kind = model.ExceptionKind(kind)
	var err error
	if ex.Date, err = model.ParseDate(date); err != nil {
		return model.Exception{}, err
	}
	if err := fromJSON(details, &ex.Details); err != nil {
		return model.Exception{}, err
	}
	if ex.CreatedAt, err = parseTimestamp(created); err != nil {
		return model.Exception{}, err
	}
	return ex, nil
}
