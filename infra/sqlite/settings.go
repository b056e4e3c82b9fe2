package sqlite

import (
	"context"
	"time"

	"github.com/kilianp07/loom/core/model"
)

func (q *queries) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := q.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err != nil {
		return "", notFound(err, "setting", key)
	}
	return v, nil
}

func (q *queries) SetSetting(ctx context.Context, key, value string) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, timestamp(time.Now()))
	return err
}

func (q *queries) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	details, err := toJSON(e.Details)
	if err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.Severity == "" {
		e.Severity = model.SeverityInfo
	}
	_, err = q.db.ExecContext(ctx, `INSERT INTO audit_log (at, action, entity_type, entity_id, severity, details)
        VALUES (?, ?, ?, ?, ?, ?)`, timestamp(e.At), e.Action, e.EntityType, e.EntityID, string(e.Severity), details)
	return err
}

func (q *queries) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.QueryContext(ctx, `SELECT id, at, action, entity_type, entity_id, severity, details
        FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.AuditEntry
	for rows.Next() {
		var (
			e                  model.AuditEntry
			at, sev, details   string
		)
		if err := rows.Scan(&e.ID, &at, &e.Action, &e.EntityType, &e.EntityID, &sev, &details); err != nil {
			return nil, err
		}
		if e.At, err = parseTimestamp(at); err != nil {
			return nil, err
		}
		e.Severity = model.Severity(sev)
		if err := fromJSON(details, &e.Details); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
