package sqlite

import (
	"context"
	"fmt"

	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
)

const cardColumns = `c.id, c.instance_id, c.program_id, c.card_date, c.type, c.sequence, c.start_time, c.end_time,
    c.location, c.participant_ids, c.staff_ids, c.vehicle_id, c.flagged, c.meta`

func (q *queries) ReplaceCards(ctx context.Context, instanceID string, cards []model.Card) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM cards WHERE instance_id = ?`, instanceID); err != nil {
		return fmt.Errorf("delete cards: %w", err)
	}
	for _, c := range cards {
		if c.InstanceID != instanceID {
			return fmt.Errorf("card %s belongs to instance %s, not %s", c.ID, c.InstanceID, instanceID)
		}
		js, err := jsonArgs(c.ParticipantIDs, c.StaffIDs, c.Meta)
		if err != nil {
			return err
		}
		date := dateArg(c.Date)
		if _, err := q.db.ExecContext(ctx, `INSERT INTO cards (id, instance_id, program_id, card_date, type,
            sequence, start_time, end_time, location, participant_ids, staff_ids, vehicle_id, flagged, meta)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.InstanceID, c.ProgramID, date, string(c.Type), c.Sequence, string(c.StartTime), string(c.EndTime),
			c.Location, js[0], js[1], c.VehicleID, boolInt(c.Flagged), js[2]); err != nil {
			return fmt.Errorf("insert card %s: %w", c.ID, err)
		}
		members := make(map[string][]string, 2)
		members["participant"] = c.ParticipantIDs
		members["staff"] = append(append([]string{}, c.StaffIDs...), c.Meta.ExtraStaffIDs...)
		for kind, ids := range members {
			for _, id := range ids {
				if _, err := q.db.ExecContext(ctx, `INSERT OR IGNORE INTO card_members (card_id, member_kind, member_id, card_date)
                    VALUES (?, ?, ?, ?)`, c.ID, kind, id, date); err != nil {
					return fmt.Errorf("insert card member: %w", err)
				}
			}
		}
	}
	return nil
}

func (q *queries) ListCards(ctx context.Context, f store.CardFilter) ([]model.Card, error) {
	var args []any
	query := `SELECT ` + cardColumns + ` FROM cards c WHERE 1=1`
	if f.InstanceID != "" {
		query += ` AND c.instance_id = ?`
		args = append(args, f.InstanceID)
	}
	if f.ParticipantID != "" {
		query += ` AND EXISTS (SELECT 1 FROM card_members m WHERE m.card_id = c.id
            AND m.member_kind = 'participant' AND m.member_id = ?)`
		args = append(args, f.ParticipantID)
	}
	if f.StaffID != "" {
		query += ` AND EXISTS (SELECT 1 FROM card_members m WHERE m.card_id = c.id
            AND m.member_kind = 'staff' AND m.member_id = ?)`
		args = append(args, f.StaffID)
	}
	if f.Date != nil {
		query += ` AND c.card_date = ?`
		args = append(args, dateArg(*f.Date))
	}
	if f.From != nil {
		query += ` AND c.card_date >= ?`
		args = append(args, dateArg(*f.From))
	}
	if f.To != nil {
		query += ` AND c.card_date < ?`
		args = append(args, dateArg(*f.To))
	}
	query += ` ORDER BY c.card_date, c.instance_id, CASE c.type
        WHEN 'MASTER' THEN 0 WHEN 'PICKUP' THEN 1 WHEN 'ACTIVITY' THEN 2 WHEN 'DROPOFF' THEN 3 ELSE 4 END, c.sequence`
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Card
	for rows.Next() {
		var (
			c                              model.Card
			date, typ, start, end          string
			participants, staff, meta      string
			flagged                        int
		)
		if err := rows.Scan(&c.ID, &c.InstanceID, &c.ProgramID, &date, &typ, &c.Sequence, &start, &end,
			&c.Location, &participants, &staff, &c.VehicleID, &flagged, &meta); err != nil {
			return nil, err
		}
		if c.Date, err = model.ParseDate(date); err != nil {
			return nil, err
		}
		c.Type, c.StartTime, c.EndTime, c.Flagged = model.CardType(typ), model.TimeOfDay(start), model.TimeOfDay(end), flagged == 1
		if err := fromJSON(participants, &c.ParticipantIDs); err != nil {
			return nil, err
		}
		if err := fromJSON(staff, &c.StaffIDs); err != nil {
			return nil, err
		}
		if err := fromJSON(meta, &c.Meta); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
