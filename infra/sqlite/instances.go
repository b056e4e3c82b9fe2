package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
)

const instanceColumns = `id, program_id, program_name, instance_date, start_time, end_time, pickup_time,
    dropoff_time, venue_id, qualifications, status, stage, stale, cards_dirty, overridden, rules, pins,
    vehicle_ids, required_staff, route_minutes, revenue, staff_cost, admin_cost, profit_loss, margin,
    shortfalls, updated_at`

func (q *queries) GetInstance(ctx context.Context, id string) (model.Instance, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id)
	inst, err := scanInstance(row)
	if err != nil {
		return model.Instance{}, notFound(err, "instance", id)
	}
	return inst, q.loadChildren(ctx, &inst)
}

func (q *queries) FindInstance(ctx context.Context, programID string, date time.Time) (model.Instance, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances
        WHERE program_id = ? AND instance_date = ?`, programID, dateArg(date))
	inst, err := scanInstance(row)
	if err != nil {
		return model.Instance{}, notFound(err, "instance", programID+"@"+model.FormatDate(date))
	}
	return inst, q.loadChildren(ctx, &inst)
}

func (q *queries) SaveInstance(ctx context.Context, inst model.Instance) error {
	js, err := jsonArgs(inst.Qualifications, inst.Rules, inst.Pins, inst.VehicleIDs, inst.Shortfalls)
	if err != nil {
		return err
	}
	f := inst.Financials
	_, err = q.db.ExecContext(ctx, `INSERT INTO instances (`+instanceColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(program_id, instance_date) DO UPDATE SET program_name = excluded.program_name,
            start_time = excluded.start_time, end_time = excluded.end_time,
            pickup_time = excluded.pickup_time, dropoff_time = excluded.dropoff_time,
            venue_id = excluded.venue_id, qualifications = excluded.qualifications,
            status = excluded.status, stage = excluded.stage, stale = excluded.stale,
            cards_dirty = excluded.cards_dirty, overridden = excluded.overridden, rules = excluded.rules,
            pins = excluded.pins, vehicle_ids = excluded.vehicle_ids, required_staff = excluded.required_staff,
            route_minutes = excluded.route_minutes, revenue = excluded.revenue, staff_cost = excluded.staff_cost,
            admin_cost = excluded.admin_cost, profit_loss = excluded.profit_loss, margin = excluded.margin,
            shortfalls = excluded.shortfalls, updated_at = excluded.updated_at`,
		inst.ID, inst.ProgramID, inst.ProgramName, dateArg(inst.Date), string(inst.StartTime), string(inst.EndTime),
		string(inst.PickupTime), string(inst.DropoffTime), inst.VenueID, js[0], string(inst.Status), string(inst.Stage),
		boolInt(inst.Stale), boolInt(inst.CardsDirty), boolInt(inst.Overridden), js[1], js[2], js[3],
		inst.RequiredStaff, inst.RouteMinutes, f.Revenue, f.StaffCost, f.AdminCost, f.ProfitLoss, f.Margin,
		js[4], timestamp(inst.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert instance: %w", err)
	}
	return q.replaceChildren(ctx, inst)
}

func (q *queries) replaceChildren(ctx context.Context, inst model.Instance) error {
	for _, table := range []string{"participant_allocations", "staff_shifts", "vehicle_runs"} {
		if _, err := q.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE instance_id = ?`, inst.ID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	date := dateArg(inst.Date)
	for _, p := range inst.Participants {
		if _, err := q.db.ExecContext(ctx, `INSERT INTO participant_allocations
            (instance_id, participant_id, billing_code, hours, weight, needs_transport, wheelchair, status)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID, p.ParticipantID, p.BillingCode, p.Hours, p.Weight, boolInt(p.NeedsTransport),
			boolInt(p.Wheelchair), string(p.Status)); err != nil {
			return fmt.Errorf("insert participant allocation: %w", err)
		}
	}
	for _, s := range inst.Shifts {
		if _, err := q.db.ExecContext(ctx, `INSERT INTO staff_shifts
            (instance_id, instance_date, staff_id, role, start_time, end_time, pay_rate, pinned, status)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID, date, s.StaffID, string(s.Role), string(s.Start), string(s.End), s.PayRate,
			boolInt(s.Pinned), string(s.Status)); err != nil {
			return fmt.Errorf("insert staff shift: %w", err)
		}
	}
	for _, r := range inst.Runs {
		manifest, err := toJSON(r.Manifest)
		if err != nil {
			return err
		}
		if _, err := q.db.ExecContext(ctx, `INSERT INTO vehicle_runs
            (instance_id, instance_date, direction, sequence, vehicle_id, driver_id, start_time, end_time,
             manifest, estimated_minutes, status)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID, date, string(r.Direction), r.Sequence, r.VehicleID, r.DriverID, string(r.Start), string(r.End),
			manifest, r.EstimatedMinutes, string(r.Status)); err != nil {
			return fmt.Errorf("insert vehicle run: %w", err)
		}
	}
	return nil
}

func (q *queries) loadChildren(ctx context.Context, inst *model.Instance) error {
	rows, err := q.db.QueryContext(ctx, `SELECT participant_id, billing_code, hours, weight, needs_transport,
        wheelchair, status FROM participant_allocations WHERE instance_id = ? ORDER BY rowid`, inst.ID)
	if err != nil {
		return err
	}
	inst.Participants = nil
	for rows.Next() {
		var (
			p                     model.ParticipantAllocation
			transport, wheelchair int
			status                string
		)
		if err := rows.Scan(&p.ParticipantID, &p.BillingCode, &p.Hours, &p.Weight, &transport, &wheelchair, &status); err != nil {
			_ = rows.Close()
			return err
		}
		p.NeedsTransport, p.Wheelchair, p.Status = transport == 1, wheelchair == 1, model.AllocationStatus(status)
		inst.Participants = append(inst.Participants, p)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	rows, err = q.db.QueryContext(ctx, `SELECT staff_id, role, start_time, end_time, pay_rate, pinned, status
        FROM staff_shifts WHERE instance_id = ? ORDER BY rowid`, inst.ID)
	if err != nil {
		return err
	}
	inst.Shifts = nil
	for rows.Next() {
		var (
			s                         model.StaffShift
			role, start, end, status  string
			pinned                    int
		)
		if err := rows.Scan(&s.StaffID, &role, &start, &end, &s.PayRate, &pinned, &status); err != nil {
			_ = rows.Close()
			return err
		}
		s.Role, s.Start, s.End = model.ShiftRole(role), model.TimeOfDay(start), model.TimeOfDay(end)
		s.Pinned, s.Status = pinned == 1, model.AllocationStatus(status)
		inst.Shifts = append(inst.Shifts, s)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	rows, err = q.db.QueryContext(ctx, `SELECT direction, sequence, vehicle_id, driver_id, start_time, end_time,
        manifest, estimated_minutes, status FROM vehicle_runs WHERE instance_id = ?
        ORDER BY direction DESC, sequence`, inst.ID)
	if err != nil {
		return err
	}
	inst.Runs = nil
	for rows.Next() {
		var (
			r                                   model.VehicleRun
			dir, start, end, manifest, status   string
		)
		if err := rows.Scan(&dir, &r.Sequence, &r.VehicleID, &r.DriverID, &start, &end, &manifest, &r.EstimatedMinutes, &status); err != nil {
			_ = rows.Close()
			return err
		}
		r.Direction, r.Start, r.End, r.Status = model.Direction(dir), model.TimeOfDay(start), model.TimeOfDay(end), model.AllocationStatus(status)
		if err := fromJSON(manifest, &r.Manifest); err != nil {
			_ = rows.Close()
			return err
		}
		inst.Runs = append(inst.Runs, r)
	}
	return closeRows(rows)
}

type rowCloser interface {
	Err() error
	Close() error
}

func closeRows(rows rowCloser) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}

func (q *queries) DeleteInstance(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "instance", id)
}

func (q *queries) ListInstances(ctx context.Context, f store.InstanceFilter) ([]model.Instance, error) {
	var args []any
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE 1=1`
	if f.ProgramID != "" {
		query += ` AND program_id = ?`
		args = append(args, f.ProgramID)
	}
	if f.From != nil {
		query += ` AND instance_date >= ?`
		args = append(args, dateArg(*f.From))
	}
	if f.To != nil {
		query += ` AND instance_date < ?`
		args = append(args, dateArg(*f.To))
	}
	if f.Stale != nil {
		query += ` AND stale = ?`
		args = append(args, boolInt(*f.Stale))
	}
	if f.CardsDirty != nil {
		query += ` AND cards_dirty = ?`
		args = append(args, boolInt(*f.CardsDirty))
	}
	query += ` ORDER BY instance_date, program_id`
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []model.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		res = append(res, inst)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	for i := range res {
		if err := q.loadChildren(ctx, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (q *queries) MarkStale(ctx context.Context, programID string, iv model.Interval) (int, error) {
	query := `UPDATE instances SET stale = 1 WHERE program_id = ? AND status != 'finalised' AND instance_date >= ?`
	args := []any{programID, dateArg(iv.Start)}
	if iv.End != nil {
		query += ` AND instance_date < ?`
		args = append(args, dateArg(*iv.End))
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (q *queries) SetStage(ctx context.Context, id string, stage model.Stage, cardsDirty bool) error {
	res, err := q.db.ExecContext(ctx, `UPDATE instances SET stage = ?, cards_dirty = ? WHERE id = ?`,
		string(stage), boolInt(cardsDirty), id)
	if err != nil {
		return err
	}
	return mustAffect(res, "instance", id)
}

func (q *queries) SetStatus(ctx context.Context, id string, status model.InstanceStatus) error {
	res, err := q.db.ExecContext(ctx, `UPDATE instances SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	return mustAffect(res, "instance", id)
}

func (q *queries) StaffBookings(ctx context.Context, date time.Time, excludeInstanceID string) ([]store.Booking, error) {
	return q.bookings(ctx, `SELECT instance_id, staff_id, start_time, end_time FROM staff_shifts
        WHERE instance_date = ? AND instance_id != ? ORDER BY staff_id, start_time`, date, excludeInstanceID)
}

func (q *queries) VehicleBookings(ctx context.Context, date time.Time, excludeInstanceID string) ([]store.Booking, error) {
	return q.bookings(ctx, `SELECT instance_id, vehicle_id, start_time, end_time FROM vehicle_runs
        WHERE instance_date = ? AND instance_id != ? ORDER BY vehicle_id, start_time`, date, excludeInstanceID)
}

func (q *queries) bookings(ctx context.Context, query string, date time.Time, exclude string) ([]store.Booking, error) {
	rows, err := q.db.QueryContext(ctx, query, dateArg(date), exclude)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []store.Booking
	for rows.Next() {
		var (
			b          store.Booking
			start, end string
		)
		if err := rows.Scan(&b.InstanceID, &b.ResourceID, &start, &end); err != nil {
			return nil, err
		}
		b.Start, b.End = model.TimeOfDay(start), model.TimeOfDay(end)
		res = append(res, b)
	}
	return res, rows.Err()
}

func (q *queries) PruneInstances(ctx context.Context, iv model.Interval) (int, error) {
	query := `DELETE FROM instances WHERE status != 'finalised' AND instance_date >= ?`
	args := []any{dateArg(iv.Start)}
	if iv.End != nil {
		query += ` AND instance_date < ?`
		args = append(args, dateArg(*iv.End))
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanInstance(s scanner) (model.Instance, error) {
	var (
		inst                                  model.Instance
		date, start, end, pickup, dropoff     string
		quals, status, stage, rules, pins     string
		vehicles, shortfalls, updated         string
		stale, dirty, overridden              int
	)
	f := &inst.Financials
	if err := s.Scan(&inst.ID, &inst.ProgramID, &inst.ProgramName, &date, &start, &end, &pickup, &dropoff,
		&inst.VenueID, &quals, &status, &stage, &stale, &dirty, &overridden, &rules, &pins, &vehicles,
		&inst.RequiredStaff, &inst.RouteMinutes, &f.Revenue, &f.StaffCost, &f.AdminCost, &f.ProfitLoss, &f.Margin,
		&shortfalls, &updated); err != nil {
		return model.Instance{}, err
	}
	var err error
	if inst.Date, err = model.ParseDate(date); err != nil {
		return model.Instance{}, err
	}
	if inst.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return model.Instance{}, err
	}
	inst.StartTime, inst.EndTime = model.TimeOfDay(start), model.TimeOfDay(end)
	inst.PickupTime, inst.DropoffTime = model.TimeOfDay(pickup), model.TimeOfDay(dropoff)
	inst.Status, inst.Stage = model.InstanceStatus(status), model.Stage(stage)
	inst.Stale, inst.CardsDirty, inst.Overridden = stale == 1, dirty == 1, overridden == 1
	for _, c := range []struct {
		data string
		out  any
	}{
		{quals, &inst.Qualifications},
		{rules, &inst.Rules},
		{pins, &inst.Pins},
		{vehicles, &inst.VehicleIDs},
		{shortfalls, &inst.Shortfalls},
	} {
		if err := fromJSON(c.data, c.out); err != nil {
			return model.Instance{}, err
		}
	}
	return inst, nil
}
