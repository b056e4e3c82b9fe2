package sqlite

import (
	"context"
	"database/sql"

	"github.com/kilianp07/loom/core/model"
)

const programColumns = `id, name, venue_id, start_time, end_time, pickup_time, dropoff_time, repeat,
    start_date, end_date, participants, staff_ids, vehicle_ids, qualifications, active, source_intent_id`

func (q *queries) GetProgram(ctx context.Context, id string) (model.Program, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+programColumns+` FROM programs WHERE id = ?`, id)
	p, err := scanProgram(row)
	if err != nil {
		return model.Program{}, notFound(err, "program", id)
	}
	return p, nil
}

func (q *queries) ListPrograms(ctx context.Context, activeOnly bool) ([]model.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY id`
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (q *queries) UpsertProgram(ctx context.Context, p model.Program) error {
	js, err := jsonArgs(p.Repeat, p.Participants, p.StaffIDs, p.VehicleIDs, p.Qualifications)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `INSERT INTO programs (`+programColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, venue_id = excluded.venue_id,
            start_time = excluded.start_time, end_time = excluded.end_time,
            pickup_time = excluded.pickup_time, dropoff_time = excluded.dropoff_time,
            repeat = excluded.repeat, start_date = excluded.start_date, end_date = excluded.end_date,
            participants = excluded.participants, staff_ids = excluded.staff_ids,
            vehicle_ids = excluded.vehicle_ids, qualifications = excluded.qualifications,
            active = excluded.active, source_intent_id = excluded.source_intent_id`,
		p.ID, p.Name, p.VenueID, string(p.StartTime), string(p.EndTime), string(p.PickupTime), string(p.DropoffTime),
		js[0], dateArg(p.StartDate), nullDate(p.EndDate), js[1], js[2], js[3], js[4], boolInt(p.Active), p.SourceIntentID)
	return err
}

func scanProgram(s scanner) (model.Program, error) {
	var (
		p                                    model.Program
		start, end, pickup, dropoff          string
		repeat, startDate                    string
		endDate                              sql.NullString
		participants, staff, vehicles, quals string
		active                               int
	)
	if err := s.Scan(&p.ID, &p.Name, &p.VenueID, &start, &end, &pickup, &dropoff, &repeat,
		&startDate, &endDate, &participants, &staff, &vehicles, &quals, &active, &p.SourceIntentID); err != nil {
		return model.Program{}, err
	}
	p.StartTime, p.EndTime = model.TimeOfDay(start), model.TimeOfDay(end)
	p.PickupTime, p.DropoffTime = model.TimeOfDay(pickup), model.TimeOfDay(dropoff)
	p.Active = active == 1
	var err error
	if p.StartDate, err = model.ParseDate(startDate); err != nil {
		return model.Program{}, err
	}
	if p.EndDate, err = scanNullDate(endDate); err != nil {
		return model.Program{}, err
	}
	for _, c := range []struct {
		data string
		out  any
	}{
		{repeat, &p.Repeat},
		{participants, &p.Participants},
		{staff, &p.StaffIDs},
		{vehicles, &p.VehicleIDs},
		{quals, &p.Qualifications},
	} {
		if err := fromJSON(c.data, c.out); err != nil {
			return model.Program{}, err
		}
	}
	return p, nil
}

const participantColumns = `id, name, supervision_weight, wheelchair, needs_transport, lat, lng, default_billing_code, active`

func (q *queries) GetParticipant(ctx context.Context, id string) (model.Participant, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = ?`, id)
	p, err := scanParticipant(row)
	if err != nil {
		return model.Participant{}, notFound(err, "participant", id)
	}
	return p, nil
}

func (q *queries) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+participantColumns+` FROM participants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (q *queries) UpsertParticipant(ctx context.Context, p model.Participant) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO participants (`+participantColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, supervision_weight = excluded.supervision_weight,
            wheelchair = excluded.wheelchair, needs_transport = excluded.needs_transport,
            lat = excluded.lat, lng = excluded.lng, default_billing_code = excluded.default_billing_code,
            active = excluded.active`,
		p.ID, p.Name, p.Weight(), boolInt(p.Wheelchair), boolInt(p.NeedsTransport),
		p.Location.Lat, p.Location.Lng, p.DefaultBillingCode, boolInt(p.Active))
	return err
}

func scanParticipant(s scanner) (model.Participant, error) {
	var (
		p                          model.Participant
		wheelchair, transport, act int
	)
	if err := s.Scan(&p.ID, &p.Name, &p.SupervisionWeight, &wheelchair, &transport,
		&p.Location.Lat, &p.Location.Lng, &p.DefaultBillingCode, &act); err != nil {
		return model.Participant{}, err
	}
	p.Wheelchair, p.NeedsTransport, p.Active = wheelchair == 1, transport == 1, act == 1
	return p, nil
}

const staffColumns = `id, name, classification_level, hourly_rate, qualifications, can_lead, can_drive, availability, active`

func (q *queries) GetStaff(ctx context.Context, id string) (model.Staff, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = ?`, id)
	s, err := scanStaff(row)
	if err != nil {
		return model.Staff{}, notFound(err, "staff", id)
	}
	return s, nil
}

func (q *queries) ListStaff(ctx context.Context) ([]model.Staff, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+staffColumns+` FROM staff ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (q *queries) UpsertStaff(ctx context.Context, s model.Staff) error {
	js, err := jsonArgs(s.Qualifications, s.Availability)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `INSERT INTO staff (`+staffColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, classification_level = excluded.classification_level,
            hourly_rate = excluded.hourly_rate, qualifications = excluded.qualifications,
            can_lead = excluded.can_lead, can_drive = excluded.can_drive,
            availability = excluded.availability, active = excluded.active`,
		s.ID, s.Name, s.ClassificationLevel, s.HourlyRate, js[0], boolInt(s.CanLead), boolInt(s.CanDrive), js[1], boolInt(s.Active))
	return err
}

func scanStaff(sc scanner) (model.Staff, error) {
	var (
		s                   model.Staff
		quals, avail        string
		lead, drive, active int
	)
	if err := sc.Scan(&s.ID, &s.Name, &s.ClassificationLevel, &s.HourlyRate, &quals, &lead, &drive, &avail, &active); err != nil {
		return model.Staff{}, err
	}
	s.CanLead, s.CanDrive, s.Active = lead == 1, drive == 1, active == 1
	if err := fromJSON(quals, &s.Qualifications); err != nil {
		return model.Staff{}, err
	}
	if err := fromJSON(avail, &s.Availability); err != nil {
		return model.Staff{}, err
	}
	return s, nil
}

func (q *queries) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	var (
		v      model.Vehicle
		active int
	)
	err := q.db.QueryRowContext(ctx, `SELECT id, name, seats, wheelchair_spaces, active FROM vehicles WHERE id = ?`, id).
		Scan(&v.ID, &v.Name, &v.Seats, &v.WheelchairSpaces, &active)
	if err != nil {
		return model.Vehicle{}, notFound(err, "vehicle", id)
	}
	v.Active = active == 1
	return v, nil
}

func (q *queries) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, name, seats, wheelchair_spaces, active FROM vehicles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Vehicle
	for rows.Next() {
		var (
			v      model.Vehicle
			active int
		)
		if err := rows.Scan(&v.ID, &v.Name, &v.Seats, &v.WheelchairSpaces, &active); err != nil {
			return nil, err
		}
		v.Active = active == 1
		res = append(res, v)
	}
	return res, rows.Err()
}

func (q *queries) UpsertVehicle(ctx context.Context, v model.Vehicle) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO vehicles (id, name, seats, wheelchair_spaces, active)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, seats = excluded.seats,
            wheelchair_spaces = excluded.wheelchair_spaces, active = excluded.active`,
		v.ID, v.Name, v.Seats, v.WheelchairSpaces, boolInt(v.Active))
	return err
}

func (q *queries) GetVenue(ctx context.Context, id string) (model.Venue, error) {
	var v model.Venue
	err := q.db.QueryRowContext(ctx, `SELECT id, name, address, lat, lng FROM venues WHERE id = ?`, id).
		Scan(&v.ID, &v.Name, &v.Address, &v.Location.Lat, &v.Location.Lng)
	if err != nil {
		return model.Venue{}, notFound(err, "venue", id)
	}
	return v, nil
}

func (q *queries) UpsertVenue(ctx context.Context, v model.Venue) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO venues (id, name, address, lat, lng) VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, address = excluded.address,
            lat = excluded.lat, lng = excluded.lng`,
		v.ID, v.Name, v.Address, v.Location.Lat, v.Location.Lng)
	return err
}

func (q *queries) GetBillingCode(ctx context.Context, code string) (model.BillingCode, error) {
	var b model.BillingCode
	err := q.db.QueryRowContext(ctx, `SELECT code, description, hourly_rate FROM billing_codes WHERE code = ?`, code).
		Scan(&b.Code, &b.Description, &b.HourlyRate)
	if err != nil {
		return model.BillingCode{}, notFound(err, "billing code", code)
	}
	return b, nil
}

func (q *queries) UpsertBillingCode(ctx context.Context, b model.BillingCode) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO billing_codes (code, description, hourly_rate) VALUES (?, ?, ?)
        ON CONFLICT(code) DO UPDATE SET description = excluded.description, hourly_rate = excluded.hourly_rate`,
		b.Code, b.Description, b.HourlyRate)
	return err
}
