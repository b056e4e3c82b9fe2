package allocation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
)

// CalculateStaffRequirement returns ceil(sum(weights) / ratio) over the
// attending participants.
func CalculateStaffRequirement(participants []model.ParticipantAllocation, cfg model.AllocationConfig) int {
	weights := make([]float64, 0, len(participants))
	for _, p := range participants {
		if !p.Attending() {
			continue
		}
		w := p.Weight
		if w <= 0 {
			w = 1
		}
		weights = append(weights, w)
	}
	if len(weights) == 0 {
		return 0
	}
	ratio := cfg.StaffRatio
	if ratio <= 0 {
		ratio = 4
	}
	// Tolerance keeps exact multiples such as 8/4 from rounding up.
	return int(math.Ceil(floats.Sum(weights)/ratio - 1e-9))
}

// StaffRanker orders eligible staff using a weighted greedy score. Pinned
// staff dominate, then lead capability, cost and the day's existing load.
type StaffRanker struct {
	PinWeight      float64
	LeadWeight     float64
	DriverWeight   float64
	CostWeight     float64
	FairnessWeight float64
}

// NewStaffRanker returns a ranker with sensible default weights.
func NewStaffRanker() StaffRanker {
	return StaffRanker{
		PinWeight:      10,
		LeadWeight:     0.5,
		DriverWeight:   0.2,
		CostWeight:     0.3,
		FairnessWeight: 0.2,
	}
}

type candidate struct {
	staff model.Staff
	pin   *model.StaffPin
	rate  float64
	score float64
}

// ShiftWindow returns the minutes a staff member is needed for, covering
// transport legs when the instance has pickup or dropoff times.
func ShiftWindow(inst model.Instance) (int, int, error) {
	start, err := inst.StartTime.Minutes()
	if err != nil {
		return 0, 0, fmt.Errorf("start time: %w", err)
	}
	end, err := inst.EndTime.Minutes()
	if err != nil {
		return 0, 0, fmt.Errorf("end time: %w", err)
	}
	if m, err := inst.PickupTime.Minutes(); err == nil && m < start {
		start = m
	}
	if m, err := inst.DropoffTime.Minutes(); err == nil && m > end {
		end = m
	}
	return start, end, nil
}

func overlaps(aStart, aEnd int, b store.Booking) bool {
	bs, err := b.Start.Minutes()
	if err != nil {
		return false
	}
	be, err := b.End.Minutes()
	if err != nil {
		return false
	}
	return aStart < be && bs < aEnd
}

func bookedMinutes(bookings []store.Booking) map[string]int {
	out := make(map[string]int)
	for _, b := range bookings {
		out[b.ResourceID] += int(model.Span(b.Start, b.End).Minutes())
	}
	return out
}

// eligible applies the hard constraints: active, qualified, available and
// not double-booked on the same date.
func eligible(s model.Staff, inst model.Instance, start, end int, bookings []store.Booking) bool {
	if !s.Active || !s.HasQualifications(inst.Qualifications) {
		return false
	}
	if !s.AvailableFor(inst.Date.Weekday(), start, end) {
		return false
	}
	for _, b := range bookings {
		if b.ResourceID == s.ID && overlaps(start, end, b) {
			return false
		}
	}
	return true
}

func (r StaffRanker) rank(inst model.Instance, pool []model.Staff, bookings []store.Booking, cfg model.AllocationConfig, start, end int) []candidate {
	pins := make(map[string]*model.StaffPin, len(inst.Pins))
	for i := range inst.Pins {
		pins[inst.Pins[i].StaffID] = &inst.Pins[i]
	}
	load := bookedMinutes(bookings)
	needsDriver := false
	for _, p := range inst.Attending() {
		if p.NeedsTransport {
			needsDriver = true
			break
		}
	}

	var list []candidate
	maxRate := 0.0
	for _, s := range pool {
		if !eligible(s, inst, start, end, bookings) {
			continue
		}
		c := candidate{staff: s, pin: pins[s.ID], rate: cfg.PayRate(s)}
		maxRate = math.Max(maxRate, c.rate)
		list = append(list, c)
	}
	for i := range list {
		c := &list[i]
		score := 0.0
		if c.pin != nil {
			score += r.PinWeight
		}
		if c.staff.CanLead {
			score += r.LeadWeight
		}
		if needsDriver && c.staff.CanDrive {
			score += r.DriverWeight
		}
		if maxRate > 0 {
			score -= c.rate / maxRate * r.CostWeight
		}
		score -= math.Min(float64(load[c.staff.ID])/480, 1) * r.FairnessWeight
		c.score = score
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].staff.ID < list[j].staff.ID
	})
	return list
}

// Assign picks the minimum set of eligible staff for inst. Fixed pins are
// always placed; everyone else fills up to required. A shortfall is returned
// as a warning alongside the partial result.
func (r StaffRanker) Assign(inst model.Instance, pool []model.Staff, bookings []store.Booking, required int, cfg model.AllocationConfig) ([]model.StaffShift, *model.ShortfallWarning, error) {
	start, end, err := ShiftWindow(inst)
	if err != nil {
		return nil, nil, err
	}
	ranked := r.rank(inst, pool, bookings, cfg, start, end)

	var chosen []candidate
	taken := make(map[string]bool)
	for _, c := range ranked {
		if c.pin != nil && c.pin.Strategy != model.StrategyPreferred {
			chosen = append(chosen, c)
			taken[c.staff.ID] = true
		}
	}
	for _, c := range ranked {
		if len(chosen) >= required {
			break
		}
		if taken[c.staff.ID] {
			continue
		}
		chosen = append(chosen, c)
		taken[c.staff.ID] = true
	}

	lead := -1
	for i, c := range chosen {
		if c.pin != nil && c.pin.Role == model.RoleLead {
			lead = i
			break
		}
	}
	if lead < 0 {
		for i, c := range chosen {
			if c.staff.CanLead {
				lead = i
				break
			}
		}
	}
	if lead < 0 && len(chosen) > 0 {
		lead = 0
	}

	shifts := make([]model.StaffShift, 0, len(chosen))
	order := make([]int, 0, len(chosen))
	if lead >= 0 {
		order = append(order, lead)
	}
	for i := range chosen {
		if i != lead {
			order = append(order, i)
		}
	}
	for n, i := range order {
		c := chosen[i]
		role := model.RoleSupport
		if n == 0 {
			role = model.RoleLead
		}
		shifts = append(shifts, model.StaffShift{
			StaffID: c.staff.ID,
			Role:    role,
			Start:   model.ClockAt(start),
			End:     model.ClockAt(end),
			PayRate: c.rate,
			Pinned:  c.pin != nil,
			Status:  model.AllocationPlanned,
		})
	}

	if len(shifts) < required {
		return shifts, &model.ShortfallWarning{
			Resource: model.ResourceStaff,
			Required: required,
			Assigned: len(shifts),
			Detail:   fmt.Sprintf("%d eligible of %d staff", len(ranked), len(pool)),
		}, nil
	}
	return shifts, nil, nil
}

// AssignStaffToInstance assigns staff with the default ranker, deriving the
// requirement from the instance's attending participants.
func AssignStaffToInstance(inst model.Instance, pool []model.Staff, bookings []store.Booking, cfg model.AllocationConfig) ([]model.StaffShift, *model.ShortfallWarning, error) {
	required := CalculateStaffRequirement(inst.Participants, cfg)
	return NewStaffRanker().Assign(inst, pool, bookings, required, cfg)
}
