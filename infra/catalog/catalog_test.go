package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/infra/sqlite"
)

const doc = `
billing_codes:
  - code: SUP01
    description: Community participation
    hourly_rate: 60
venues:
  - id: hall
    name: Town hall
    location: {lat: -33.87, lng: 151.21}
participants:
  - id: alice
    name: Alice
    needs_transport: true
    location: {lat: -33.88, lng: 151.2}
  - id: bob
    name: Bob
    supervision_weight: 2
staff:
  - id: sam
    name: Sam
    classification_level: 2
    can_lead: true
    can_drive: true
    availability:
      - {weekday: mon, start: "08:00", end: "16:00"}
vehicles:
  - id: van1
    name: Van 1
    seats: 8
programs:
  - id: art
    name: Art
    venue_id: hall
    start_time: "09:00"
    end_time: "12:00"
    pickup_time: "08:15"
    weekdays: [Monday, wed]
    start_date: "2026-11-01"
    end_date: "2027-01-01"
    participants:
      - {participant_id: alice, billing_code: SUP01, hours: 3}
    vehicle_ids: [van1]
`

func TestParseAndApply(t *testing.T) {
	c, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"art"}, c.ProgramIDs())

	s, err := sqlite.Open(filepath.Join(t.TempDir(), "loom.db"), sqlite.Options{})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	n, err := c.Apply(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, Counts{BillingCodes: 1, Venues: 1, Participants: 2, Staff: 1, Vehicles: 1, Programs: 1}, n)

	p, err := s.GetProgram(ctx, "art")
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, p.Repeat.Weekdays)
	assert.True(t, p.Active)
	require.NotNil(t, p.EndDate)
	assert.Equal(t, "2027-01-01", model.FormatDate(*p.EndDate))
	assert.Equal(t, model.TimeOfDay("08:15"), p.PickupTime)

	st, err := s.GetStaff(ctx, "sam")
	require.NoError(t, err)
	require.Len(t, st.Availability, 1)
	assert.Equal(t, time.Monday, st.Availability[0].Weekday)

	bob, err := s.GetParticipant(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2.0, bob.Weight())
}

func TestApplyRejectsBadRows(t *testing.T) {
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "loom.db"), sqlite.Options{})
	require.NoError(t, err)
	defer s.Close()

	cases := map[string]string{
		"weekday": "programs:\n  - {id: p, start_time: \"09:00\", end_time: \"10:00\", start_date: \"2026-11-01\", weekdays: [funday]}\n",
		"date":    "programs:\n  - {id: p, start_time: \"09:00\", end_time: \"10:00\", start_date: \"tomorrow\"}\n",
		"time":    "programs:\n  - {id: p, start_time: \"9am\", end_time: \"10:00\", start_date: \"2026-11-01\"}\n",
		"seats":   "vehicles:\n  - {id: v, seats: 0}\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			c, err := Parse([]byte(data))
			require.NoError(t, err)
			_, err = c.Apply(context.Background(), s)
			assert.Error(t, err)
		})
	}
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{"sun": time.Sunday, "Friday": time.Friday, " SAT ": time.Saturday} {
		got, err := ParseWeekday(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseWeekday("someday")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
