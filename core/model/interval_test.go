package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func d(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func dp(s string) *time.Time {
	t := d(s)
	return &t
}

func TestIntervalOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"open ended overlaps bounded", NewInterval(d("2025-01-01"), dp("2025-03-01")), NewInterval(d("2025-02-01"), nil), true},
		{"adjacent ranges do not overlap", NewInterval(d("2025-01-01"), dp("2025-02-01")), NewInterval(d("2025-02-01"), dp("2025-03-01")), false},
		{"disjoint", NewInterval(d("2025-01-01"), dp("2025-01-10")), NewInterval(d("2025-02-01"), nil), false},
		{"both open", NewInterval(d("2025-01-01"), nil), NewInterval(d("2030-01-01"), nil), true},
		{"contained", NewInterval(d("2025-01-01"), dp("2025-12-31")), NewInterval(d("2025-06-01"), dp("2025-06-02")), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Overlaps(tc.b))
			assert.Equal(t, tc.want, tc.b.Overlaps(tc.a))
		})
	}
}

func TestIntervalIntersectAndHull(t *testing.T) {
	a := NewInterval(d("2025-01-01"), dp("2025-03-01"))
	b := NewInterval(d("2025-02-01"), nil)
	got, ok := a.Intersect(b)
	assert.True(t, ok)
	assert.Equal(t, d("2025-02-01"), got.Start)
	assert.Equal(t, d("2025-03-01"), *got.End)

	h := a.Hull(b)
	assert.Equal(t, d("2025-01-01"), h.Start)
	assert.Nil(t, h.End)

	_, ok = NewInterval(d("2025-01-01"), dp("2025-01-02")).Intersect(NewInterval(d("2025-01-02"), nil))
	assert.False(t, ok)
}

func TestWindowContextClip(t *testing.T) {
	w := NewWindowContext(time.Date(2025, 1, 6, 15, 30, 0, 0, time.UTC), 2)
	assert.Equal(t, d("2025-01-20"), w.End)
	assert.Len(t, w.Dates(), 14)
	assert.True(t, w.Contains(d("2025-01-19")))
	assert.False(t, w.Contains(d("2025-01-20")))

	clipped, ok := w.Clip(NewInterval(d("2024-12-01"), nil))
	assert.True(t, ok)
	assert.Equal(t, w.Today, clipped.Start)
	assert.Equal(t, w.End, *clipped.End)
}

func TestTimeOfDay(t *testing.T) {
	m, err := TimeOfDay("09:30").Minutes()
	assert.NoError(t, err)
	assert.Equal(t, 570, m)
	assert.False(t, TimeOfDay("25:00").Valid())
	assert.Equal(t, TimeOfDay("00:00"), ClockAt(-15))
	assert.Equal(t, TimeOfDay("08:05"), ClockAt(485))
	assert.Equal(t, 3*time.Hour, Span("09:00", "12:00"))
	assert.Equal(t, time.Duration(0), Span("12:00", "09:00"))
}
