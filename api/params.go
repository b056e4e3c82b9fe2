package api

import (
	"net/http"
	"time"

	"github.com/kilianp07/loom/core/model"
)

func parseDate(field, value string) (time.Time, error) {
	d, err := model.ParseDate(value)
	if err != nil {
		return time.Time{}, invalid(field, "expected YYYY-MM-DD, got %q", value)
	}
	return d, nil
}

// queryDate parses an optional date query parameter.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := parseDate(name, raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// queryRange reads from/to, defaulting to the current window. to is
// exclusive.
func (s *Server) queryRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := queryDate(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := queryDate(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from == nil || to == nil {
		w, err := s.window.Window(r.Context())
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if from == nil {
			from = &w.Today
		}
		if to == nil {
			to = &w.End
		}
	}
	if !to.After(*from) {
		return time.Time{}, time.Time{}, invalid("to", "must be after from")
	}
	return *from, *to, nil
}
