package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/loom/core/allocation"
	"github.com/kilianp07/loom/core/cards"
	"github.com/kilianp07/loom/core/clock"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/roller"
	"github.com/kilianp07/loom/core/temporal"
	"github.com/kilianp07/loom/infra/logger"
	"github.com/kilianp07/loom/infra/sqlite"
)

func day(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "loom.db"), sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.UpsertProgram(ctx, model.Program{
		ID:        "art",
		Name:      "Art",
		VenueID:   "hall",
		StartTime: "09:00",
		EndTime:   "12:00",
		Repeat:    model.RepeatPattern{Weekdays: []time.Weekday{time.Monday, time.Wednesday}},
		StartDate: day("2026-11-01"),
		Participants: []model.ProgramParticipant{
			{ParticipantID: "alice", BillingCode: "SUP01", Hours: 3},
			{ParticipantID: "bob", BillingCode: "SUP01", Hours: 3},
		},
		Active: true,
	}))
	require.NoError(t, s.UpsertParticipant(ctx, model.Participant{ID: "alice", Name: "Alice", Active: true}))
	require.NoError(t, s.UpsertParticipant(ctx, model.Participant{ID: "bob", Name: "Bob", Active: true}))
	require.NoError(t, s.UpsertParticipant(ctx, model.Participant{ID: "cara", Name: "Cara", Active: true}))
	require.NoError(t, s.UpsertStaff(ctx, model.Staff{ID: "sam", Name: "Sam", CanLead: true, Active: true}))
	require.NoError(t, s.UpsertVenue(ctx, model.Venue{ID: "hall", Name: "Town hall"}))
	require.NoError(t, s.UpsertBillingCode(ctx, model.BillingCode{Code: "SUP01", HourlyRate: 60}))

	c := clock.Fixed{At: day("2026-11-02").Add(8 * time.Hour)}
	var cfg model.AllocationConfig
	cfg.SetDefaults()
	log := logger.NopLogger{}
	cs := cards.NewService(s, cfg, nil, log)
	r := roller.New(s, c, allocation.NewEngine(log), cs, nil, log, roller.Options{DefaultWeeks: 1, RetainPastDays: 7, Allocation: cfg})
	rules := temporal.NewService(s, c, r, nil, log)

	srv := httptest.NewServer(NewRouter(rules, r, cs, log, 5*time.Second))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (int, map[string]any, []any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	if strings.HasPrefix(string(raw), "[") {
		var list []any
		require.NoError(t, json.Unmarshal(raw, &list))
		return resp.StatusCode, nil, list
	}
	var obj map[string]any
	require.NoError(t, json.Unmarshal(raw, &obj))
	return resp.StatusCode, obj, nil
}

func TestWindowRollAndInstances(t *testing.T) {
	srv := newTestServer(t)

	code, win, _ := do(t, srv, http.MethodGet, "/window", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2026-11-02", win["today"])
	assert.Equal(t, "2026-11-09", win["end"])
	assert.EqualValues(t, 1, win["weeks"])

	code, report, _ := do(t, srv, http.MethodPost, "/window/roll", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, report["processed"])
	assert.EqualValues(t, 0, report["failed"])

	code, _, list := do(t, srv, http.MethodGet, "/window/instances?program_id=art", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, "2026-11-02", first["date"])
	assert.EqualValues(t, 360, first["financials"].(map[string]any)["revenue"])

	code, _, cardList := do(t, srv, http.MethodGet, "/cards?date=2026-11-02", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, cardList, 3)

	code, _, staffCards := do(t, srv, http.MethodGet, "/cards/staff/sam", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, staffCards)

	code, body, _ := do(t, srv, http.MethodGet, "/cards", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "validation", body["error"])

	code, resized, _ := do(t, srv, http.MethodPut, "/window", map[string]int{"weeks": 2})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, resized["window"].(map[string]any)["weeks"])
	_, _, list = do(t, srv, http.MethodGet, "/window/instances", nil)
	assert.Len(t, list, 4)

	code, body, _ = do(t, srv, http.MethodPut, "/window", map[string]int{"weeks": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "validation", body["error"])

	code, regen, _ := do(t, srv, http.MethodPost, "/cards/regenerate", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, regen["regenerated"])
}

func TestIntentLifecycle(t *testing.T) {
	srv := newTestServer(t)
	_, _, _ = do(t, srv, http.MethodPost, "/window/roll", nil)
	add := map[string]any{
		"kind":           "ADD_PARTICIPANT",
		"program_id":     "art",
		"participant_id": "cara",
		"start_date":     "2026-11-02",
		"payload":        map[string]any{"billing_code": "SUP01", "hours": 3},
	}

	code, created, _ := do(t, srv, http.MethodPost, "/intents", add)
	require.Equal(t, http.StatusCreated, code)
	id := created["id"].(string)
	assert.NotEmpty(t, id)
	assert.Nil(t, created["end_date"])

	code, got, _ := do(t, srv, http.MethodGet, "/intents/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cara", got["participant_id"])

	_, _, list := do(t, srv, http.MethodGet, "/window/instances", nil)
	require.Len(t, list, 2)
	assert.Len(t, list[0].(map[string]any)["participants"], 3)

	code, conflict, _ := do(t, srv, http.MethodPost, "/intents", add)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", conflict["error"])
	assert.Equal(t, id, conflict["existing_id"])

	code, updated, _ := do(t, srv, http.MethodPut, "/intents/"+id, map[string]any{"end_date": "2026-11-04"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2026-11-04", updated["end_date"])
	_, _, list = do(t, srv, http.MethodGet, "/window/instances", nil)
	assert.Len(t, list[1].(map[string]any)["participants"], 2)

	code, _, intents := do(t, srv, http.MethodGet, "/intents?program_id=art&kind=ADD_PARTICIPANT", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, intents, 1)

	code, deleted, _ := do(t, srv, http.MethodDelete, "/intents/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, deleted["deleted"])

	code, missing, _ := do(t, srv, http.MethodGet, "/intents/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", missing["error"])
}

func TestIntentValidation(t *testing.T) {
	srv := newTestServer(t)

	code, body, _ := do(t, srv, http.MethodPost, "/intents", map[string]any{
		"kind":       "ADD_PARTICIPANT",
		"program_id": "art",
		"start_date": "2026-10-01",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "validation", body["error"])
	fields := body["fields"].([]any)
	var names []string
	for _, f := range fields {
		names = append(names, f.(map[string]any)["field"].(string))
	}
	assert.Contains(t, names, "start_date")

	code, body, _ = do(t, srv, http.MethodPost, "/intents", map[string]any{"kind": "TELEPORT", "start_date": "soon"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Len(t, body["fields"], 2)

	code, body, _ = do(t, srv, http.MethodPost, "/intents", map[string]any{"unknown": true})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "body", body["fields"].([]any)[0].(map[string]any)["field"])

	code, _, _ = do(t, srv, http.MethodGet, "/intents?kind=TELEPORT", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestModifyTimeRejectsOneSidedInversion(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]any{
		"kind":       "MODIFY_TIME",
		"program_id": "art",
		"start_date": "2026-11-02",
		"payload":    map[string]any{"start_time": "13:00"},
	}
	code, resp, _ := do(t, srv, http.MethodPost, "/intents", body)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "payload.start_time", resp["fields"].([]any)[0].(map[string]any)["field"])

	body["participant_id"] = "alice"
	body["payload"] = map[string]any{"start_time": "10:00"}
	code, resp, _ = do(t, srv, http.MethodPost, "/intents", body)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "participant_id", resp["fields"].([]any)[0].(map[string]any)["field"])

	delete(body, "participant_id")
	code, _, _ = do(t, srv, http.MethodPost, "/intents", body)
	assert.Equal(t, http.StatusCreated, code)
}

func TestExceptionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	_, _, _ = do(t, srv, http.MethodPost, "/window/roll", nil)

	code, created, _ := do(t, srv, http.MethodPost, "/exceptions", map[string]any{
		"kind":       "PROGRAM_CANCELLATION",
		"program_id": "art",
		"date":       "2026-11-04",
		"details":    map[string]any{"reason": "venue flooded"},
	})
	require.Equal(t, http.StatusCreated, code)
	id := created["id"].(string)
	assert.Equal(t, "2026-11-04", created["date"])

	_, _, list := do(t, srv, http.MethodGet, "/window/instances", nil)
	assert.Len(t, list, 1)
	_, _, cardList := do(t, srv, http.MethodGet, "/cards?date=2026-11-04", nil)
	assert.Empty(t, cardList)

	code, _, exceptions := do(t, srv, http.MethodGet, "/exceptions?program_id=art&from=2026-11-01&to=2026-11-09", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, exceptions, 1)

	code, _, _ = do(t, srv, http.MethodDelete, "/exceptions/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	_, _, list = do(t, srv, http.MethodGet, "/window/instances", nil)
	assert.Len(t, list, 2)

	code, _, _ = do(t, srv, http.MethodGet, "/exceptions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _, _ = do(t, srv, http.MethodPost, "/exceptions", map[string]any{"kind": "PROGRAM_CANCELLATION", "program_id": "art", "date": "4 Nov"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestReoptimizeAndStatus(t *testing.T) {
	srv := newTestServer(t)
	_, _, _ = do(t, srv, http.MethodPost, "/window/roll", nil)
	_, _, list := do(t, srv, http.MethodGet, "/window/instances", nil)
	require.NotEmpty(t, list)
	id := list[0].(map[string]any)["id"].(string)

	code, inst, _ := do(t, srv, http.MethodPost, "/instances/"+id+"/reoptimize", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, inst["id"])

	code, _, _ = do(t, srv, http.MethodPut, "/instances/"+id+"/status", map[string]string{"status": "finalised"})
	require.Equal(t, http.StatusOK, code)

	code, body, _ := do(t, srv, http.MethodPost, "/instances/"+id+"/reoptimize", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", body["error"])

	code, _, _ = do(t, srv, http.MethodPost, "/instances/missing/reoptimize", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

// windowSurface names the embedded interface so it does not collide with
// brokenWindow's Window method.
type windowSurface = Window

type brokenWindow struct{ windowSurface }

func (brokenWindow) Window(context.Context) (model.WindowContext, error) {
	return model.WindowContext{}, &model.SystemError{Op: "read settings", Err: errors.New("disk I/O error"), Retryable: true}
}

func TestSystemErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(NewRouter(nil, brokenWindow{}, nil, logger.NopLogger{}, 0))
	defer srv.Close()

	code, body, _ := do(t, srv, http.MethodGet, "/window", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "system", body["error"])
	assert.Equal(t, true, body["retryable"])
}
