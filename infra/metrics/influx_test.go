package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/loom/core/metrics"
	"github.com/kilianp07/loom/core/model"
)

type lineServer struct {
	mu     sync.Mutex
	bodies []string
	srv    *httptest.Server
}

func newLineServer(t *testing.T) *lineServer {
	t.Helper()
	ls := &lineServer{}
	ls.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		ls.mu.Lock()
		ls.bodies = append(ls.bodies, strings.TrimSpace(string(b)))
		ls.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ls.srv.Close)
	return ls
}

func (ls *lineServer) lines() []string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return append([]string(nil), ls.bodies...)
}

func line(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordRoll(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.RollEvent{
		Trigger:    "scheduled",
		Weeks:      4,
		Processed:  12,
		Skipped:    3,
		Failed:     1,
		Duration:   1500 * time.Millisecond,
		Revenue:    1080,
		MeanMargin: 0.1234,
		Time:       now,
	}
	if err := sink.RecordRoll(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("roll").
		AddTag("trigger", "scheduled").
		AddTag("component", "roller").
		AddField("weeks", 4).
		AddField("processed", 12).
		AddField("skipped", 3).
		AddField("removed", 0).
		AddField("failed", 1).
		AddField("pruned", 0).
		AddField("duration_ms", 1500.0).
		AddField("revenue", 1080.0).
		AddField("mean_margin", 0.123).
		AddField("margin_stddev", 0.0).
		SetTime(now)
	got := ls.lines()
	if len(got) != 1 || got[0] != line(p) {
		t.Errorf("unexpected bodies: %#v", got)
	}
}

func TestInfluxSink_RecordInstance(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	date := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	fin := model.Financials{Revenue: 150, StaffCost: 105, AdminCost: 27, ProfitLoss: 18, Margin: 0.12}

	if err := sink.RecordInstance(coremetrics.InstanceEvent{InstanceID: "i1", ProgramID: "art", Date: date, Outcome: "skipped", Time: now}); err != nil {
		t.Fatalf("record skipped: %v", err)
	}
	if err := sink.RecordInstance(coremetrics.InstanceEvent{InstanceID: "i1", ProgramID: "art", Date: date, Outcome: "processed", Financials: fin, Time: now}); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("instance_financials").
		AddTag("program_id", "art").
		AddTag("instance_id", "i1").
		AddTag("date", "2026-11-02").
		AddField("revenue", 150.0).
		AddField("staff_cost", 105.0).
		AddField("admin_cost", 27.0).
		AddField("profit_loss", 18.0).
		AddField("margin", 0.12).
		SetTime(now)
	got := ls.lines()
	if len(got) != 1 || got[0] != line(p) {
		t.Errorf("unexpected bodies: %#v", got)
	}
}

func TestInfluxSink_RecordShortfallAndCards(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	date := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)

	if err := sink.RecordShortfall(coremetrics.ShortfallEvent{InstanceID: "i1", ProgramID: "art", Date: date, Resource: model.ResourceStaff, Required: 3, Assigned: 1, Time: now}); err != nil {
		t.Fatalf("record shortfall: %v", err)
	}
	counts := map[model.CardType]int{model.CardMaster: 1, model.CardActivity: 1, model.CardRoster: 2}
	if err := sink.RecordCards(coremetrics.CardsEvent{InstanceID: "i1", ProgramID: "art", Counts: counts, Time: now}); err != nil {
		t.Fatalf("record cards: %v", err)
	}

	short := write.NewPointWithMeasurement("shortfall").
		AddTag("program_id", "art").
		AddTag("instance_id", "i1").
		AddTag("resource", "staff").
		AddTag("date", "2026-11-02").
		AddField("required", 3).
		AddField("assigned", 1).
		SetTime(now)
	cards := write.NewPointWithMeasurement("cards_generated").
		AddTag("program_id", "art").
		AddTag("instance_id", "i1").
		AddField("activity", 1).
		AddField("master", 1).
		AddField("roster", 2).
		AddField("total", 4).
		SetTime(now)
	got := ls.lines()
	if len(got) != 2 || got[0] != line(short) || got[1] != line(cards) {
		t.Errorf("unexpected bodies: %#v", got)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()
	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
