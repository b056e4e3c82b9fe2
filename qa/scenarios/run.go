package scenarios

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/loom/core/allocation"
	"github.com/kilianp07/loom/core/cards"
	"github.com/kilianp07/loom/core/clock"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/roller"
	"github.com/kilianp07/loom/core/store"
	"github.com/kilianp07/loom/core/temporal"
	"github.com/kilianp07/loom/infra/logger"
	"github.com/kilianp07/loom/infra/metrics"
	"github.com/kilianp07/loom/infra/mqtt"
	"github.com/kilianp07/loom/infra/sqlite"
	"github.com/kilianp07/loom/internal/eventbus"
)

// RunScenario seeds a fresh store, applies the scenario's rules, rolls the
// window once and checks the outcome together with the metrics and MQTT
// notifications the roll produced.
func RunScenario(t *testing.T, sc *Scenario) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := sqlite.Open(filepath.Join(t.TempDir(), "loom.db"), sqlite.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()
	if _, err := sc.Catalog.Apply(ctx, s); err != nil {
		t.Fatalf("catalog: %v", err)
	}

	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}
	pub := mqtt.NewMockPublisher()
	notifier := mqtt.NewNotifier(pub, mqtt.Config{TopicPrefix: "loom"}, logger.NopLogger{})

	bus := eventbus.New()
	defer bus.Close()
	metrics.StartEventCollector(ctx, bus, sink, logger.NopLogger{})
	notifier.Start(ctx, bus)

	today, _ := model.ParseDate(sc.Today)
	c := clock.Fixed{At: today.Add(8 * time.Hour)}
	var cfg model.AllocationConfig
	cfg.SetDefaults()
	log := logger.NopLogger{}
	cs := cards.NewService(s, cfg, bus, log)
	r := roller.New(s, c, allocation.NewEngine(log), cs, bus, log, roller.Options{
		DefaultWeeks:   sc.WindowWeeks,
		RetainPastDays: 7,
		Allocation:     cfg,
	})
	rules := temporal.NewService(s, c, r, bus, log)

	rejected := 0
	for _, def := range sc.Intents {
		in, err := def.ToModel()
		if err != nil {
			t.Fatalf("intent: %v", err)
		}
		if _, err := rules.CreateIntent(ctx, in); err != nil {
			if !model.IsValidation(err) && !model.IsConflict(err) {
				t.Fatalf("create intent: %v", err)
			}
			rejected++
		}
	}
	for _, def := range sc.Exceptions {
		ex, err := def.ToModel()
		if err != nil {
			t.Fatalf("exception: %v", err)
		}
		if _, err := rules.CreateException(ctx, ex); err != nil {
			if !model.IsValidation(err) && !model.IsConflict(err) {
				t.Fatalf("create exception: %v", err)
			}
			rejected++
		}
	}

	report, err := r.RollForward(ctx, "scenario")
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	if report.Failed != 0 {
		t.Fatalf("roll failed on %d dates: %v", report.Failed, report.Err())
	}

	instances, err := r.Instances(ctx, "")
	if err != nil {
		t.Fatalf("instances: %v", err)
	}
	shortfalls := 0
	revenue := 0.0
	for _, inst := range instances {
		shortfalls += len(inst.Shortfalls)
		revenue += inst.Financials.Revenue
	}
	from, to := report.Window.Today, report.Window.End
	cardList, err := s.ListCards(ctx, store.CardFilter{From: &from, To: &to})
	if err != nil {
		t.Fatalf("cards: %v", err)
	}

	exp := sc.Expected
	if len(instances) != exp.Instances {
		t.Errorf("scenario %s expected %d instances, got %d", sc.Name, exp.Instances, len(instances))
	}
	if len(cardList) != exp.Cards {
		t.Errorf("scenario %s expected %d cards, got %d", sc.Name, exp.Cards, len(cardList))
	}
	if shortfalls != exp.Shortfalls {
		t.Errorf("scenario %s expected %d shortfalls, got %d", sc.Name, exp.Shortfalls, shortfalls)
	}
	if diff := revenue - exp.Revenue; diff > 0.01 || diff < -0.01 {
		t.Errorf("scenario %s expected revenue %.2f, got %.2f", sc.Name, exp.Revenue, revenue)
	}
	if rejected != exp.Rejected {
		t.Errorf("scenario %s expected %d rejected rules, got %d", sc.Name, exp.Rejected, rejected)
	}

	waitFor(t, func() bool {
		n, err := testutil.GatherAndCount(reg, "loom_rolls_total")
		return err == nil && n == 1
	})
	waitFor(t, func() bool {
		for _, m := range pub.Sent() {
			if m.Topic == notifier.RollTopic() {
				return true
			}
		}
		return false
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
