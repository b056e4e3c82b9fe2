package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/loom/core/metrics"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/infra/logger"
)

// InfluxSink writes scheduling events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRoll writes the roll summary.
func (s *InfluxSink) RecordRoll(ev coremetrics.RollEvent) error {
	p := write.NewPointWithMeasurement("roll").
		AddTag("trigger", ev.Trigger).
		AddTag("component", "roller").
		AddField("weeks", ev.Weeks).
		AddField("processed", ev.Processed).
		AddField("skipped", ev.Skipped).
		AddField("removed", ev.Removed).
		AddField("failed", ev.Failed).
		AddField("pruned", ev.Pruned).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		AddField("revenue", round3(ev.Revenue)).
		AddField("mean_margin", round3(ev.MeanMargin)).
		AddField("margin_stddev", round3(ev.MarginStdDev)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordInstance writes the financials of a processed instance. Other
// outcomes carry no financials and are not written.
func (s *InfluxSink) RecordInstance(ev coremetrics.InstanceEvent) error {
	if ev.Outcome != "processed" {
		return nil
	}
	f := ev.Financials
	p := write.NewPointWithMeasurement("instance_financials").
		AddTag("program_id", ev.ProgramID).
		AddTag("instance_id", ev.InstanceID).
		AddTag("date", model.FormatDate(ev.Date)).
		AddField("revenue", round3(f.Revenue)).
		AddField("staff_cost", round3(f.StaffCost)).
		AddField("admin_cost", round3(f.AdminCost)).
		AddField("profit_loss", round3(f.ProfitLoss)).
		AddField("margin", round3(f.Margin)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordShortfall writes a shortfall warning.
func (s *InfluxSink) RecordShortfall(ev coremetrics.ShortfallEvent) error {
	p := write.NewPointWithMeasurement("shortfall").
		AddTag("program_id", ev.ProgramID).
		AddTag("instance_id", ev.InstanceID).
		AddTag("resource", string(ev.Resource)).
		AddTag("date", model.FormatDate(ev.Date)).
		AddField("required", ev.Required).
		AddField("assigned", ev.Assigned).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordRouteSplit writes a route split.
func (s *InfluxSink) RecordRouteSplit(ev coremetrics.RouteSplitEvent) error {
	p := write.NewPointWithMeasurement("route_split").
		AddTag("instance_id", ev.InstanceID).
		AddTag("vehicle_id", ev.VehicleID).
		AddTag("direction", string(ev.Direction)).
		AddField("runs", ev.Runs).
		AddField("estimated_minutes", round3(ev.EstimatedMinutes)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordCards writes the card counts of a generated set.
func (s *InfluxSink) RecordCards(ev coremetrics.CardsEvent) error {
	p := write.NewPointWithMeasurement("cards_generated").
		AddTag("program_id", ev.ProgramID).
		AddTag("instance_id", ev.InstanceID)
	total := 0
	for typ, n := range ev.Counts {
		p = p.AddField(strings.ToLower(string(typ)), n)
		total += n
	}
	p = p.AddField("total", total).SortFields().SetTime(ev.Time)
	return s.write(p)
}

// RecordHookFailure writes a failed hook.
func (s *InfluxSink) RecordHookFailure(ev coremetrics.HookFailureEvent) error {
	p := write.NewPointWithMeasurement("hook_failure").
		AddTag("hook", ev.Hook).
		AddTag("entity_id", ev.EntityID).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
