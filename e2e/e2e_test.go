package e2e

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/loom/core/allocation"
	"github.com/kilianp07/loom/core/cards"
	"github.com/kilianp07/loom/core/clock"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/roller"
	"github.com/kilianp07/loom/core/temporal"
	"github.com/kilianp07/loom/infra/logger"
	"github.com/kilianp07/loom/infra/metrics"
	"github.com/kilianp07/loom/infra/sqlite"
	"github.com/kilianp07/loom/internal/eventbus"
	"github.com/kilianp07/loom/qa/scenarios"
)

const (
	influxOrg    = "loom"
	influxBucket = "loom"
	influxToken  = "e2e-token"
)

// junitReport is a minimal representation of a JUnit XML report so CI
// systems can display the results.
type junitReport struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name    string  `xml:"name,attr"`
	Failure *string `xml:"failure,omitempty"`
	Time    float64 `xml:"time,attr"`
}

func writeJUnit(path string, rep junitReport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	return enc.Encode(rep)
}

// startInflux starts an InfluxDB 2.7 container initialised with the test
// organisation, bucket and token.
func startInflux(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "influxdb:2.7",
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "loom",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "loom-e2e-password",
			"DOCKER_INFLUXDB_INIT_ORG":         influxOrg,
			"DOCKER_INFLUXDB_INIT_BUCKET":      influxBucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": influxToken,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp").WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start influx container: %v", err)
	}
	host, err := cont.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := cont.MappedPort(ctx, "8086")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return cont, fmt.Sprintf("http://%s:%s", host, port.Port())
}

// Test_E2E_RollToInflux rolls the basic week scenario with the Influx sink
// attached and reads the roll summary and instance financials back.
func Test_E2E_RollToInflux(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	started := time.Now()

	cont, url := startInflux(ctx, t)
	defer cont.Terminate(ctx) //nolint:errcheck
	t.Logf("InfluxDB started at %s", url)

	sc, err := scenarios.Load(filepath.Join("..", "qa", "scenarios", "testdata", "basic_week.yaml"))
	if err != nil {
		t.Fatalf("scenario: %v", err)
	}
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "loom.db"), sqlite.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()
	if _, err := sc.Catalog.Apply(ctx, s); err != nil {
		t.Fatalf("catalog: %v", err)
	}

	sink := metrics.NewInfluxSink(url, influxToken, influxOrg, influxBucket)
	defer sink.Close()
	bus := eventbus.New()
	defer bus.Close()
	metrics.StartEventCollector(ctx, bus, sink, logger.NopLogger{})

	today, _ := model.ParseDate(sc.Today)
	c := clock.Fixed{At: today.Add(8 * time.Hour)}
	var cfg model.AllocationConfig
	cfg.SetDefaults()
	log := logger.NopLogger{}
	r := roller.New(s, c, allocation.NewEngine(log), cards.NewService(s, cfg, bus, log), bus, log, roller.Options{
		DefaultWeeks:   sc.WindowWeeks,
		RetainPastDays: 7,
		Allocation:     cfg,
	})
	rules := temporal.NewService(s, c, r, bus, log)
	for _, def := range sc.Intents {
		in, err := def.ToModel()
		if err != nil {
			t.Fatalf("intent: %v", err)
		}
		if _, err := rules.CreateIntent(ctx, in); err != nil {
			t.Fatalf("create intent: %v", err)
		}
	}
	if _, err := r.RollForward(ctx, "e2e"); err != nil {
		t.Fatalf("roll: %v", err)
	}

	cli := NewInfluxClient(url, influxOrg, influxBucket, influxToken)
	defer cli.Close()

	deadline := time.Now().Add(30 * time.Second)
	rolls := 0
	for time.Now().Before(deadline) {
		rolls, err = cli.CountRecords(ctx, "roll", "processed")
		if err == nil && rolls > 0 {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if rolls != 1 {
		t.Fatalf("expected one roll record, got %d (err %v)", rolls, err)
	}
	revenue, err := cli.SumField(ctx, "instance_financials", "revenue")
	if err != nil {
		t.Fatalf("query revenue: %v", err)
	}
	if diff := revenue - sc.Expected.Revenue; diff > 0.01 || diff < -0.01 {
		t.Fatalf("expected revenue %.2f in influx, got %.2f", sc.Expected.Revenue, revenue)
	}

	rep := junitReport{Name: "e2e", Tests: 1, Cases: []junitTestCase{{
		Name: "Test_E2E_RollToInflux",
		Time: time.Since(started).Seconds(),
	}}}
	if err := writeJUnit(filepath.Join(t.TempDir(), "e2e.xml"), rep); err != nil {
		t.Logf("write junit: %v", err)
	}
}
