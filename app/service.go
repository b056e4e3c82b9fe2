// Package app wires the store, the scheduling core and the outer surfaces
// into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/loom/api"
	"github.com/kilianp07/loom/config"
	"github.com/kilianp07/loom/core/allocation"
	"github.com/kilianp07/loom/core/cards"
	"github.com/kilianp07/loom/core/clock"
	coremetrics "github.com/kilianp07/loom/core/metrics"
	coremon "github.com/kilianp07/loom/core/monitoring"
	"github.com/kilianp07/loom/core/roller"
	"github.com/kilianp07/loom/core/store"
	"github.com/kilianp07/loom/core/temporal"
	"github.com/kilianp07/loom/infra/logger"
	"github.com/kilianp07/loom/infra/metrics"
	"github.com/kilianp07/loom/infra/monitoring"
	"github.com/kilianp07/loom/infra/mqtt"
	"github.com/kilianp07/loom/infra/sqlite"
	"github.com/kilianp07/loom/internal/eventbus"
)

// Service holds the scheduling core. Open builds it without network
// surfaces so one-shot commands can share it; Run adds them.
type Service struct {
	Store  *sqlite.Store
	Clock  clock.Clock
	Rules  *temporal.Service
	Roller *roller.Roller
	Cards  *cards.Service
	Bus    eventbus.EventBus

	cfg  *config.Config
	log  logger.Logger
	sink coremetrics.MetricsSink
	mqtt *mqtt.PahoClient
}

// Open creates a Service from the configuration.
func Open(ctx context.Context, cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if _, err := monitoring.Setup(cfg.Sentry); err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	c, err := clock.New(cfg.Loom.Timezone)
	if err != nil {
		return nil, err
	}
	s, err := sqlite.Open(cfg.Database.Path, sqlite.Options{BusyTimeoutMS: cfg.Database.BusyTimeoutMS})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.SeedSettings(ctx, s, cfg.Loom.WindowWeeks, cfg.Allocation); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("seed settings: %w", err)
	}

	bus := eventbus.New()
	cs := cards.NewService(s, cfg.Allocation, bus, logger.New("cards"))
	r := roller.New(s, c, allocation.NewEngine(logger.New("allocation")), cs, bus, logger.New("roller"), roller.Options{
		DefaultWeeks:   cfg.Loom.WindowWeeks,
		RetainPastDays: cfg.Loom.RetainPastDays,
		Allocation:     cfg.Allocation,
	})
	rules := temporal.NewService(s, c, r, bus, logger.New("rules"))

	return &Service{
		Store:  s,
		Clock:  c,
		Rules:  rules,
		Roller: r,
		Cards:  cs,
		Bus:    bus,
		cfg:    cfg,
		log:    logger.New("service"),
	}, nil
}

// StartSinks attaches the metrics collector and, when enabled, the MQTT
// notifier to the event bus.
func (s *Service) StartSinks(ctx context.Context) error {
	sink, err := coremetrics.NewMetricsSink(s.cfg.Metrics.Sinks)
	if err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}
	s.sink = sink
	metrics.StartEventCollector(ctx, s.Bus, sink, logger.New("metrics"))

	if s.cfg.MQTT.Enabled {
		client, err := mqtt.NewPahoClient(s.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		s.mqtt = client
		mqtt.NewNotifier(client, s.cfg.MQTT, logger.New("notifier")).Start(ctx, s.Bus)
	}
	return nil
}

// Run starts the sinks, the scheduled roll, the metrics endpoint and the
// HTTP API, and blocks until ctx is cancelled or a listener fails.
func (s *Service) Run(ctx context.Context) error {
	defer coremon.Recover()
	if err := s.StartSinks(ctx); err != nil {
		return err
	}
	errCh := make(chan error, 3)

	if s.cfg.Metrics.HasSink("prometheus") {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr, prometheus.DefaultGatherer, logger.New("prometheus")); err != nil {
				errCh <- fmt.Errorf("prometheus: %w", err)
			}
		}()
	}

	worker := roller.NewWorker(s.Roller, s.Clock, roller.WorkerConfig{
		Interval:   s.cfg.Loom.RollInterval,
		RollAt:     s.cfg.Loom.RollAt,
		RunOnStart: s.cfg.Loom.RollOnStart,
	}, logger.New("worker"))
	go func() {
		if err := worker.Start(ctx); err != nil {
			errCh <- fmt.Errorf("worker: %w", err)
		}
	}()

	srv := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           api.NewRouter(s.Rules, s.Roller, s.Cards, logger.New("http"), s.cfg.HTTP.RequestTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.log.Infof("HTTP API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		s.log.Errorf("%v", runErr)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warnf("http shutdown: %v", err)
	}
	return runErr
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.Bus.Close()
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	coremon.Flush(2 * time.Second)
	return s.Store.Close()
}
