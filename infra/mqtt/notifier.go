package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilianp07/loom/core/events"
	"github.com/kilianp07/loom/core/logger"
	"github.com/kilianp07/loom/core/model"
	coremqtt "github.com/kilianp07/loom/core/mqtt"
	"github.com/kilianp07/loom/internal/eventbus"
)

// Notifier publishes scheduling events for downstream consumers such as
// driver tablets and the operations dashboard.
type Notifier struct {
	pub    coremqtt.Publisher
	prefix string
	qos    map[string]byte
	logger logger.Logger
}

// NewNotifier creates a Notifier publishing under cfg.TopicPrefix.
func NewNotifier(pub coremqtt.Publisher, cfg Config, log logger.Logger) *Notifier {
	cfg.SetDefaults()
	return &Notifier{pub: pub, prefix: cfg.TopicPrefix, qos: cfg.QoS, logger: log}
}

// CardsTopic is where the card set of an instance is announced.
func (n *Notifier) CardsTopic(instanceID string) string {
	return fmt.Sprintf("%s/instances/%s/cards", n.prefix, instanceID)
}

// ShortfallTopic carries shortfall alerts.
func (n *Notifier) ShortfallTopic() string { return n.prefix + "/alerts/shortfall" }

// RollTopic carries the retained summary of the last roll.
func (n *Notifier) RollTopic() string { return n.prefix + "/roll" }

type cardsMessage struct {
	InstanceID string         `json:"instance_id"`
	ProgramID  string         `json:"program_id"`
	Date       string         `json:"date"`
	Counts     map[string]int `json:"counts"`
}

type shortfallMessage struct {
	InstanceID string `json:"instance_id"`
	ProgramID  string `json:"program_id"`
	Date       string `json:"date"`
	Resource   string `json:"resource"`
	Required   int    `json:"required"`
	Assigned   int    `json:"assigned"`
	Detail     string `json:"detail,omitempty"`
}

type rollMessage struct {
	Trigger    string `json:"trigger"`
	Today      string `json:"today"`
	Weeks      int    `json:"weeks"`
	Processed  int    `json:"processed"`
	Skipped    int    `json:"skipped"`
	Removed    int    `json:"removed"`
	Failed     int    `json:"failed"`
	Pruned     int    `json:"pruned"`
	DurationMS int64  `json:"duration_ms"`
}

// Handle publishes ev when it is one of the announced event types.
func (n *Notifier) Handle(ev eventbus.Event) error {
	var (
		topic    string
		kind     string
		retained bool
		msg      any
	)
	switch e := ev.(type) {
	case events.CardsGenerated:
		counts := make(map[string]int, len(e.Counts))
		for t, c := range e.Counts {
			counts[string(t)] = c
		}
		topic, kind = n.CardsTopic(e.InstanceID), "cards"
		msg = cardsMessage{InstanceID: e.InstanceID, ProgramID: e.ProgramID, Date: model.FormatDate(e.Date), Counts: counts}
	case events.ShortfallDetected:
		topic, kind = n.ShortfallTopic(), "alerts"
		msg = shortfallMessage{
			InstanceID: e.InstanceID,
			ProgramID:  e.ProgramID,
			Date:       model.FormatDate(e.Date),
			Resource:   string(e.Warning.Resource),
			Required:   e.Warning.Required,
			Assigned:   e.Warning.Assigned,
			Detail:     e.Warning.Detail,
		}
	case events.RollCompleted:
		topic, kind, retained = n.RollTopic(), "roll", true
		msg = rollMessage{
			Trigger:    e.Trigger,
			Today:      model.FormatDate(e.Today),
			Weeks:      e.Weeks,
			Processed:  e.Processed,
			Skipped:    e.Skipped,
			Removed:    e.Removed,
			Failed:     e.Failed,
			Pruned:     e.Pruned,
			DurationMS: e.Duration.Milliseconds(),
		}
	default:
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.pub.Publish(topic, n.qos[kind], retained, payload)
}

// Start subscribes to bus and publishes events until ctx is done.
func (n *Notifier) Start(ctx context.Context, bus eventbus.EventBus) {
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				started := time.Now()
				if err := n.Handle(ev); err != nil {
					n.logger.Warnf("notify %T: %v", ev, err)
					continue
				}
				if d := time.Since(started); d > time.Second {
					n.logger.Warnf("slow notification %T took %s", ev, d)
				}
			}
		}
	}()
}
