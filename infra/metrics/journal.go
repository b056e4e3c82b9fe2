package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	coremetrics "github.com/kilianp07/loom/core/metrics"
)

// JournalSink appends every scheduling event as one JSON line to a file
// rotated by size and age.
type JournalSink struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	enc *json.Encoder
}

type journalRecord struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// NewJournalSink opens path for appending. Sizes are in megabytes and ages
// in days; zero keeps lumberjack's defaults.
func NewJournalSink(path string, maxSizeMB, maxBackups, maxAgeDays int) (*JournalSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return &JournalSink{out: lj, enc: json.NewEncoder(lj)}, nil
}

func (s *JournalSink) append(typ string, at time.Time, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(journalRecord{Type: typ, Time: at, Data: data})
}

// Close closes the current file.
func (s *JournalSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.out.Close()
}

func (s *JournalSink) RecordRoll(ev coremetrics.RollEvent) error {
	return s.append("roll", ev.Time, ev)
}

func (s *JournalSink) RecordInstance(ev coremetrics.InstanceEvent) error {
	return s.append("instance", ev.Time, ev)
}

func (s *JournalSink) RecordShortfall(ev coremetrics.ShortfallEvent) error {
	return s.append("shortfall", ev.Time, ev)
}

func (s *JournalSink) RecordRouteSplit(ev coremetrics.RouteSplitEvent) error {
	return s.append("route_split", ev.Time, ev)
}

func (s *JournalSink) RecordCards(ev coremetrics.CardsEvent) error {
	return s.append("cards", ev.Time, ev)
}

func (s *JournalSink) RecordHookFailure(ev coremetrics.HookFailureEvent) error {
	return s.append("hook_failure", ev.Time, ev)
}
