package metrics

import "testing"

// TestMultiSink ensures events are forwarded to all sinks.

type recordSink struct {
	count int
}

func (r *recordSink) RecordRoll(RollEvent) error {
	r.count++
	return nil
}

func (r *recordSink) RecordShortfall(ShortfallEvent) error {
	r.count++
	return nil
}

type rollOnly struct {
	count int
}

func (r *rollOnly) RecordRoll(RollEvent) error {
	r.count++
	return nil
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	s3 := &rollOnly{}
	m := NewMultiSink(s1, s2, s3)
	if err := m.RecordRoll(RollEvent{}); err != nil {
		t.Fatalf("record roll: %v", err)
	}
	if err := m.RecordShortfall(ShortfallEvent{}); err != nil {
		t.Fatalf("record shortfall: %v", err)
	}
	if err := m.RecordCards(CardsEvent{}); err != nil {
		t.Fatalf("record cards: %v", err)
	}
	if s1.count != 2 || s2.count != 2 {
		t.Fatalf("events not forwarded")
	}
	if s3.count != 1 {
		t.Fatalf("roll-only sink got %d events", s3.count)
	}
}

type closingSink struct {
	NopSink
	closed bool
}

func (c *closingSink) Close() { c.closed = true }

func TestMultiSinkClose(t *testing.T) {
	c := &closingSink{}
	m := NewMultiSink(NopSink{}, c)
	m.Close()
	if !c.closed {
		t.Fatalf("close not forwarded")
	}
}
