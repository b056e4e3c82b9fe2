package metrics

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRoll forwards the summary to all sinks, returning the first error encountered.
func (m *MultiSink) RecordRoll(ev RollEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordRoll(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordInstance forwards instance events.
func (m *MultiSink) RecordInstance(ev InstanceEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(InstanceRecorder); ok {
			if err := rec.RecordInstance(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordShortfall forwards shortfall events.
func (m *MultiSink) RecordShortfall(ev ShortfallEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ShortfallRecorder); ok {
			if err := rec.RecordShortfall(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordRouteSplit forwards route split events.
func (m *MultiSink) RecordRouteSplit(ev RouteSplitEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(RouteSplitRecorder); ok {
			if err := rec.RecordRouteSplit(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordCards forwards card generation events.
func (m *MultiSink) RecordCards(ev CardsEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(CardsRecorder); ok {
			if err := rec.RecordCards(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordHookFailure forwards hook failures.
func (m *MultiSink) RecordHookFailure(ev HookFailureEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(HookFailureRecorder); ok {
			if err := rec.RecordHookFailure(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink that holds a connection.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
