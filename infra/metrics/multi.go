package metrics

import coremetrics "github.com/kilianp07/fleetsim/core/metrics"

// MultiSink fans coordination records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordWaveResult forwards the record to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordWaveResult(res coremetrics.WaveResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordWaveResult(res); err != nil {
			return err
		}
	}
	return nil
}

// RecordMutations forwards the records to all sinks.
func (m *MultiSink) RecordMutations(recs []coremetrics.MutationRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordMutations(recs); err != nil {
			return err
		}
	}
	return nil
}

// RecordFleetSize forwards fleet size metrics when supported by the sink.
func (m *MultiSink) RecordFleetSize(size int) error {
	for _, s := range m.Sinks {
		if fr, ok := s.(coremetrics.FleetSizeRecorder); ok {
			if err := fr.RecordFleetSize(size); err != nil {
				return err
			}
		}
	}
	return nil
}
