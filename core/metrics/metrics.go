// Package metrics defines the sink interfaces used to record coordination
// outcomes for observability.
package metrics

import (
	"time"

	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/scheduler"
)

// WaveResult summarizes one completed planning wave.
type WaveResult struct {
	Kind     scheduler.WaveKind
	Tick     int64
	Vehicles int
	Time     time.Time
}

// MutationRecord is one resolved modification attempt.
type MutationRecord struct {
	VehicleID     model.VehicleID
	Kind          scheduler.WaveKind
	Abandoned     bool
	ReservationID *model.RequestID
	Tick          int64
	Time          time.Time
}

// MetricsSink records coordination results for observability purposes.
type MetricsSink interface {
	RecordWaveResult(res WaveResult) error
	RecordMutations(recs []MutationRecord) error
}

// FleetSizeRecorder is implemented by sinks that track the fleet size.
type FleetSizeRecorder interface {
	RecordFleetSize(size int) error
}

// Config defines settings for metrics sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordWaveResult(WaveResult) error      { return nil }
func (NopSink) RecordMutations([]MutationRecord) error { return nil }
