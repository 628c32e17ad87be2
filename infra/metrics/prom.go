package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
)

// PromSink records coordination events in Prometheus metrics.
type PromSink struct {
	waves     *prometheus.CounterVec
	mutations *prometheus.CounterVec
	fleet     prometheus.Gauge
}

// NewPromSink registers coordination metrics on the default Prometheus
// registerer. The Prometheus server should be started separately using
// cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	waves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planning_waves_total",
		Help: "Total number of completed planning waves",
	}, []string{"kind"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vehicle_mutations_total",
		Help: "Total number of resolved schedule mutation attempts",
	}, []string{"vehicle_id", "kind", "abandoned"})
	fleet := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_vehicles_total",
		Help: "Number of vehicles known to the fleet tracker",
	})

	if err := reg.Register(waves); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			waves = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(mutations); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			mutations = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fleet); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			fleet = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{waves: waves, mutations: mutations, fleet: fleet}, nil
}

// RecordWaveResult increments the wave counter.
func (s *PromSink) RecordWaveResult(res coremetrics.WaveResult) error {
	s.waves.WithLabelValues(res.Kind.String()).Inc()
	return nil
}

// RecordMutations increments the mutation counter for each record.
func (s *PromSink) RecordMutations(recs []coremetrics.MutationRecord) error {
	for _, r := range recs {
		s.mutations.WithLabelValues(string(r.VehicleID), r.Kind.String(), strconv.FormatBool(r.Abandoned)).Inc()
	}
	return nil
}

// RecordFleetSize sets the gauge to the number of tracked vehicles.
func (s *PromSink) RecordFleetSize(size int) error {
	if s.fleet != nil {
		s.fleet.Set(float64(size))
	}
	return nil
}
