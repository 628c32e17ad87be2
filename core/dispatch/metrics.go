package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	interruptsSent    prometheus.Counter
	interruptReplies  *prometheus.CounterVec
	staleReplies      prometheus.Counter
	scheduleMutations *prometheus.CounterVec
	protocolErrors    prometheus.Counter
	wavesCompleted    *prometheus.CounterVec
	waveSize          *prometheus.HistogramVec
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, *prometheus.CounterVec, prometheus.Counter, *prometheus.CounterVec, prometheus.Counter, *prometheus.CounterVec, *prometheus.HistogramVec) {
	sent := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "interrupts_sent_total",
			Help: "Number of interrupts sent to vehicle agents",
		},
	)
	replies := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interrupt_replies_total",
			Help: "Number of interrupt replies received",
		},
		[]string{"kind"},
	)
	stale := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stale_interrupt_replies_total",
			Help: "Number of replies whose interrupt was no longer outstanding",
		},
	)
	mut := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_mutations_total",
			Help: "Number of schedule mutation resolutions",
		},
		[]string{"outcome"},
	)
	proto := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mutation_protocol_errors_total",
			Help: "Number of mutation requests violating the interrupt protocol",
		},
	)
	waves := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waves_completed_total",
			Help: "Number of completed planning waves",
		},
		[]string{"kind"},
	)
	size := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wave_cohort_size",
			Help:    "Number of vehicles per planning wave",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"kind"},
	)
	return sent, replies, stale, mut, proto, waves, size
}

func init() {
	interruptsSent, interruptReplies, staleReplies, scheduleMutations, protocolErrors, wavesCompleted, waveSize = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers coordination metrics on the provided
// registry. If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(interruptsSent, interruptReplies, staleReplies, scheduleMutations, protocolErrors, wavesCompleted, waveSize)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	interruptsSent, interruptReplies, staleReplies, scheduleMutations, protocolErrors, wavesCompleted, waveSize = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
