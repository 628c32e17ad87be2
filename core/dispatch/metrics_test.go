package dispatch

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistration(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)
	// touch metrics so they are exported
	interruptsSent.Inc()
	interruptReplies.WithLabelValues("interrupted_while_idle").Inc()
	staleReplies.Inc()
	scheduleMutations.WithLabelValues("sent").Inc()
	protocolErrors.Inc()
	wavesCompleted.WithLabelValues("reposition").Inc()
	waveSize.WithLabelValues("reposition").Observe(3)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[*mf.Name] = true
	}
	expected := []string{
		"interrupts_sent_total",
		"interrupt_replies_total",
		"stale_interrupt_replies_total",
		"schedule_mutations_total",
		"mutation_protocol_errors_total",
		"waves_completed_total",
		"wave_cohort_size",
	}
	for _, n := range expected {
		if !names[n] {
			t.Errorf("metric %s not registered", n)
		}
	}
}
