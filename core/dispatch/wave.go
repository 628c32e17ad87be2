package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/scheduler"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

// WaveController tracks which vehicles are still outstanding in the active
// planning wave and emits exactly one completion notice per wave, carrying
// the follow-up triggers accumulated while the wave ran plus one timer
// trigger for the next wave of the same kind.
type WaveController struct {
	cfg   Config
	sched scheduler.Scheduler
	log   logger.Logger
	sink  metrics.MetricsSink
	bus   eventbus.EventBus

	mu        sync.Mutex
	active    bool
	kind      scheduler.WaveKind
	triggerID scheduler.TriggerID
	tick      int64
	cohort    int
	waiting   map[model.VehicleID]struct{}
	triggers  []scheduler.Trigger
}

// NewWaveController creates a controller reporting to the given scheduler.
func NewWaveController(cfg Config, sched scheduler.Scheduler, sink metrics.MetricsSink, bus eventbus.EventBus, log logger.Logger) (*WaveController, error) {
	if sched == nil || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewWaveController")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &WaveController{cfg: cfg, sched: sched, sink: sink, bus: bus, log: log}, nil
}

// Begin starts a wave over the given cohort under the trigger that fired it.
// An empty cohort completes immediately. Beginning a wave while one is
// active is a protocol error.
func (w *WaveController) Begin(kind scheduler.WaveKind, triggerID scheduler.TriggerID, tick int64, vehicles []model.VehicleID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active {
		return fmt.Errorf("dispatch: %s wave begun while a %s wave is active", kind, w.kind)
	}
	if triggerID == "" {
		return fmt.Errorf("dispatch: wave begun without a trigger identifier")
	}
	w.active = true
	w.kind = kind
	w.triggerID = triggerID
	w.tick = tick
	w.cohort = len(vehicles)
	w.waiting = make(map[model.VehicleID]struct{}, len(vehicles))
	for _, id := range vehicles {
		w.waiting[id] = struct{}{}
	}
	w.triggers = nil
	if w.bus != nil {
		w.bus.Publish(events.WaveEvent{Kind: kind, Tick: tick, Vehicles: len(vehicles)})
	}
	w.log.Infof("%s wave begun at tick %d with %d vehicles", kind, tick, len(vehicles))
	if len(w.waiting) == 0 {
		w.complete()
	}
	return nil
}

// Resolve removes the vehicle from the waiting set. Resolving the last
// vehicle completes the wave. Vehicles outside the waiting set are ignored,
// so single-reservation resolutions are safe to route here.
func (w *WaveController) Resolve(id model.VehicleID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return
	}
	if _, ok := w.waiting[id]; !ok {
		return
	}
	delete(w.waiting, id)
	if len(w.waiting) == 0 {
		w.complete()
	}
}

// Drop cancels a vehicle's wave membership without a protocol resolution:
// the wave no longer waits for it. Dropping the last awaited vehicle
// completes the wave.
func (w *WaveController) Drop(id model.VehicleID) {
	w.Resolve(id)
}

// AddTriggers accumulates follow-up triggers for the completion notice.
func (w *WaveController) AddTriggers(ts []scheduler.Trigger) {
	if len(ts) == 0 {
		return
	}
	w.mu.Lock()
	if w.active {
		w.triggers = append(w.triggers, ts...)
	}
	w.mu.Unlock()
}

// Active reports whether a wave is in progress.
func (w *WaveController) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Outstanding returns the number of vehicles still awaited.
func (w *WaveController) Outstanding() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiting)
}

// interval returns the configured spacing for the wave kind.
func (w *WaveController) interval(kind scheduler.WaveKind) int64 {
	if kind == scheduler.WaveBatchedReservation {
		return w.cfg.ReservationBufferTicks
	}
	return w.cfg.RepositionIntervalTicks
}

// complete emits the single completion notice for the active wave. Callers
// must hold w.mu.
func (w *WaveController) complete() {
	if w.triggerID == "" {
		// Reaching this point means the wave lost its held trigger, which
		// would silently drop the round on the scheduler side.
		panic("dispatch: wave completion without a held trigger identifier")
	}
	notice := scheduler.CompletionNotice{
		TriggerID: w.triggerID,
		Triggers: append(w.triggers, scheduler.Trigger{
			AtTick: w.tick + w.interval(w.kind),
			Kind:   w.kind,
		}),
	}
	w.active = false
	w.triggerID = ""
	w.waiting = nil
	w.triggers = nil
	wavesCompleted.WithLabelValues(w.kind.String()).Inc()
	waveSize.WithLabelValues(w.kind.String()).Observe(float64(w.cohort))
	if err := w.sink.RecordWaveResult(metrics.WaveResult{
		Kind:     w.kind,
		Tick:     w.tick,
		Vehicles: w.cohort,
		Time:     time.Now(),
	}); err != nil {
		w.log.Errorf("wave metrics error: %v", err)
	}
	if w.bus != nil {
		w.bus.Publish(events.WaveEvent{Kind: w.kind, Tick: w.tick, Vehicles: w.cohort, Completed: true})
	}
	w.log.Infof("%s wave at tick %d complete, %d follow-up triggers", w.kind, w.tick, len(notice.Triggers))
	w.sched.CompleteWave(notice)
}
