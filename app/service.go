// Package app wires configuration, fleet, coordinator and scheduler into a
// runnable simulation service.
package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/kilianp07/fleetsim/config"
	"github.com/kilianp07/fleetsim/core/agent"
	"github.com/kilianp07/fleetsim/core/allocation"
	"github.com/kilianp07/fleetsim/core/dispatch"
	"github.com/kilianp07/fleetsim/core/fleet"
	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/reservation"
	"github.com/kilianp07/fleetsim/core/schedule"
	"github.com/kilianp07/fleetsim/core/scheduler"
	"github.com/kilianp07/fleetsim/infra/logger"
	"github.com/kilianp07/fleetsim/infra/metrics"
	"github.com/kilianp07/fleetsim/infra/mqtt"
	"github.com/kilianp07/fleetsim/infra/simagent"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

// Service orchestrates one standalone simulation run.
type Service struct {
	cfg *config.Config
	log logger.Logger

	tracker      *fleet.Tracker
	fleet        *simagent.Fleet
	bridge       *mqtt.Bridge
	engine       *allocation.Engine
	coordinator  *dispatch.Coordinator
	wave         *dispatch.WaveController
	local        *scheduler.LocalScheduler
	reservations *reservation.Book
	bus          *eventbus.Bus
	rng          *rand.Rand

	// pendingMutations maps a vehicle awaiting ApplyMutation to the schedule
	// and reservation decided for it when its wave began. Guarded by mutMu:
	// the wave loop plans, the reply goroutine consumes.
	mutMu            sync.Mutex
	pendingMutations map[model.VehicleID]plannedMutation

	promEnabled bool
	promPort    string
}

type plannedMutation struct {
	schedule      schedule.PassengerSchedule
	reservationID *model.RequestID
}

// coordinatorRelay breaks the construction cycle between the MQTT bridge
// (which needs reply and ack sinks) and the coordinator (which needs the
// bridge as its registry): the relay is handed to the bridge first and bound
// to the coordinator once it exists.
type coordinatorRelay struct {
	coord *dispatch.Coordinator
}

func (r *coordinatorRelay) OnInterruptReply(reply agent.InterruptReply) {
	if r.coord != nil {
		r.coord.OnInterruptReply(reply)
	}
}

func (r *coordinatorRelay) AcknowledgeMutation(id model.VehicleID, triggers []scheduler.Trigger) {
	if r.coord != nil {
		r.coord.AcknowledgeMutation(id, triggers)
	}
}

// bridgeRegistry adapts the MQTT bridge to agent.Registry. Remote vehicles
// are addressed by topic, so every identifier resolves.
type bridgeRegistry struct {
	bridge *mqtt.Bridge
}

func (r bridgeRegistry) Agent(id model.VehicleID) (agent.VehicleAgent, bool) {
	return r.bridge.Agent(id), true
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	cfg.Logging.Apply()
	log := logger.New("service")

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink coremetrics.MetricsSink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	bus := eventbus.NewBuffered(256)
	tracker := fleet.NewTracker()
	local := scheduler.NewLocalScheduler()
	book := reservation.NewBook()

	wave, err := dispatch.NewWaveController(cfg.Dispatch, local, sink, bus, logger.New("wave"))
	if err != nil {
		return nil, err
	}

	svc := &Service{
		cfg:              cfg,
		log:              log,
		tracker:          tracker,
		engine:           allocation.NewEngine(tracker, cfg.Dispatch.SearchRadiusM),
		wave:             wave,
		local:            local,
		reservations:     book,
		bus:              bus,
		rng:              rand.New(rand.NewSource(cfg.Fleet.Seed)),
		pendingMutations: make(map[model.VehicleID]plannedMutation),
		promEnabled:      cfg.Metrics.PrometheusEnabled,
		promPort:         cfg.Metrics.PrometheusPort,
	}

	genCfg := simagent.GenerateConfig{
		Size:  cfg.Fleet.Size,
		Seed:  cfg.Fleet.Seed,
		AreaM: cfg.Fleet.AreaM,
	}
	if cfg.MQTTEnabled {
		// Remote fleet: vehicles live behind the broker, commands go out as
		// per-vehicle topics. The tracker still carries the configured fleet
		// so allocation has positions to work with.
		relay := &coordinatorRelay{}
		bridge, err := mqtt.NewBridge(cfg.MQTT, relay, relay)
		if err != nil {
			return nil, err
		}
		svc.bridge = bridge
		simagent.GenerateFleet(genCfg, nil, nil, tracker, logger.NopLogger{})
		coord, err := dispatch.NewCoordinator(bridgeRegistry{bridge}, wave, book, sink, bus, logger.New("coordinator"))
		if err != nil {
			bridge.Close()
			return nil, err
		}
		relay.coord = coord
		svc.coordinator = coord
	} else {
		flt := simagent.NewFleet()
		coord, err := dispatch.NewCoordinator(flt, wave, book, sink, bus, logger.New("coordinator"))
		if err != nil {
			return nil, err
		}
		svc.coordinator = coord
		svc.fleet = simagent.GenerateFleet(genCfg, coord, coord, tracker, logger.New("fleet"))
		// GenerateFleet registered into its own Fleet; rebuild on the
		// registry the coordinator holds.
		svc.fleet.Each(func(v *simagent.SimVehicle) { flt.Add(v) })
	}
	svc.coordinator.SetReplyHandler(svc.applyOnReply)
	if fr, ok := sink.(coremetrics.FleetSizeRecorder); ok {
		if err := fr.RecordFleetSize(tracker.Len()); err != nil {
			log.Errorf("fleet size metrics error: %v", err)
		}
	}
	return svc, nil
}

// Coordinator exposes the schedule-mutation coordinator.
func (s *Service) Coordinator() *dispatch.Coordinator { return s.coordinator }

// Run executes planning waves until the configured end tick or until the
// context is cancelled. Every outstanding interrupt is cleared before
// returning so no vehicle is left paused.
func (s *Service) Run(ctx context.Context) error {
	defer s.coordinator.ClearAllPendingInterrupts()

	if s.fleet != nil {
		fleetCtx, stopFleet := context.WithCancel(ctx)
		defer stopFleet()
		go s.fleet.Run(fleetCtx)
	}

	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	s.local.Push(scheduler.Trigger{AtTick: s.cfg.Sim.StartTick, Kind: scheduler.WaveReposition})
	s.local.Push(scheduler.Trigger{AtTick: s.cfg.Sim.StartTick, Kind: scheduler.WaveBatchedReservation})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		trig, ok := s.local.Next()
		if !ok {
			if s.wave.Active() {
				time.Sleep(time.Millisecond)
				continue
			}
			return nil
		}
		if trig.AtTick >= s.cfg.Sim.EndTick {
			s.log.Infof("simulation horizon reached at tick %d", trig.AtTick)
			return nil
		}
		s.beginWave(trig)
		for s.wave.Active() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				time.Sleep(time.Millisecond)
			}
		}
	}
}

// beginWave plans the cohort for the trigger and starts the wave.
func (s *Service) beginWave(trig scheduler.Trigger) {
	triggerID := scheduler.NewTriggerID()
	switch trig.Kind {
	case scheduler.WaveBatchedReservation:
		requests := s.generateRequests(trig.AtTick)
		results := s.engine.AllocateBatch(requests)
		var cohort []model.VehicleID
		for _, r := range results {
			if r.Allocation == nil {
				s.log.Warnf("request %s unmatched: no idle vehicle in radius", r.Request.ID)
				continue
			}
			id := r.Allocation.VehicleID
			reqID := r.Request.ID
			s.planMutation(id, plannedMutation{
				schedule:      s.pickupSchedule(r.Allocation.Location, r.Request.Pickup, trig.AtTick),
				reservationID: &reqID,
			})
			cohort = append(cohort, id)
		}
		if err := s.wave.Begin(trig.Kind, triggerID, trig.AtTick, cohort); err != nil {
			s.log.Errorf("begin wave: %v", err)
			s.dropMutations(cohort)
			return
		}
		s.dropMutations(s.coordinator.BeginWave(trig.Kind, cohort, trig.AtTick))
	default:
		cohort := s.idleCohort()
		for _, id := range cohort {
			st, _ := s.tracker.Get(id)
			s.planMutation(id, plannedMutation{
				schedule: s.repositionSchedule(st.Location, trig.AtTick),
			})
		}
		if err := s.wave.Begin(trig.Kind, triggerID, trig.AtTick, cohort); err != nil {
			s.log.Errorf("begin wave: %v", err)
			s.dropMutations(cohort)
			return
		}
		s.dropMutations(s.coordinator.BeginWave(trig.Kind, cohort, trig.AtTick))
	}
}

// applyOnReply drives ApplyMutation from the coordinator's reply hook: each
// recorded reply releases the mutation planned for that vehicle when its wave
// began. The hook is synchronous, so a reply can never be lost between
// planning and application; the event bus only carries observability copies.
func (s *Service) applyOnReply(reply agent.InterruptReply) {
	planned, ok := s.takeMutation(reply.VehicleID)
	if !ok {
		return
	}
	s.coordinator.ApplyMutation(reply.VehicleID, planned.schedule, reply.Tick, planned.reservationID)
}

func (s *Service) planMutation(id model.VehicleID, m plannedMutation) {
	s.mutMu.Lock()
	s.pendingMutations[id] = m
	s.mutMu.Unlock()
}

// dropMutations discards plans staged for vehicles whose wave membership was
// refused, so a later reply cannot consume a stale schedule.
func (s *Service) dropMutations(ids []model.VehicleID) {
	if len(ids) == 0 {
		return
	}
	s.mutMu.Lock()
	for _, id := range ids {
		delete(s.pendingMutations, id)
	}
	s.mutMu.Unlock()
}

func (s *Service) takeMutation(id model.VehicleID) (plannedMutation, bool) {
	s.mutMu.Lock()
	defer s.mutMu.Unlock()
	m, ok := s.pendingMutations[id]
	if ok {
		delete(s.pendingMutations, id)
	}
	return m, ok
}

func (s *Service) idleCohort() []model.VehicleID {
	var out []model.VehicleID
	for _, st := range s.tracker.Snapshot() {
		if st.State == model.VehicleIdle {
			out = append(out, st.VehicleID)
		}
	}
	return out
}

// generateRequests produces the synthetic demand batch for one reservation
// wave.
func (s *Service) generateRequests(tick int64) []model.PickupRequest {
	n := 1 + s.rng.Intn(3)
	out := make([]model.PickupRequest, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.PickupRequest{
			ID: model.RequestID(fmt.Sprintf("req-%d-%d", tick, i)),
			Pickup: model.Location{
				X: s.rng.Float64() * s.cfg.Fleet.AreaM,
				Y: s.rng.Float64() * s.cfg.Fleet.AreaM,
			},
		})
	}
	return out
}

// pickupSchedule builds the two-leg plan: deadhead to the pickup, then carry
// the passenger to a drop-off. Travel times are crude straight-line
// estimates; path geometry belongs to the routing engine, not here.
func (s *Service) pickupSchedule(vehicleLoc, pickup model.Location, tick int64) schedule.PassengerSchedule {
	dropoff := model.Location{
		X: s.rng.Float64() * s.cfg.Fleet.AreaM,
		Y: s.rng.Float64() * s.cfg.Fleet.AreaM,
	}
	approach := travelTicks(vehicleLoc, pickup)
	ride := travelTicks(pickup, dropoff)
	sched, err := schedule.New().WithLegs(
		schedule.Leg{StartTick: tick, EndTick: tick + approach, From: vehicleLoc, To: pickup},
		schedule.Leg{StartTick: tick + approach, EndTick: tick + approach + ride, From: pickup, To: dropoff},
	)
	if err != nil {
		s.log.Errorf("pickup schedule: %v", err)
		return schedule.New()
	}
	rideLegs := sched.Legs()
	sched, err = sched.WithPassenger(model.PassengerID("pax-"+fmt.Sprint(tick)), rideLegs[1:])
	if err != nil {
		s.log.Errorf("pickup schedule: %v", err)
	}
	return sched
}

// repositionSchedule builds the single non-revenue leg for an idle vehicle.
func (s *Service) repositionSchedule(from model.Location, tick int64) schedule.PassengerSchedule {
	to := model.Location{
		X: s.rng.Float64() * s.cfg.Fleet.AreaM,
		Y: s.rng.Float64() * s.cfg.Fleet.AreaM,
	}
	sched, err := schedule.New().WithLegs(schedule.Leg{
		StartTick: tick,
		EndTick:   tick + travelTicks(from, to),
		From:      from,
		To:        to,
	})
	if err != nil {
		s.log.Errorf("reposition schedule: %v", err)
		return schedule.New()
	}
	return sched
}

// travelTicks estimates straight-line travel time at a nominal 10 m/s.
func travelTicks(from, to model.Location) int64 {
	t := int64(model.Distance(from, to) / 10)
	if t < 1 {
		t = 1
	}
	return t
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.coordinator.ClearAllPendingInterrupts()
	if s.bridge != nil {
		s.bridge.Close()
	}
	s.bus.Close()
	return nil
}
