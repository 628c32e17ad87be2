package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/fleetsim/core/agent"
	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/reservation"
	"github.com/kilianp07/fleetsim/core/schedule"
	"github.com/kilianp07/fleetsim/core/scheduler"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

// Coordinator orchestrates the interrupt -> reply -> mutate -> resume
// protocol per vehicle. All decisions are made under one mutex so the
// at-most-one-attempt-per-vehicle invariant holds with plain in-memory
// indices.
type Coordinator struct {
	registry     agent.Registry
	wave         *WaveController
	reservations reservation.FailureHandler
	log          logger.Logger
	sink         metrics.MetricsSink
	bus          eventbus.EventBus

	mu             sync.Mutex
	byInterrupt    map[model.InterruptID]*attempt
	byVehicle      map[model.VehicleID]*attempt
	pendingReplies int
	replyHandler   func(agent.InterruptReply)
}

// NewCoordinator creates a coordinator. The registry resolves vehicle
// identifiers to their agents; failures are reported to the reservation
// handler.
func NewCoordinator(registry agent.Registry, wave *WaveController, failures reservation.FailureHandler, sink metrics.MetricsSink, bus eventbus.EventBus, log logger.Logger) (*Coordinator, error) {
	if registry == nil || wave == nil || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewCoordinator")
	}
	if failures == nil {
		failures = reservation.NopHandler{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Coordinator{
		registry:     registry,
		wave:         wave,
		reservations: failures,
		log:          log,
		sink:         sink,
		bus:          bus,
		byInterrupt:  make(map[model.InterruptID]*attempt),
		byVehicle:    make(map[model.VehicleID]*attempt),
	}, nil
}

// Wave exposes the round controller the coordinator reports to.
func (c *Coordinator) Wave() *WaveController { return c.wave }

// SetReplyHandler installs the callback invoked after each non-stale reply is
// recorded. The call is synchronous, outside the coordinator lock, so the
// handler may call ApplyMutation directly and no reply can be lost. Event bus
// publishes carry observability copies only and may be dropped.
func (c *Coordinator) SetReplyHandler(fn func(agent.InterruptReply)) {
	c.mu.Lock()
	c.replyHandler = fn
	c.mu.Unlock()
}

// BeginWave interrupts every vehicle of the cohort that is not already
// holding a blocking attempt. Vehicles already mid-reservation are skipped
// silently: their wave membership is cancelled so the wave can still
// complete. The cancelled vehicles are returned so callers can discard any
// state staged for them.
func (c *Coordinator) BeginWave(kind scheduler.WaveKind, vehicles []model.VehicleID, tick int64) []model.VehicleID {
	origin := OriginHoldForPlanning
	if kind == scheduler.WaveBatchedReservation {
		origin = OriginBatchedReservation
	}
	var dropped []model.VehicleID
	for _, id := range vehicles {
		if err := c.beginAttempt(id, origin, tick, nil); err != nil {
			c.log.Warnf("wave membership cancelled for %s: %v", id, err)
			c.wave.Drop(id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}

// BeginReservation interrupts one vehicle for a committed booking outside
// any wave. The attempt blocks every other attempt on the vehicle until it
// resolves.
func (c *Coordinator) BeginReservation(id model.VehicleID, tick int64, reservationID model.RequestID) error {
	return c.beginAttempt(id, OriginSingleReservation, tick, &reservationID)
}

func (c *Coordinator) beginAttempt(id model.VehicleID, origin Origin, tick int64, reservationID *model.RequestID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prior, ok := c.byVehicle[id]; ok {
		return fmt.Errorf("vehicle %s already holds a %s attempt", id, prior.origin)
	}
	ag, ok := c.registry.Agent(id)
	if !ok {
		return fmt.Errorf("no agent registered for vehicle %s", id)
	}
	a := &attempt{
		interruptID:   model.NewInterruptID(),
		vehicleID:     id,
		origin:        origin,
		tick:          tick,
		agent:         ag,
		reservationID: reservationID,
		status:        interruptSent,
	}
	c.byInterrupt[a.interruptID] = a
	c.byVehicle[id] = a
	c.pendingReplies++
	ag.Send(agent.Interrupt{InterruptID: a.interruptID, Tick: tick})
	interruptsSent.Inc()
	if c.bus != nil {
		c.bus.Publish(events.InterruptEvent{InterruptID: a.interruptID, VehicleID: id, Tick: tick})
	}
	c.log.Debugf("interrupt %s sent to %s (%s)", a.interruptID, id, origin)
	return nil
}

// OnInterruptReply records the vehicle's true condition for its in-flight
// attempt, then hands the reply to the installed handler, which is expected
// to call ApplyMutation. Replies without a matching attempt are stale
// (already resolved or never existed); they are logged and discarded, never
// fatal, and never reach the handler.
func (c *Coordinator) OnInterruptReply(reply agent.InterruptReply) {
	c.mu.Lock()
	a, ok := c.byInterrupt[reply.InterruptID]
	if !ok {
		c.mu.Unlock()
		staleReplies.Inc()
		if c.bus != nil {
			c.bus.Publish(events.ReplyEvent{Reply: reply, Stale: true})
		}
		c.log.Errorf("stale interrupt reply %s from %s discarded", reply.InterruptID, reply.VehicleID)
		return
	}
	a.reply = &reply
	c.pendingReplies--
	handler := c.replyHandler
	c.mu.Unlock()
	interruptReplies.WithLabelValues(reply.Kind.String()).Inc()
	if c.bus != nil {
		c.bus.Publish(events.ReplyEvent{Reply: reply})
	}
	c.log.Debugf("reply %s from %s: %s", reply.InterruptID, reply.VehicleID, reply.Kind)
	if handler != nil {
		handler(reply)
	}
}

// PendingReplies returns the number of interrupts still awaiting a reply.
func (c *Coordinator) PendingReplies() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingReplies
}

// Outstanding returns the number of unresolved modification attempts.
func (c *Coordinator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byVehicle)
}

// ApplyMutation sends the new schedule to the vehicle, or abandons the
// attempt when the recorded reply shows the vehicle went offline first. A
// prior recorded reply is required. The mandatory send order for a vehicle
// that does receive the mutation is StopDriving (only if it was driving),
// then ModifyPassengerSchedule, then Resume.
func (c *Coordinator) ApplyMutation(id model.VehicleID, newSchedule schedule.PassengerSchedule, tick int64, reservationID *model.RequestID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.byVehicle[id]
	if !ok {
		c.protocolError(id, tick, "mutation requested for vehicle with no recorded attempt")
		return
	}
	if a.reply == nil {
		c.protocolError(id, tick, fmt.Sprintf("mutation requested before interrupt %s was answered", a.interruptID))
		return
	}
	if reservationID == nil {
		reservationID = a.reservationID
	}
	switch a.reply.Kind {
	case agent.InterruptedWhileOffline:
		// The vehicle already committed elsewhere; no schedule is sent.
		c.clearAttempt(a)
		a.agent.Send(agent.Resume{})
		c.wave.Resolve(id)
		if a.origin.reservationBound() && reservationID != nil {
			c.reservations.OnReservationFailed(*reservationID, id, tick)
		}
		c.resolveMetrics(a, tick, reservationID, true)
		c.log.Warnf("attempt on %s abandoned: vehicle offline (%s)", id, a.origin)
	case agent.InterruptedWhileDriving:
		a.agent.Send(agent.StopDriving{Tick: tick})
		c.sendSchedule(a, newSchedule, tick, reservationID)
	case agent.InterruptedWhileIdle:
		c.sendSchedule(a, newSchedule, tick, reservationID)
	default:
		c.protocolError(id, tick, fmt.Sprintf("unrecognized reply kind %d for interrupt %s", a.reply.Kind, a.interruptID))
	}
}

// sendSchedule delivers the mutation and resumes the vehicle. Callers must
// hold c.mu.
func (c *Coordinator) sendSchedule(a *attempt, newSchedule schedule.PassengerSchedule, tick int64, reservationID *model.RequestID) {
	a.agent.Send(agent.ModifyPassengerSchedule{Schedule: newSchedule, Tick: tick, ReservationID: reservationID})
	a.agent.Send(agent.Resume{})
	a.newSchedule = &newSchedule
	a.status = modifySent
	scheduleMutations.WithLabelValues(string(events.MutationSent)).Inc()
	if c.bus != nil {
		c.bus.Publish(events.MutationEvent{VehicleID: a.vehicleID, Outcome: events.MutationSent, Tick: tick, ReservationID: reservationID})
	}
	c.log.Debugf("schedule with %d legs sent to %s", newSchedule.Len(), a.vehicleID)
}

// AcknowledgeMutation resolves an attempt once the vehicle confirmed the new
// schedule took effect. Follow-up triggers are accumulated for the wave's
// completion notice.
func (c *Coordinator) AcknowledgeMutation(id model.VehicleID, triggers []scheduler.Trigger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.byVehicle[id]
	if !ok {
		c.log.Errorf("mutation acknowledgment from %s without an attempt", id)
		return
	}
	if a.status != modifySent {
		c.protocolError(id, a.tick, fmt.Sprintf("acknowledgment in state %s", a.status))
		return
	}
	c.clearAttempt(a)
	c.wave.AddTriggers(triggers)
	c.wave.Resolve(id)
	c.resolveMetrics(a, a.tick, a.reservationID, false)
	c.log.Debugf("mutation on %s acknowledged with %d follow-up triggers", id, len(triggers))
}

// ClearAllPendingInterrupts resumes every vehicle still holding an
// outstanding attempt and empties both indices. Used on shutdown and error
// recovery so no agent is left paused indefinitely. Calling it again is a
// no-op.
func (c *Coordinator) ClearAllPendingInterrupts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.byVehicle) == 0 {
		return
	}
	n := len(c.byVehicle)
	for _, a := range c.byVehicle {
		a.agent.Send(agent.Resume{})
	}
	c.byInterrupt = make(map[model.InterruptID]*attempt)
	c.byVehicle = make(map[model.VehicleID]*attempt)
	c.pendingReplies = 0
	c.log.Warnf("cleared %d pending interrupts", n)
}

// protocolError logs the violation and drops the vehicle's wave membership
// so the wave can still complete. The attempt, if any, is abandoned and the
// vehicle resumed; there is no automatic retry. Callers must hold c.mu.
func (c *Coordinator) protocolError(id model.VehicleID, tick int64, msg string) {
	protocolErrors.Inc()
	c.log.Errorf("protocol error for %s: %s", id, msg)
	if a, ok := c.byVehicle[id]; ok {
		c.clearAttempt(a)
		a.agent.Send(agent.Resume{})
	}
	c.wave.Drop(id)
	scheduleMutations.WithLabelValues(string(events.MutationRejected)).Inc()
	if c.bus != nil {
		c.bus.Publish(events.MutationEvent{VehicleID: id, Outcome: events.MutationRejected, Tick: tick})
	}
}

// clearAttempt removes the attempt from both indices. Callers must hold
// c.mu.
func (c *Coordinator) clearAttempt(a *attempt) {
	delete(c.byInterrupt, a.interruptID)
	delete(c.byVehicle, a.vehicleID)
}

// resolveMetrics records one terminal outcome. Callers must hold c.mu.
func (c *Coordinator) resolveMetrics(a *attempt, tick int64, reservationID *model.RequestID, abandoned bool) {
	if abandoned {
		scheduleMutations.WithLabelValues(string(events.MutationAbandoned)).Inc()
		if c.bus != nil {
			c.bus.Publish(events.MutationEvent{VehicleID: a.vehicleID, Outcome: events.MutationAbandoned, Tick: tick, ReservationID: reservationID})
		}
	}
	kind := scheduler.WaveReposition
	if a.origin.reservationBound() {
		kind = scheduler.WaveBatchedReservation
	}
	if err := c.sink.RecordMutations([]metrics.MutationRecord{{
		VehicleID:     a.vehicleID,
		Kind:          kind,
		Abandoned:     abandoned,
		ReservationID: reservationID,
		Tick:          tick,
		Time:          time.Now(),
	}}); err != nil {
		c.log.Errorf("mutation metrics error: %v", err)
	}
}
