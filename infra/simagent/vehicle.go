// Package simagent provides in-process simulated vehicle agents: each
// vehicle runs its own goroutine, advances its own timeline, and answers
// coordinator commands through a buffered inbox. It is the standalone
// counterpart of a remote fleet attached over MQTT.
package simagent

import (
	"context"
	"sync"

	"github.com/kilianp07/fleetsim/core/agent"
	"github.com/kilianp07/fleetsim/core/fleet"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/schedule"
)

// Condition is the vehicle's own view of what it is doing. It evolves
// asynchronously and may differ from what the coordinator assumed when it
// issued a command.
type Condition int

const (
	// Idle means no schedule is being executed.
	Idle Condition = iota
	// Driving means the vehicle is mid-leg.
	Driving
	// Offline means the vehicle committed elsewhere and takes no schedule.
	Offline
)

// SimVehicle is a simulated vehicle agent. Commands arrive on a buffered
// inbox and are processed by the vehicle's own goroutine, so sends never
// block the coordinator.
type SimVehicle struct {
	id      model.VehicleID
	inbox   chan agent.Message
	replies agent.ReplySink
	acks    agent.MutationAcker
	tracker *fleet.Tracker
	log     logger.Logger

	mu        sync.Mutex
	condition Condition
	paused    bool
	plan      schedule.PassengerSchedule
	pending   *agent.ModifyPassengerSchedule
}

// NewSimVehicle creates a vehicle reporting replies and acknowledgments to
// the given sinks.
func NewSimVehicle(id model.VehicleID, replies agent.ReplySink, acks agent.MutationAcker, tracker *fleet.Tracker, log logger.Logger) *SimVehicle {
	return &SimVehicle{
		id:      id,
		inbox:   make(chan agent.Message, 16),
		replies: replies,
		acks:    acks,
		tracker: tracker,
		log:     log,
	}
}

// ID implements agent.VehicleAgent.
func (v *SimVehicle) ID() model.VehicleID { return v.id }

// Send implements agent.VehicleAgent. Delivery is fire-and-forget; a full
// inbox drops the message, which the simulation treats as a lost command.
func (v *SimVehicle) Send(msg agent.Message) {
	select {
	case v.inbox <- msg:
	default:
		v.log.Errorf("%s: inbox full, dropping %T", v.id, msg)
	}
}

// Run processes commands until the context is done.
func (v *SimVehicle) Run(ctx context.Context) {
	for {
		select {
		case msg := <-v.inbox:
			v.handle(msg)
		case <-ctx.Done():
			return
		}
	}
}

// Drain processes all queued commands synchronously. Tests use it to step
// the vehicle without a goroutine.
func (v *SimVehicle) Drain() {
	for {
		select {
		case msg := <-v.inbox:
			v.handle(msg)
		default:
			return
		}
	}
}

func (v *SimVehicle) handle(msg agent.Message) {
	switch m := msg.(type) {
	case agent.Interrupt:
		v.onInterrupt(m)
	case agent.StopDriving:
		v.onStopDriving(m)
	case agent.ModifyPassengerSchedule:
		v.onModify(m)
	case agent.Resume:
		v.onResume()
	default:
		v.log.Errorf("%s: unknown command %T", v.id, msg)
	}
}

func (v *SimVehicle) onInterrupt(m agent.Interrupt) {
	v.mu.Lock()
	v.paused = true
	reply := agent.InterruptReply{
		InterruptID: m.InterruptID,
		VehicleID:   v.id,
		Tick:        m.Tick,
	}
	switch v.condition {
	case Driving:
		reply.Kind = agent.InterruptedWhileDriving
		plan := v.plan
		reply.Schedule = &plan
	case Offline:
		reply.Kind = agent.InterruptedWhileOffline
	default:
		reply.Kind = agent.InterruptedWhileIdle
	}
	v.mu.Unlock()
	v.replies.OnInterruptReply(reply)
}

func (v *SimVehicle) onStopDriving(agent.StopDriving) {
	v.mu.Lock()
	if v.condition == Driving {
		v.condition = Idle
	}
	v.mu.Unlock()
}

func (v *SimVehicle) onModify(m agent.ModifyPassengerSchedule) {
	v.mu.Lock()
	m2 := m
	v.pending = &m2
	v.mu.Unlock()
}

// onResume applies a pending schedule, confirms it, and continues the
// timeline.
func (v *SimVehicle) onResume() {
	v.mu.Lock()
	v.paused = false
	applied := v.pending
	if applied != nil {
		v.plan = applied.Schedule
		v.pending = nil
		if v.plan.Len() > 0 {
			v.condition = Driving
			if v.tracker != nil {
				v.tracker.SetState(v.id, model.VehicleInService)
			}
		}
	}
	v.mu.Unlock()
	if applied != nil && v.acks != nil {
		v.acks.AcknowledgeMutation(v.id, nil)
	}
}

// Condition returns the vehicle's current internal condition.
func (v *SimVehicle) Condition() Condition {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.condition
}

// Plan returns the schedule the vehicle is executing.
func (v *SimVehicle) Plan() schedule.PassengerSchedule {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.plan
}

// SetCondition overrides the internal condition. The simulation uses it to
// model vehicles going offline between command issuance and interrupt
// delivery.
func (v *SimVehicle) SetCondition(c Condition) {
	v.mu.Lock()
	v.condition = c
	v.mu.Unlock()
	if v.tracker == nil {
		return
	}
	switch c {
	case Idle:
		v.tracker.SetState(v.id, model.VehicleIdle)
	case Driving:
		v.tracker.SetState(v.id, model.VehicleInService)
	case Offline:
		v.tracker.SetState(v.id, model.VehicleOutOfService)
	}
}
