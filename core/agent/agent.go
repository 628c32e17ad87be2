// Package agent defines the capability the coordinator requires from a
// vehicle agent and the closed set of messages exchanged with it. The
// coordinator depends only on this capability, never on the concurrency
// primitive behind it (goroutine inbox, MQTT bridge, ...).
package agent

import (
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/schedule"
)

// VehicleAgent is one independently executing vehicle. Send is asynchronous
// and fire-and-forget; delivery order is preserved per agent.
type VehicleAgent interface {
	ID() model.VehicleID
	Send(msg Message)
}

// Registry resolves vehicle identifiers to their agents.
type Registry interface {
	Agent(id model.VehicleID) (VehicleAgent, bool)
}

// Message is a command sent from the coordinator to a vehicle agent. The set
// of implementations is closed: Interrupt, StopDriving,
// ModifyPassengerSchedule and Resume.
type Message interface {
	isMessage()
}

// Interrupt asks the agent to pause its current leg execution and report its
// true condition back to the coordinator.
type Interrupt struct {
	InterruptID model.InterruptID
	Tick        int64
}

// StopDriving tells a driving agent to abort its current leg. It is sent
// only after an interrupt reply confirmed the vehicle was driving, and
// always before a new schedule.
type StopDriving struct {
	Tick int64
}

// ModifyPassengerSchedule replaces the agent's passenger schedule. When the
// mutation is tied to a booking, ReservationID carries the request.
type ModifyPassengerSchedule struct {
	Schedule      schedule.PassengerSchedule
	Tick          int64
	ReservationID *model.RequestID
}

// Resume tells a paused agent to continue executing its timeline.
type Resume struct{}

func (Interrupt) isMessage()               {}
func (StopDriving) isMessage()             {}
func (ModifyPassengerSchedule) isMessage() {}
func (Resume) isMessage()                  {}
