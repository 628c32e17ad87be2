package agent

import (
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/schedule"
	"github.com/kilianp07/fleetsim/core/scheduler"
)

// ReplyKind tags an interrupt reply with the vehicle's true condition at the
// moment the interrupt was delivered. Agents evolve asynchronously between
// command issuance and interrupt delivery, so this may differ from what the
// coordinator assumed.
type ReplyKind int

const (
	// InterruptedWhileDriving reports the vehicle was mid-leg; the reply
	// carries its current schedule.
	InterruptedWhileDriving ReplyKind = iota
	// InterruptedWhileIdle reports the vehicle had no schedule to execute.
	InterruptedWhileIdle
	// InterruptedWhileOffline reports the vehicle already committed
	// elsewhere and cannot take a new schedule.
	InterruptedWhileOffline
)

// String returns a human-readable representation of the reply kind.
func (k ReplyKind) String() string {
	switch k {
	case InterruptedWhileDriving:
		return "interrupted_while_driving"
	case InterruptedWhileIdle:
		return "interrupted_while_idle"
	case InterruptedWhileOffline:
		return "interrupted_while_offline"
	default:
		return "unknown"
	}
}

// InterruptReply is the agent's answer to an Interrupt. It is a closed
// tagged type; consumers dispatch on Kind only. Schedule is set only when
// Kind is InterruptedWhileDriving.
type InterruptReply struct {
	Kind        ReplyKind
	InterruptID model.InterruptID
	VehicleID   model.VehicleID
	Tick        int64
	Schedule    *schedule.PassengerSchedule
}

// ReplySink receives interrupt replies from agents. Implemented by the
// coordinator.
type ReplySink interface {
	OnInterruptReply(reply InterruptReply)
}

// MutationAcker receives a vehicle's confirmation that a new schedule took
// effect, together with the follow-up triggers the vehicle derived from it.
// Implemented by the coordinator.
type MutationAcker interface {
	AcknowledgeMutation(id model.VehicleID, triggers []scheduler.Trigger)
}
