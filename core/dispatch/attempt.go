package dispatch

import (
	"github.com/kilianp07/fleetsim/core/agent"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/schedule"
)

// Origin identifies who initiated a modification attempt. It determines the
// abandonment policy when the vehicle turns out to be offline.
type Origin int

const (
	// OriginBatchedReservation is an attempt created by a reservation wave.
	OriginBatchedReservation Origin = iota
	// OriginSingleReservation is an attempt created for one committed
	// booking outside any wave. It blocks all new attempts on the vehicle
	// until resolved.
	OriginSingleReservation
	// OriginReposition is a non-revenue repositioning attempt.
	OriginReposition
	// OriginHoldForPlanning pauses a vehicle so a reposition wave can plan
	// with its true state.
	OriginHoldForPlanning
)

// String returns a human-readable representation of the origin.
func (o Origin) String() string {
	switch o {
	case OriginBatchedReservation:
		return "batched_reservation"
	case OriginSingleReservation:
		return "single_reservation"
	case OriginReposition:
		return "reposition"
	case OriginHoldForPlanning:
		return "hold_for_planning"
	default:
		return "unknown"
	}
}

// reservationBound reports whether abandoning the attempt must be propagated
// to the reservation subsystem.
func (o Origin) reservationBound() bool {
	return o == OriginBatchedReservation || o == OriginSingleReservation
}

// status is the coordinator's local protocol state for an attempt. It is
// not the vehicle's state.
type status int

const (
	interruptSent status = iota
	modifySent
)

func (s status) String() string {
	switch s {
	case interruptSent:
		return "interrupt_sent"
	case modifySent:
		return "modify_sent"
	default:
		return "unknown"
	}
}

// attempt is one in-flight schedule modification. It lives in both
// coordinator indices from creation until the protocol reaches a terminal
// outcome (mutation acknowledged, or abandoned); it is never left dangling
// across waves.
type attempt struct {
	interruptID   model.InterruptID
	vehicleID     model.VehicleID
	origin        Origin
	tick          int64
	agent         agent.VehicleAgent
	reservationID *model.RequestID

	reply       *agent.InterruptReply
	newSchedule *schedule.PassengerSchedule
	status      status
}
