package events

import (
	"github.com/kilianp07/fleetsim/core/agent"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/scheduler"
)

// InterruptEvent is published when an interrupt is sent to a vehicle.
type InterruptEvent struct {
	InterruptID model.InterruptID
	VehicleID   model.VehicleID
	Tick        int64
}

// ReplyEvent is published for each interrupt reply. Stale marks replies
// whose interrupt is no longer (or was never) outstanding.
type ReplyEvent struct {
	Reply agent.InterruptReply
	Stale bool
}

// MutationOutcome describes how a modification attempt ended.
type MutationOutcome string

const (
	// MutationSent means the new schedule was delivered to the vehicle.
	MutationSent MutationOutcome = "sent"
	// MutationAbandoned means the attempt ended without a schedule send.
	MutationAbandoned MutationOutcome = "abandoned"
	// MutationRejected means the request violated the mutation protocol.
	MutationRejected MutationOutcome = "rejected"
)

// MutationEvent is published when a schedule mutation resolves.
type MutationEvent struct {
	VehicleID     model.VehicleID
	Outcome       MutationOutcome
	Tick          int64
	ReservationID *model.RequestID
}

// WaveEvent is published when a wave begins or completes.
type WaveEvent struct {
	Kind      scheduler.WaveKind
	Tick      int64
	Vehicles  int
	Completed bool
}
