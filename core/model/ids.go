package model

import "github.com/google/uuid"

// VehicleID identifies a simulated vehicle. Stable for the vehicle's lifetime.
type VehicleID string

// PassengerID identifies a logical passenger riding on a schedule leg.
type PassengerID string

// RequestID identifies a pickup/reservation request issued by the
// reservation subsystem.
type RequestID string

// InterruptID identifies one outstanding interrupt request. A fresh ID is
// generated per interrupt attempt and is unique process-wide for its
// lifetime.
type InterruptID string

// NewInterruptID returns a fresh collision-free interrupt identifier.
func NewInterruptID() InterruptID {
	return InterruptID(uuid.NewString())
}
