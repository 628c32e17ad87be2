package model

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Location is a planar position in meters within the simulated service area.
type Location = r2.Vec

// Distance returns the euclidean distance between two locations in meters.
func Distance(a, b Location) float64 {
	d := r2.Sub(a, b)
	return math.Hypot(d.X, d.Y)
}

// VehicleState describes the operational state of a vehicle as known to the
// fleet tracker. It is the dispatcher's view, not the agent's internal
// driving condition.
type VehicleState int

const (
	// VehicleIdle means the vehicle has no passenger schedule and can be
	// allocated.
	VehicleIdle VehicleState = iota
	// VehicleInService means the vehicle is executing a passenger schedule.
	VehicleInService
	// VehicleOutOfService means the vehicle is unavailable for allocation
	// (committed elsewhere, charging, or parked off-shift).
	VehicleOutOfService
)

// String returns a human-readable representation of the state.
func (s VehicleState) String() string {
	switch s {
	case VehicleIdle:
		return "idle"
	case VehicleInService:
		return "in_service"
	case VehicleOutOfService:
		return "out_of_service"
	default:
		return "unknown"
	}
}
