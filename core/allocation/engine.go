// Package allocation selects candidate vehicles for pickup requests from
// the fleet tracker. Allocation is a pure selection step: committing a
// vehicle to the new schedule is the coordinator's job.
package allocation

import (
	"github.com/kilianp07/fleetsim/core/fleet"
	"github.com/kilianp07/fleetsim/core/model"
)

// VehicleAllocation is a proposed match between a request and a vehicle.
type VehicleAllocation struct {
	VehicleID model.VehicleID
	Location  model.Location
	Distance  float64
}

// BatchResult pairs a pickup request with its allocation, nil when no
// vehicle was available.
type BatchResult struct {
	Request    model.PickupRequest
	Allocation *VehicleAllocation
}

// Engine proposes vehicle allocations against a fleet tracker snapshot.
type Engine struct {
	tracker *fleet.Tracker
	radius  float64
}

// NewEngine returns an engine searching within radius meters of each pickup.
func NewEngine(tracker *fleet.Tracker, radius float64) *Engine {
	return &Engine{tracker: tracker, radius: radius}
}

// ProposeAllocation returns the nearest idle vehicle within the search
// radius of the pickup location, or nil when none is available. Ties are
// broken by distance then vehicle identifier, so the result is
// deterministic for a fixed tracker state.
func (e *Engine) ProposeAllocation(pickup model.Location) *VehicleAllocation {
	candidates := e.tracker.IdleWithin(pickup, e.radius)
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	return &VehicleAllocation{
		VehicleID: best.VehicleID,
		Location:  best.Location,
		Distance:  model.Distance(best.Location, pickup),
	}
}

// AllocateBatch assigns vehicles to requests in a single greedy pass: for
// each request in input order, the nearest not-yet-used idle vehicle within
// the radius is taken. Unmatched requests get a nil allocation. This is a
// heuristic with no optimality guarantee; a later request may go unmatched
// because an earlier one took the only vehicle in range.
func (e *Engine) AllocateBatch(requests []model.PickupRequest) []BatchResult {
	used := make(map[model.VehicleID]struct{}, len(requests))
	out := make([]BatchResult, 0, len(requests))
	for _, req := range requests {
		res := BatchResult{Request: req}
		for _, cand := range e.tracker.IdleWithin(req.Pickup, e.radius) {
			if _, taken := used[cand.VehicleID]; taken {
				continue
			}
			used[cand.VehicleID] = struct{}{}
			res.Allocation = &VehicleAllocation{
				VehicleID: cand.VehicleID,
				Location:  cand.Location,
				Distance:  model.Distance(cand.Location, req.Pickup),
			}
			break
		}
		out = append(out, res)
	}
	return out
}
