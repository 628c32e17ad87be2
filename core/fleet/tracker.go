// Package fleet holds the authoritative map of vehicle identity to
// operational state and last known location. Other components query and
// mutate it; it owns no protocol logic.
package fleet

import (
	"sort"
	"sync"

	"github.com/kilianp07/fleetsim/core/model"
)

// Status is the tracker's view of one vehicle.
type Status struct {
	VehicleID model.VehicleID
	State     model.VehicleState
	Location  model.Location
}

// Tracker is a thread-safe vehicle state store.
type Tracker struct {
	mu   sync.RWMutex
	data map[model.VehicleID]Status
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{data: make(map[model.VehicleID]Status)}
}

// Register adds or replaces a vehicle record.
func (t *Tracker) Register(id model.VehicleID, state model.VehicleState, loc model.Location) {
	t.mu.Lock()
	t.data[id] = Status{VehicleID: id, State: state, Location: loc}
	t.mu.Unlock()
}

// SetState updates the operational state of a known vehicle. Unknown
// vehicles are ignored.
func (t *Tracker) SetState(id model.VehicleID, state model.VehicleState) {
	t.mu.Lock()
	if st, ok := t.data[id]; ok {
		st.State = state
		t.data[id] = st
	}
	t.mu.Unlock()
}

// MoveTo updates the last known location of a known vehicle.
func (t *Tracker) MoveTo(id model.VehicleID, loc model.Location) {
	t.mu.Lock()
	if st, ok := t.data[id]; ok {
		st.Location = loc
		t.data[id] = st
	}
	t.mu.Unlock()
}

// Get returns the status of a vehicle.
func (t *Tracker) Get(id model.VehicleID) (Status, bool) {
	t.mu.RLock()
	st, ok := t.data[id]
	t.mu.RUnlock()
	return st, ok
}

// Len returns the number of tracked vehicles.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

// Snapshot returns all vehicle records sorted by identifier.
func (t *Tracker) Snapshot() []Status {
	t.mu.RLock()
	out := make([]Status, 0, len(t.data))
	for _, st := range t.data {
		out = append(out, st)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

// IdleWithin returns the idle vehicles within radius meters of center,
// sorted by distance then identifier so results are deterministic for a
// fixed tracker state.
func (t *Tracker) IdleWithin(center model.Location, radius float64) []Status {
	t.mu.RLock()
	var out []Status
	for _, st := range t.data {
		if st.State != model.VehicleIdle {
			continue
		}
		if model.Distance(st.Location, center) <= radius {
			out = append(out, st)
		}
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		di := model.Distance(out[i].Location, center)
		dj := model.Distance(out[j].Location, center)
		if di != dj {
			return di < dj
		}
		return out[i].VehicleID < out[j].VehicleID
	})
	return out
}
