package simagent

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/kilianp07/fleetsim/core/agent"
	"github.com/kilianp07/fleetsim/core/fleet"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/model"
)

// Fleet is a set of simulated vehicles implementing agent.Registry.
type Fleet struct {
	mu       sync.RWMutex
	vehicles map[model.VehicleID]*SimVehicle
}

// NewFleet returns an empty fleet.
func NewFleet() *Fleet {
	return &Fleet{vehicles: make(map[model.VehicleID]*SimVehicle)}
}

// Add registers a vehicle.
func (f *Fleet) Add(v *SimVehicle) {
	f.mu.Lock()
	f.vehicles[v.ID()] = v
	f.mu.Unlock()
}

// Agent implements agent.Registry.
func (f *Fleet) Agent(id model.VehicleID) (agent.VehicleAgent, bool) {
	f.mu.RLock()
	v, ok := f.vehicles[id]
	f.mu.RUnlock()
	return v, ok
}

// Vehicle returns the simulated vehicle behind an identifier.
func (f *Fleet) Vehicle(id model.VehicleID) (*SimVehicle, bool) {
	f.mu.RLock()
	v, ok := f.vehicles[id]
	f.mu.RUnlock()
	return v, ok
}

// Each calls fn for every vehicle in the fleet.
func (f *Fleet) Each(fn func(v *SimVehicle)) {
	f.mu.RLock()
	vs := make([]*SimVehicle, 0, len(f.vehicles))
	for _, v := range f.vehicles {
		vs = append(vs, v)
	}
	f.mu.RUnlock()
	for _, v := range vs {
		fn(v)
	}
}

// Run starts every vehicle goroutine and blocks until the context is done.
func (f *Fleet) Run(ctx context.Context) {
	f.mu.RLock()
	vs := make([]*SimVehicle, 0, len(f.vehicles))
	for _, v := range f.vehicles {
		vs = append(vs, v)
	}
	f.mu.RUnlock()
	var wg sync.WaitGroup
	for _, v := range vs {
		wg.Add(1)
		go func(v *SimVehicle) {
			defer wg.Done()
			v.Run(ctx)
		}(v)
	}
	wg.Wait()
}

// GenerateConfig holds parameters for bulk fleet generation.
type GenerateConfig struct {
	Size int
	Seed int64
	// AreaM is the side length in meters of the square service area the
	// vehicles start in.
	AreaM float64
}

// GenerateFleet creates Size idle vehicles with IDs veh0001..vehNNNN at
// deterministic pseudo-random starting locations, registered with the
// tracker and wired to the given sinks.
func GenerateFleet(cfg GenerateConfig, replies agent.ReplySink, acks agent.MutationAcker, tracker *fleet.Tracker, log logger.Logger) *Fleet {
	f := NewFleet()
	if cfg.Size <= 0 {
		return f
	}
	area := cfg.AreaM
	if area <= 0 {
		area = 10000
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	for i := 0; i < cfg.Size; i++ {
		id := model.VehicleID(fmt.Sprintf("veh%04d", i+1))
		loc := model.Location{X: rng.Float64() * area, Y: rng.Float64() * area}
		if tracker != nil {
			tracker.Register(id, model.VehicleIdle, loc)
		}
		f.Add(NewSimVehicle(id, replies, acks, tracker, log))
	}
	return f
}
