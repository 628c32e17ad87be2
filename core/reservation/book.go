// Package reservation holds the coordinator-facing side of the reservation
// subsystem: a callback for mutation attempts that failed because the
// vehicle went offline first, and an in-memory book recording them. Retry
// and fallback policy belong to the reservation subsystem, not to the
// coordinator.
package reservation

import (
	"sync"

	"github.com/kilianp07/fleetsim/core/model"
)

// FailureHandler receives reservation mutations the coordinator abandoned.
type FailureHandler interface {
	OnReservationFailed(id model.RequestID, vehicle model.VehicleID, tick int64)
}

// Failure is one abandoned reservation mutation.
type Failure struct {
	RequestID model.RequestID
	VehicleID model.VehicleID
	Tick      int64
}

// Book is an in-memory FailureHandler that keeps failed reservations
// available for the caller's retry or fallback policy.
type Book struct {
	mu     sync.Mutex
	failed []Failure
}

// NewBook returns an empty book.
func NewBook() *Book { return &Book{} }

// OnReservationFailed records the failure.
func (b *Book) OnReservationFailed(id model.RequestID, vehicle model.VehicleID, tick int64) {
	b.mu.Lock()
	b.failed = append(b.failed, Failure{RequestID: id, VehicleID: vehicle, Tick: tick})
	b.mu.Unlock()
}

// Failed returns a copy of the recorded failures in arrival order.
func (b *Book) Failed() []Failure {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Failure, len(b.failed))
	copy(out, b.failed)
	return out
}

// NopHandler ignores failures.
type NopHandler struct{}

func (NopHandler) OnReservationFailed(model.RequestID, model.VehicleID, int64) {}
