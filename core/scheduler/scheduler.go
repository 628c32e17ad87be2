package scheduler

import "github.com/google/uuid"

// WaveKind distinguishes the two planning wave families. Their intervals
// are configured independently.
type WaveKind int

const (
	// WaveReposition moves idle vehicles to improve future coverage.
	WaveReposition WaveKind = iota
	// WaveBatchedReservation assigns a buffered batch of reservations.
	WaveBatchedReservation
)

// String returns a human-readable representation of the wave kind.
func (k WaveKind) String() string {
	switch k {
	case WaveReposition:
		return "reposition"
	case WaveBatchedReservation:
		return "batched_reservation"
	default:
		return "unknown"
	}
}

// TriggerID identifies one timer trigger held by a wave.
type TriggerID string

// NewTriggerID returns a fresh trigger identifier.
func NewTriggerID() TriggerID { return TriggerID(uuid.NewString()) }

// Trigger schedules the next wave of a kind at a tick.
type Trigger struct {
	AtTick int64
	Kind   WaveKind
}

// CompletionNotice is the single report a wave sends back to the global
// scheduler: the trigger it was started under and every follow-up trigger
// gathered while the wave ran.
type CompletionNotice struct {
	TriggerID TriggerID
	Triggers  []Trigger
}

// Scheduler accepts completion notices from the wave controller. The global
// discrete-event scheduler implements this; LocalScheduler implements it for
// standalone runs.
type Scheduler interface {
	CompleteWave(notice CompletionNotice)
}
