// Package events defines the coordination events emitted on the event bus.
//
// Available event types:
//   - InterruptEvent: interrupt sent to a vehicle agent
//   - ReplyEvent: interrupt reply received (or discarded as stale)
//   - MutationEvent: schedule mutation applied or abandoned
//   - WaveEvent: planning wave begun or completed
package events
