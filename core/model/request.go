package model

// PickupRequest is a passenger pickup issued by the reservation subsystem.
// Requests are processed in the order they were received.
type PickupRequest struct {
	ID     RequestID
	Pickup Location
}
