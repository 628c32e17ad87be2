// Package dispatch implements the schedule-mutation coordinator and the
// round/wave controller: the single serialized authority that interrupts
// vehicle agents, applies passenger-schedule mutations once their true
// condition is known, and joins each planning wave into exactly one
// completion notice for the global scheduler.
//
// The coordinator never blocks on an individual vehicle. It tracks pending
// interrupt replies with two in-memory indices (by interrupt and by
// vehicle) and reacts to replies in whatever order they arrive. Per-vehicle
// message order is Interrupt, then StopDriving if the vehicle was driving,
// then ModifyPassengerSchedule, then Resume; each message is sent only after
// the effect of the previous one is known.
package dispatch
