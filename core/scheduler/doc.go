// Package scheduler defines the contract with the step-synchronized global
// scheduler: planning waves are started by timer triggers, and each wave
// reports back exactly one completion notice carrying the follow-up
// triggers accumulated during the wave. A heap-based local implementation
// is provided for standalone simulation runs.
package scheduler
