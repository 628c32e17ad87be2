// Package schedule implements the immutable passenger schedule held by a
// vehicle: an ordered sequence of legs, each annotated with the passengers
// that ride, board, or alight on it. Every mutation returns a new schedule
// so that a plan can be shared safely between components while a mutation is
// still being negotiated with the vehicle.
package schedule

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/kilianp07/fleetsim/core/model"
)

// Leg is one driving segment of a passenger schedule. Legs are ordered by
// (StartTick, duration) and must not overlap within one schedule.
type Leg struct {
	StartTick int64
	EndTick   int64
	From      model.Location
	To        model.Location
}

// Duration returns the leg duration in ticks.
func (l Leg) Duration() int64 { return l.EndTick - l.StartTick }

// Manifest records which passengers ride, board, or alight on a leg. A
// passenger appears as boarder only on the first leg of their ride and as
// alighter only on the last.
type Manifest struct {
	Riders    map[model.PassengerID]struct{}
	Boarders  map[model.PassengerID]struct{}
	Alighters map[model.PassengerID]struct{}
}

func newManifest() Manifest {
	return Manifest{
		Riders:    make(map[model.PassengerID]struct{}),
		Boarders:  make(map[model.PassengerID]struct{}),
		Alighters: make(map[model.PassengerID]struct{}),
	}
}

func (m Manifest) clone() Manifest {
	c := newManifest()
	for p := range m.Riders {
		c.Riders[p] = struct{}{}
	}
	for p := range m.Boarders {
		c.Boarders[p] = struct{}{}
	}
	for p := range m.Alighters {
		c.Alighters[p] = struct{}{}
	}
	return c
}

// Entry pairs a leg with its manifest.
type Entry struct {
	Leg      Leg
	Manifest Manifest
}

// PassengerSchedule is an ordered sequence of legs with per-leg manifests.
// The zero value is an empty schedule ready for use.
type PassengerSchedule struct {
	entries []Entry
}

// New returns an empty schedule.
func New() PassengerSchedule { return PassengerSchedule{} }

// Entries returns a copy of the schedule entries in time order.
func (s PassengerSchedule) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of legs in the schedule.
func (s PassengerSchedule) Len() int { return len(s.entries) }

// Legs returns the legs of the schedule in time order.
func (s PassengerSchedule) Legs() []Leg {
	return lo.Map(s.entries, func(e Entry, _ int) Leg { return e.Leg })
}

// WithLegs returns a new schedule with the given legs appended, each with an
// empty manifest. Callers must supply legs already ordered by
// (StartTick, duration); ordering is a construction-time invariant and is
// validated, not repaired.
func (s PassengerSchedule) WithLegs(legs ...Leg) (PassengerSchedule, error) {
	out := s.clone()
	for _, leg := range legs {
		if leg.EndTick < leg.StartTick {
			return PassengerSchedule{}, fmt.Errorf("schedule: leg ends at %d before it starts at %d", leg.EndTick, leg.StartTick)
		}
		if n := len(out.entries); n > 0 {
			prev := out.entries[n-1].Leg
			if legBefore(leg, prev) {
				return PassengerSchedule{}, fmt.Errorf("schedule: leg starting at %d is out of order", leg.StartTick)
			}
			if leg.StartTick < prev.EndTick {
				return PassengerSchedule{}, fmt.Errorf("schedule: leg starting at %d overlaps previous leg ending at %d", leg.StartTick, prev.EndTick)
			}
		}
		out.entries = append(out.entries, Entry{Leg: leg, Manifest: newManifest()})
	}
	return out, nil
}

// WithPassenger returns a new schedule with the passenger bound to the given
// legs: the passenger rides every listed leg, boards on the first and
// alights on the last. All legs must already be part of the schedule; legs
// are added first, passengers second.
func (s PassengerSchedule) WithPassenger(p model.PassengerID, legs []Leg) (PassengerSchedule, error) {
	if len(legs) == 0 {
		return PassengerSchedule{}, fmt.Errorf("schedule: passenger %s bound to no legs", p)
	}
	out := s.clone()
	idx := make([]int, 0, len(legs))
	for _, leg := range legs {
		i, ok := out.indexOf(leg)
		if !ok {
			return PassengerSchedule{}, fmt.Errorf("schedule: leg starting at %d not found for passenger %s", leg.StartTick, p)
		}
		idx = append(idx, i)
	}
	for _, i := range idx {
		out.entries[i].Manifest.Riders[p] = struct{}{}
	}
	out.entries[idx[0]].Manifest.Boarders[p] = struct{}{}
	out.entries[idx[len(idx)-1]].Manifest.Alighters[p] = struct{}{}
	return out, nil
}

func (s PassengerSchedule) indexOf(leg Leg) (int, bool) {
	for i, e := range s.entries {
		if e.Leg == leg {
			return i, true
		}
	}
	return 0, false
}

func (s PassengerSchedule) clone() PassengerSchedule {
	entries := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		entries[i] = Entry{Leg: e.Leg, Manifest: e.Manifest.clone()}
	}
	return PassengerSchedule{entries: entries}
}

// legBefore orders legs by (StartTick, duration).
func legBefore(a, b Leg) bool {
	if a.StartTick != b.StartTick {
		return a.StartTick < b.StartTick
	}
	return a.Duration() < b.Duration()
}
