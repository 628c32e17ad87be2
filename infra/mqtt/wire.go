package mqtt

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/kilianp07/fleetsim/core/agent"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/schedule"
)

// commandEnvelope is the JSON frame published on the per-vehicle command
// topic.
type commandEnvelope struct {
	Type          string        `json:"type"`
	VehicleID     string        `json:"vehicle_id"`
	InterruptID   string        `json:"interrupt_id,omitempty"`
	Tick          int64         `json:"tick,omitempty"`
	ReservationID *string       `json:"reservation_id,omitempty"`
	Schedule      *wireSchedule `json:"schedule,omitempty"`
}

const (
	typeInterrupt = "interrupt"
	typeStop      = "stop_driving"
	typeModify    = "modify_schedule"
	typeResume    = "resume"
)

// replyEnvelope is the JSON frame vehicles publish on the reply topic.
type replyEnvelope struct {
	Kind        string        `json:"kind"`
	InterruptID string        `json:"interrupt_id"`
	VehicleID   string        `json:"vehicle_id"`
	Tick        int64         `json:"tick"`
	Schedule    *wireSchedule `json:"schedule,omitempty"`
}

// ackEnvelope is the JSON frame vehicles publish on the ack topic once a
// new schedule took effect.
type ackEnvelope struct {
	VehicleID string        `json:"vehicle_id"`
	Triggers  []wireTrigger `json:"triggers,omitempty"`
}

type wireTrigger struct {
	AtTick int64 `json:"at_tick"`
	Kind   int   `json:"kind"`
}

type wireSchedule struct {
	Legs []wireLeg `json:"legs"`
}

type wireLeg struct {
	StartTick int64     `json:"start_tick"`
	EndTick   int64     `json:"end_tick"`
	From      wirePoint `json:"from"`
	To        wirePoint `json:"to"`
	Riders    []string  `json:"riders,omitempty"`
	Boarders  []string  `json:"boarders,omitempty"`
	Alighters []string  `json:"alighters,omitempty"`
}

type wirePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func encodeSchedule(s schedule.PassengerSchedule) *wireSchedule {
	ws := &wireSchedule{}
	for _, e := range s.Entries() {
		ws.Legs = append(ws.Legs, wireLeg{
			StartTick: e.Leg.StartTick,
			EndTick:   e.Leg.EndTick,
			From:      wirePoint{X: e.Leg.From.X, Y: e.Leg.From.Y},
			To:        wirePoint{X: e.Leg.To.X, Y: e.Leg.To.Y},
			Riders:    passengerIDs(e.Manifest.Riders),
			Boarders:  passengerIDs(e.Manifest.Boarders),
			Alighters: passengerIDs(e.Manifest.Alighters),
		})
	}
	return ws
}

func decodeSchedule(ws *wireSchedule) (schedule.PassengerSchedule, error) {
	s := schedule.New()
	if ws == nil {
		return s, nil
	}
	var err error
	legs := lo.Map(ws.Legs, func(l wireLeg, _ int) schedule.Leg {
		return schedule.Leg{
			StartTick: l.StartTick,
			EndTick:   l.EndTick,
			From:      model.Location{X: l.From.X, Y: l.From.Y},
			To:        model.Location{X: l.To.X, Y: l.To.Y},
		}
	})
	if s, err = s.WithLegs(legs...); err != nil {
		return schedule.PassengerSchedule{}, fmt.Errorf("decode schedule: %w", err)
	}
	// Manifests travel per passenger: each rider is re-bound to the legs it
	// appears on.
	byPassenger := make(map[model.PassengerID][]schedule.Leg)
	for i, l := range ws.Legs {
		for _, p := range l.Riders {
			byPassenger[model.PassengerID(p)] = append(byPassenger[model.PassengerID(p)], legs[i])
		}
	}
	for p, pls := range byPassenger {
		if s, err = s.WithPassenger(p, pls); err != nil {
			return schedule.PassengerSchedule{}, fmt.Errorf("decode schedule: %w", err)
		}
	}
	return s, nil
}

func decodeReplyKind(kind string) (agent.ReplyKind, error) {
	switch kind {
	case agent.InterruptedWhileDriving.String():
		return agent.InterruptedWhileDriving, nil
	case agent.InterruptedWhileIdle.String():
		return agent.InterruptedWhileIdle, nil
	case agent.InterruptedWhileOffline.String():
		return agent.InterruptedWhileOffline, nil
	default:
		return 0, fmt.Errorf("unknown reply kind %q", kind)
	}
}

func passengerIDs(set map[model.PassengerID]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	return lo.Map(lo.Keys(set), func(p model.PassengerID, _ int) string { return string(p) })
}
