package dispatch

import (
	"sync"
	"testing"

	"github.com/kilianp07/fleetsim/core/agent"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/reservation"
	"github.com/kilianp07/fleetsim/core/schedule"
	"github.com/kilianp07/fleetsim/core/scheduler"
	"github.com/kilianp07/fleetsim/infra/logger"
)

type fakeAgent struct {
	id   model.VehicleID
	mu   sync.Mutex
	msgs []agent.Message
}

func (f *fakeAgent) ID() model.VehicleID { return f.id }

func (f *fakeAgent) Send(msg agent.Message) {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
}

func (f *fakeAgent) sent() []agent.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]agent.Message, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func (f *fakeAgent) lastInterruptID() model.InterruptID {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if in, ok := f.msgs[i].(agent.Interrupt); ok {
			return in.InterruptID
		}
	}
	return ""
}

type fakeRegistry map[model.VehicleID]*fakeAgent

func (r fakeRegistry) Agent(id model.VehicleID) (agent.VehicleAgent, bool) {
	ag, ok := r[id]
	return ag, ok
}

type fakeScheduler struct {
	mu      sync.Mutex
	notices []scheduler.CompletionNotice
}

func (s *fakeScheduler) CompleteWave(notice scheduler.CompletionNotice) {
	s.mu.Lock()
	s.notices = append(s.notices, notice)
	s.mu.Unlock()
}

func (s *fakeScheduler) completed() []scheduler.CompletionNotice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scheduler.CompletionNotice, len(s.notices))
	copy(out, s.notices)
	return out
}

func testConfig() Config {
	return Config{RepositionIntervalTicks: 300, ReservationBufferTicks: 60, SearchRadiusM: 5000}
}

func newTestCoordinator(t *testing.T, reg fakeRegistry, failures reservation.FailureHandler) (*Coordinator, *fakeScheduler) {
	t.Helper()
	sched := &fakeScheduler{}
	wave, err := NewWaveController(testConfig(), sched, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("wave controller: %v", err)
	}
	coord, err := NewCoordinator(reg, wave, failures, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
	return coord, sched
}

func oneLegSchedule(t *testing.T, start, end int64) schedule.PassengerSchedule {
	t.Helper()
	sched, err := schedule.New().WithLegs(schedule.Leg{StartTick: start, EndTick: end})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	return sched
}

func reply(ag *fakeAgent, kind agent.ReplyKind, tick int64) agent.InterruptReply {
	return agent.InterruptReply{
		Kind:        kind,
		InterruptID: ag.lastInterruptID(),
		VehicleID:   ag.id,
		Tick:        tick,
	}
}

func TestCoordinator_WaveInterruptsCohort(t *testing.T) {
	reg := fakeRegistry{
		"veh1": {id: "veh1"},
		"veh2": {id: "veh2"},
		"veh3": {id: "veh3"},
	}
	coord, sched := newTestCoordinator(t, reg, nil)

	cohort := []model.VehicleID{"veh1", "veh2", "veh3"}
	if err := coord.Wave().Begin(scheduler.WaveReposition, scheduler.NewTriggerID(), 100, cohort); err != nil {
		t.Fatalf("begin wave: %v", err)
	}
	coord.BeginWave(scheduler.WaveReposition, cohort, 100)

	if got := coord.PendingReplies(); got != 3 {
		t.Fatalf("expected 3 pending replies got %d", got)
	}
	for _, ag := range reg {
		msgs := ag.sent()
		if len(msgs) != 1 {
			t.Fatalf("%s: expected 1 message got %d", ag.id, len(msgs))
		}
		if _, ok := msgs[0].(agent.Interrupt); !ok {
			t.Fatalf("%s: expected Interrupt got %T", ag.id, msgs[0])
		}
	}

	newSched := oneLegSchedule(t, 100, 160)
	for _, id := range cohort {
		ag := reg[id]
		coord.OnInterruptReply(reply(ag, agent.InterruptedWhileIdle, 100))
		coord.ApplyMutation(id, newSched, 100, nil)
		coord.AcknowledgeMutation(id, nil)
	}

	if got := coord.Outstanding(); got != 0 {
		t.Fatalf("expected 0 outstanding attempts got %d", got)
	}
	notices := sched.completed()
	if len(notices) != 1 {
		t.Fatalf("expected exactly 1 completion notice got %d", len(notices))
	}
	if len(notices[0].Triggers) != 1 {
		t.Fatalf("expected 1 follow-up trigger got %d", len(notices[0].Triggers))
	}
	next := notices[0].Triggers[0]
	if next.AtTick != 400 || next.Kind != scheduler.WaveReposition {
		t.Fatalf("expected reposition trigger at 400 got %+v", next)
	}
}

func TestCoordinator_AtMostOneAttemptPerVehicle(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}}
	coord, _ := newTestCoordinator(t, reg, nil)

	if err := coord.BeginReservation("veh1", 10, "req-a"); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if err := coord.BeginReservation("veh1", 11, "req-b"); err == nil {
		t.Fatal("expected second attempt on the same vehicle to fail")
	}
	if got := len(reg["veh1"].sent()); got != 1 {
		t.Fatalf("expected 1 interrupt sent got %d messages", got)
	}
}

func TestCoordinator_SingleReservationBlocksWaveMembership(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}, "veh2": {id: "veh2"}}
	coord, sched := newTestCoordinator(t, reg, nil)

	if err := coord.BeginReservation("veh1", 50, "req-a"); err != nil {
		t.Fatalf("reservation: %v", err)
	}

	cohort := []model.VehicleID{"veh1", "veh2"}
	if err := coord.Wave().Begin(scheduler.WaveReposition, scheduler.NewTriggerID(), 60, cohort); err != nil {
		t.Fatalf("begin wave: %v", err)
	}
	coord.BeginWave(scheduler.WaveReposition, cohort, 60)

	// veh1 keeps only the reservation interrupt; its wave membership is
	// cancelled so the wave can still finish on veh2 alone.
	if got := len(reg["veh1"].sent()); got != 1 {
		t.Fatalf("veh1: expected 1 message got %d", got)
	}
	ag2 := reg["veh2"]
	coord.OnInterruptReply(reply(ag2, agent.InterruptedWhileIdle, 60))
	coord.ApplyMutation("veh2", oneLegSchedule(t, 60, 90), 60, nil)
	coord.AcknowledgeMutation("veh2", nil)

	if len(sched.completed()) != 1 {
		t.Fatalf("expected wave to complete despite blocked member")
	}
	if coord.Outstanding() != 1 {
		t.Fatalf("reservation attempt should still be outstanding, got %d", coord.Outstanding())
	}
}

func TestCoordinator_DrivingMessageOrder(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}}
	coord, _ := newTestCoordinator(t, reg, nil)
	ag := reg["veh1"]

	if err := coord.BeginReservation("veh1", 20, "req-a"); err != nil {
		t.Fatalf("reservation: %v", err)
	}
	current := oneLegSchedule(t, 10, 40)
	r := reply(ag, agent.InterruptedWhileDriving, 21)
	r.Schedule = &current
	coord.OnInterruptReply(r)
	coord.ApplyMutation("veh1", oneLegSchedule(t, 21, 80), 21, nil)

	msgs := ag.sent()
	want := []string{"agent.Interrupt", "agent.StopDriving", "agent.ModifyPassengerSchedule", "agent.Resume"}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages got %d: %#v", len(want), len(msgs), msgs)
	}
	if _, ok := msgs[0].(agent.Interrupt); !ok {
		t.Fatalf("message 0: expected Interrupt got %T", msgs[0])
	}
	if _, ok := msgs[1].(agent.StopDriving); !ok {
		t.Fatalf("message 1: expected StopDriving got %T", msgs[1])
	}
	if _, ok := msgs[2].(agent.ModifyPassengerSchedule); !ok {
		t.Fatalf("message 2: expected ModifyPassengerSchedule got %T", msgs[2])
	}
	if _, ok := msgs[3].(agent.Resume); !ok {
		t.Fatalf("message 3: expected Resume got %T", msgs[3])
	}

	coord.AcknowledgeMutation("veh1", nil)
	if coord.Outstanding() != 0 {
		t.Fatalf("expected attempt resolved, %d outstanding", coord.Outstanding())
	}
}

func TestCoordinator_IdleSkipsStopDriving(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}}
	coord, _ := newTestCoordinator(t, reg, nil)
	ag := reg["veh1"]

	if err := coord.BeginReservation("veh1", 20, "req-a"); err != nil {
		t.Fatalf("reservation: %v", err)
	}
	coord.OnInterruptReply(reply(ag, agent.InterruptedWhileIdle, 20))
	coord.ApplyMutation("veh1", oneLegSchedule(t, 20, 50), 20, nil)

	for _, m := range ag.sent() {
		if _, ok := m.(agent.StopDriving); ok {
			t.Fatal("StopDriving sent to an idle vehicle")
		}
	}
}

func TestCoordinator_OfflineReservationRecordsFailure(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}}
	book := reservation.NewBook()
	coord, _ := newTestCoordinator(t, reg, book)
	ag := reg["veh1"]

	if err := coord.BeginReservation("veh1", 30, "req-a"); err != nil {
		t.Fatalf("reservation: %v", err)
	}
	coord.OnInterruptReply(reply(ag, agent.InterruptedWhileOffline, 31))
	coord.ApplyMutation("veh1", oneLegSchedule(t, 31, 60), 31, nil)

	failed := book.Failed()
	if len(failed) != 1 {
		t.Fatalf("expected 1 recorded failure got %d", len(failed))
	}
	if failed[0].RequestID != "req-a" || failed[0].VehicleID != "veh1" {
		t.Fatalf("wrong failure recorded: %+v", failed[0])
	}
	// No schedule may reach an offline vehicle, but it is still resumed.
	msgs := ag.sent()
	for _, m := range msgs {
		if _, ok := m.(agent.ModifyPassengerSchedule); ok {
			t.Fatal("schedule sent to an offline vehicle")
		}
	}
	if _, ok := msgs[len(msgs)-1].(agent.Resume); !ok {
		t.Fatalf("expected final Resume got %T", msgs[len(msgs)-1])
	}
	if coord.Outstanding() != 0 {
		t.Fatalf("abandoned attempt left outstanding")
	}
}

func TestCoordinator_OfflineRepositionAbandonsSilently(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}}
	book := reservation.NewBook()
	coord, sched := newTestCoordinator(t, reg, book)
	ag := reg["veh1"]

	cohort := []model.VehicleID{"veh1"}
	if err := coord.Wave().Begin(scheduler.WaveReposition, scheduler.NewTriggerID(), 40, cohort); err != nil {
		t.Fatalf("begin wave: %v", err)
	}
	coord.BeginWave(scheduler.WaveReposition, cohort, 40)
	coord.OnInterruptReply(reply(ag, agent.InterruptedWhileOffline, 41))
	coord.ApplyMutation("veh1", oneLegSchedule(t, 41, 70), 41, nil)

	if len(book.Failed()) != 0 {
		t.Fatalf("reposition abandonment must not reach the reservation handler")
	}
	for _, m := range ag.sent() {
		if _, ok := m.(agent.ModifyPassengerSchedule); ok {
			t.Fatal("schedule sent to an offline vehicle")
		}
	}
	if len(sched.completed()) != 1 {
		t.Fatal("wave must complete after the abandonment")
	}
}

func TestCoordinator_ReplyHandlerDrivesMutation(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}}
	coord, _ := newTestCoordinator(t, reg, nil)
	ag := reg["veh1"]

	// The handler applies the mutation from inside the reply delivery, the
	// way the service drives the protocol. The call must be synchronous:
	// once OnInterruptReply returns, the attempt is fully resolved.
	newSched := oneLegSchedule(t, 10, 40)
	coord.SetReplyHandler(func(r agent.InterruptReply) {
		coord.ApplyMutation(r.VehicleID, newSched, r.Tick, nil)
		coord.AcknowledgeMutation(r.VehicleID, nil)
	})

	if err := coord.BeginReservation("veh1", 10, "req-a"); err != nil {
		t.Fatalf("reservation: %v", err)
	}
	coord.OnInterruptReply(reply(ag, agent.InterruptedWhileIdle, 10))

	if coord.Outstanding() != 0 {
		t.Fatalf("expected attempt resolved by the handler, %d outstanding", coord.Outstanding())
	}
	msgs := ag.sent()
	if _, ok := msgs[len(msgs)-1].(agent.Resume); !ok {
		t.Fatalf("expected final Resume got %T", msgs[len(msgs)-1])
	}
}

func TestCoordinator_ReplyHandlerSkipsStaleReplies(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}}
	coord, _ := newTestCoordinator(t, reg, nil)

	calls := 0
	coord.SetReplyHandler(func(agent.InterruptReply) { calls++ })
	coord.OnInterruptReply(agent.InterruptReply{
		Kind:        agent.InterruptedWhileIdle,
		InterruptID: model.NewInterruptID(),
		VehicleID:   "veh1",
		Tick:        5,
	})
	if calls != 0 {
		t.Fatalf("handler invoked %d times for a stale reply", calls)
	}
}

func TestCoordinator_BeginWaveReportsCancelledMembers(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}, "veh2": {id: "veh2"}}
	coord, _ := newTestCoordinator(t, reg, nil)

	if err := coord.BeginReservation("veh1", 50, "req-a"); err != nil {
		t.Fatalf("reservation: %v", err)
	}
	cohort := []model.VehicleID{"veh1", "veh2"}
	if err := coord.Wave().Begin(scheduler.WaveReposition, scheduler.NewTriggerID(), 60, cohort); err != nil {
		t.Fatalf("begin wave: %v", err)
	}
	dropped := coord.BeginWave(scheduler.WaveReposition, cohort, 60)
	if len(dropped) != 1 || dropped[0] != "veh1" {
		t.Fatalf("expected veh1 reported as cancelled got %v", dropped)
	}
}

func TestCoordinator_StaleReplyIsDiscarded(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}}
	coord, _ := newTestCoordinator(t, reg, nil)

	coord.OnInterruptReply(agent.InterruptReply{
		Kind:        agent.InterruptedWhileIdle,
		InterruptID: model.NewInterruptID(),
		VehicleID:   "veh1",
		Tick:        5,
	})
	if coord.Outstanding() != 0 || coord.PendingReplies() != 0 {
		t.Fatalf("stale reply must not create state: outstanding=%d pending=%d",
			coord.Outstanding(), coord.PendingReplies())
	}
}

func TestCoordinator_MutationBeforeReplyIsProtocolError(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}}
	coord, _ := newTestCoordinator(t, reg, nil)
	ag := reg["veh1"]

	if err := coord.BeginReservation("veh1", 10, "req-a"); err != nil {
		t.Fatalf("reservation: %v", err)
	}
	coord.ApplyMutation("veh1", oneLegSchedule(t, 10, 40), 10, nil)

	// The attempt is dropped and the vehicle resumed so nothing stays paused.
	if coord.Outstanding() != 0 {
		t.Fatalf("expected attempt cleared after protocol error, %d outstanding", coord.Outstanding())
	}
	msgs := ag.sent()
	if _, ok := msgs[len(msgs)-1].(agent.Resume); !ok {
		t.Fatalf("expected Resume after protocol error got %T", msgs[len(msgs)-1])
	}
	for _, m := range msgs {
		if _, ok := m.(agent.ModifyPassengerSchedule); ok {
			t.Fatal("schedule sent despite missing reply")
		}
	}
}

func TestCoordinator_MutationWithoutAttemptIsProtocolError(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}}
	coord, _ := newTestCoordinator(t, reg, nil)

	coord.ApplyMutation("veh9", oneLegSchedule(t, 10, 40), 10, nil)
	if got := len(reg["veh1"].sent()); got != 0 {
		t.Fatalf("unrelated vehicle received %d messages", got)
	}
}

func TestCoordinator_AcknowledgeBeforeModifyIsProtocolError(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}}
	coord, _ := newTestCoordinator(t, reg, nil)

	if err := coord.BeginReservation("veh1", 10, "req-a"); err != nil {
		t.Fatalf("reservation: %v", err)
	}
	coord.AcknowledgeMutation("veh1", nil)
	if coord.Outstanding() != 0 {
		t.Fatalf("expected attempt cleared after premature acknowledgment")
	}
}

func TestCoordinator_ClearAllPendingInterruptsIsIdempotent(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}, "veh2": {id: "veh2"}}
	coord, _ := newTestCoordinator(t, reg, nil)

	if err := coord.BeginReservation("veh1", 10, "req-a"); err != nil {
		t.Fatalf("reservation: %v", err)
	}
	if err := coord.BeginReservation("veh2", 10, "req-b"); err != nil {
		t.Fatalf("reservation: %v", err)
	}

	coord.ClearAllPendingInterrupts()
	if coord.Outstanding() != 0 || coord.PendingReplies() != 0 {
		t.Fatalf("state not cleared: outstanding=%d pending=%d", coord.Outstanding(), coord.PendingReplies())
	}
	for _, ag := range reg {
		msgs := ag.sent()
		if _, ok := msgs[len(msgs)-1].(agent.Resume); !ok {
			t.Fatalf("%s: expected Resume got %T", ag.id, msgs[len(msgs)-1])
		}
	}

	before := len(reg["veh1"].sent())
	coord.ClearAllPendingInterrupts()
	coord.ClearAllPendingInterrupts()
	if got := len(reg["veh1"].sent()); got != before {
		t.Fatalf("repeated clear sent %d extra messages", got-before)
	}

	// The cleared vehicle accepts a fresh attempt.
	if err := coord.BeginReservation("veh1", 20, "req-c"); err != nil {
		t.Fatalf("attempt after clear: %v", err)
	}
}

func TestCoordinator_FollowUpTriggersReachTheNotice(t *testing.T) {
	reg := fakeRegistry{"veh1": {id: "veh1"}}
	coord, sched := newTestCoordinator(t, reg, nil)
	ag := reg["veh1"]

	cohort := []model.VehicleID{"veh1"}
	if err := coord.Wave().Begin(scheduler.WaveBatchedReservation, scheduler.NewTriggerID(), 100, cohort); err != nil {
		t.Fatalf("begin wave: %v", err)
	}
	coord.BeginWave(scheduler.WaveBatchedReservation, cohort, 100)
	coord.OnInterruptReply(reply(ag, agent.InterruptedWhileIdle, 100))
	coord.ApplyMutation("veh1", oneLegSchedule(t, 100, 130), 100, nil)
	coord.AcknowledgeMutation("veh1", []scheduler.Trigger{{AtTick: 130, Kind: scheduler.WaveReposition}})

	notices := sched.completed()
	if len(notices) != 1 {
		t.Fatalf("expected 1 notice got %d", len(notices))
	}
	if len(notices[0].Triggers) != 2 {
		t.Fatalf("expected follow-up plus timer trigger got %d", len(notices[0].Triggers))
	}
	if notices[0].Triggers[0] != (scheduler.Trigger{AtTick: 130, Kind: scheduler.WaveReposition}) {
		t.Fatalf("follow-up trigger lost: %+v", notices[0].Triggers[0])
	}
	timer := notices[0].Triggers[1]
	if timer.AtTick != 160 || timer.Kind != scheduler.WaveBatchedReservation {
		t.Fatalf("expected reservation timer at 160 got %+v", timer)
	}
}

func TestNewCoordinator_NilParams(t *testing.T) {
	sched := &fakeScheduler{}
	wave, err := NewWaveController(testConfig(), sched, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("wave controller: %v", err)
	}
	if _, err := NewCoordinator(nil, wave, nil, nil, nil, logger.NopLogger{}); err == nil {
		t.Fatal("expected error for nil registry")
	}
	if _, err := NewCoordinator(fakeRegistry{}, nil, nil, nil, nil, logger.NopLogger{}); err == nil {
		t.Fatal("expected error for nil wave controller")
	}
	if _, err := NewCoordinator(fakeRegistry{}, wave, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil logger")
	}
}
