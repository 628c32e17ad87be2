package scheduler

import "testing"

func TestLocalScheduler_PopsInTickOrder(t *testing.T) {
	s := NewLocalScheduler()
	s.Push(Trigger{AtTick: 300, Kind: WaveReposition})
	s.Push(Trigger{AtTick: 60, Kind: WaveBatchedReservation})
	s.Push(Trigger{AtTick: 120, Kind: WaveBatchedReservation})

	want := []int64{60, 120, 300}
	for i, tick := range want {
		trig, ok := s.Next()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if trig.AtTick != tick {
			t.Fatalf("pop %d: got tick %d want %d", i, trig.AtTick, tick)
		}
	}
	if _, ok := s.Next(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestLocalScheduler_SameTickOrdersByKind(t *testing.T) {
	s := NewLocalScheduler()
	s.Push(Trigger{AtTick: 100, Kind: WaveBatchedReservation})
	s.Push(Trigger{AtTick: 100, Kind: WaveReposition})

	first, _ := s.Next()
	if first.Kind != WaveReposition {
		t.Fatalf("expected reposition first at equal ticks got %s", first.Kind)
	}
}

func TestLocalScheduler_CompleteWaveQueuesFollowUps(t *testing.T) {
	s := NewLocalScheduler()
	s.CompleteWave(CompletionNotice{
		TriggerID: NewTriggerID(),
		Triggers: []Trigger{
			{AtTick: 400, Kind: WaveReposition},
			{AtTick: 160, Kind: WaveBatchedReservation},
		},
	})
	if s.Len() != 2 {
		t.Fatalf("expected 2 queued triggers got %d", s.Len())
	}
	trig, _ := s.Next()
	if trig.AtTick != 160 {
		t.Fatalf("expected earliest follow-up first got tick %d", trig.AtTick)
	}
}
