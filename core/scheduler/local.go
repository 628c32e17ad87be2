package scheduler

import (
	"container/heap"
	"sync"
)

// LocalScheduler is a minimal in-process trigger queue used when the
// simulation runs standalone instead of under an external global scheduler.
// Triggers pop in (tick, kind) order.
type LocalScheduler struct {
	mu sync.Mutex
	q  triggerHeap
}

// NewLocalScheduler returns an empty scheduler.
func NewLocalScheduler() *LocalScheduler {
	return &LocalScheduler{}
}

// Push adds a trigger to the queue.
func (s *LocalScheduler) Push(t Trigger) {
	s.mu.Lock()
	heap.Push(&s.q, t)
	s.mu.Unlock()
}

// Next pops the earliest trigger, reporting false when the queue is empty.
func (s *LocalScheduler) Next() (Trigger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.q.Len() == 0 {
		return Trigger{}, false
	}
	return heap.Pop(&s.q).(Trigger), true
}

// Len returns the number of queued triggers.
func (s *LocalScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Len()
}

// CompleteWave implements Scheduler by queueing the notice's follow-up
// triggers.
func (s *LocalScheduler) CompleteWave(notice CompletionNotice) {
	s.mu.Lock()
	for _, t := range notice.Triggers {
		heap.Push(&s.q, t)
	}
	s.mu.Unlock()
}

type triggerHeap []Trigger

func (h triggerHeap) Len() int { return len(h) }
func (h triggerHeap) Less(i, j int) bool {
	if h[i].AtTick != h[j].AtTick {
		return h[i].AtTick < h[j].AtTick
	}
	return h[i].Kind < h[j].Kind
}
func (h triggerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *triggerHeap) Push(x any) { *h = append(*h, x.(Trigger)) }

func (h *triggerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}
