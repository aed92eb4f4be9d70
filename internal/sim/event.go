package sim

import "container/heap"

// EventKind distinguishes what a scheduled event does once popped.
type EventKind string

const (
	EventDeliverMessage EventKind = "DeliverMessage"
	EventHeartbeat      EventKind = "Heartbeat"
	EventViewTimeout    EventKind = "ViewTimeout"
	EventCrash          EventKind = "Crash"
	EventRestart        EventKind = "Restart"
	EventClientRequest  EventKind = "ClientRequest"
)

// Event is one entry in the simulator's priority queue, ordered by
// (At, seq) so two events scheduled for the same tick still resolve in a
// deterministic, insertion-stable order (spec §9: "priority queue keyed
// by logical time + tiebreak id").
type Event struct {
	At      Tick
	Kind    EventKind
	Replica int // target replica index, -1 if not replica-scoped
	Payload any

	seq int // tiebreak, assigned by eventQueue.Push
}

type eventQueue struct {
	items []*Event
	next  int
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	heap.Init(q)
	return q
}

func (q *eventQueue) Len() int { return len(q.items) }

func (q *eventQueue) Less(i, j int) bool {
	if q.items[i].At != q.items[j].At {
		return q.items[i].At < q.items[j].At
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *eventQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *eventQueue) Push(x any) {
	e := x.(*Event)
	e.seq = q.next
	q.next++
	q.items = append(q.items, e)
}

func (q *eventQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}

// Schedule enqueues e for delivery at e.At.
func (q *eventQueue) Schedule(e *Event) { heap.Push(q, e) }

// PopNext removes and returns the earliest-scheduled event, or nil if
// the queue is empty.
func (q *eventQueue) PopNext() *Event {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*Event)
}
