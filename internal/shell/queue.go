package shell

import (
	"sync"

	"github.com/kimberlite-db/kimberlite/internal/kernel"
)

// Proposal is one client request waiting to be handed to the VSR leader.
type Proposal struct {
	ClientID  uint64
	RequestID uint64
	Command   kernel.Command
	done      chan ProposalResult
}

// ProposalResult is delivered to the submitter once the proposal's op has
// committed (or the proposal was rejected outright).
type ProposalResult struct {
	Err     error
	Applied bool
}

// proposalQueue is a bounded FIFO queue of pending proposals. Unlike the
// teacher's event queue (deliberately unbounded, since cascading sync
// rule firings must never block), client proposals are subject to the
// concurrency model's admission control (spec §5): once Capacity
// proposals are outstanding, Enqueue blocks rather than growing without
// bound, so a stalled view change applies backpressure all the way to
// the client instead of accumulating unbounded memory.
type proposalQueue struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	items    []*Proposal
	capacity int
	closed   bool
}

func newProposalQueue(capacity int) *proposalQueue {
	q := &proposalQueue{capacity: capacity}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue blocks until there is room, the queue is closed, or ok is false
// (queue closed, proposal rejected).
func (q *proposalQueue) Enqueue(p *Proposal) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) >= q.capacity && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return false
	}
	q.items = append(q.items, p)
	q.notEmpty.Signal()
	return true
}

// Dequeue blocks until an item is available or the queue is closed and
// drained.
func (q *proposalQueue) Dequeue() (*Proposal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	p := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.notFull.Signal()
	return p, true
}

func (q *proposalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *proposalQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
