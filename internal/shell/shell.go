// Package shell is the impure runtime wrapping internal/kernel's pure
// state machine: it owns the proposal queue, drives the VSR replica
// through Propose/Prepare/PrepareOk, executes the effects apply_committed
// describes against real storage, and persists the durable side-tables
// (checkpoints, sessions, audit log) a restart needs (spec §9).
package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kimberlite-db/kimberlite/internal/ids"
	"github.com/kimberlite-db/kimberlite/internal/kernel"
	"github.com/kimberlite-db/kimberlite/internal/vsr"
)

// Transport delivers VSR protocol messages to the rest of the group. The
// shell never opens sockets itself — that's left to whatever carries
// these messages (in-process channels in tests, the simulator's
// simulated network, or a real RPC layer in production) so internal/shell
// stays agnostic to the wire.
type Transport interface {
	BroadcastPrepare(vsr.Prepare)
	SendPrepareOk(to ids.ReplicaId, ok vsr.PrepareOk)
}

// Clock returns the current time as a monotonic tick count, substitutable
// by the simulator's logical clock.
type Clock func() int64

// Shell drives one replica's proposal pipeline: it dequeues client
// proposals, calls Propose, hands the Prepare to Transport, and — once
// this process observes PrepareOks reach quorum — advances commits and
// executes their effects.
type Shell struct {
	Replica   *vsr.Replica
	Transport Transport
	Executor  *EffectExecutor
	Store     *Store
	Clock     Clock

	queue *proposalQueue

	mu      sync.Mutex
	pending map[ids.OpNumber]*Proposal
}

// New constructs a Shell around an already-initialized replica. capacity
// bounds the number of client proposals admitted before Submit blocks.
func New(replica *vsr.Replica, transport Transport, executor *EffectExecutor, store *Store, clock Clock, capacity int) *Shell {
	return &Shell{
		Replica:   replica,
		Transport: transport,
		Executor:  executor,
		Store:     store,
		Clock:     clock,
		queue:     newProposalQueue(capacity),
		pending:   map[ids.OpNumber]*Proposal{},
	}
}

// Submit enqueues a client command and blocks until it commits (or is
// rejected). It is safe to call concurrently from multiple goroutines.
func (s *Shell) Submit(ctx context.Context, client ids.ClientId, request ids.RequestId, cmd kernel.Command) ProposalResult {
	p := &Proposal{
		ClientID:  uint64(client),
		RequestID: uint64(request),
		Command:   cmd,
		done:      make(chan ProposalResult, 1),
	}
	if !s.queue.Enqueue(p) {
		return ProposalResult{Err: fmt.Errorf("shell: queue closed")}
	}
	select {
	case res := <-p.done:
		return res
	case <-ctx.Done():
		return ProposalResult{Err: ctx.Err()}
	}
}

// Close shuts down the submission queue. In-flight proposals already
// dequeued still run to completion; newly submitted ones are rejected.
func (s *Shell) Close() {
	s.queue.Close()
}

// Run drains the proposal queue on the calling goroutine, driving one
// Propose/Prepare cycle per proposal (spec §4.4's Normal operation,
// restricted here to the leader's own view of the pipeline — backups
// apply incoming Prepare/Commit/Heartbeat messages via HandlePrepare/
// HandlePrepareOk/AdvanceCommits called from the Transport's receive
// side, not from Run). It returns once the queue is closed and drained.
func (s *Shell) Run(ctx context.Context) error {
	for {
		p, ok := s.queue.Dequeue()
		if !ok {
			return nil
		}
		if err := s.proposeOne(ctx, p); err != nil {
			p.done <- ProposalResult{Err: err}
		}
	}
}

func (s *Shell) proposeOne(ctx context.Context, p *Proposal) error {
	prepare, result, err := s.Replica.Propose(ids.ClientId(p.ClientID), ids.RequestId(p.RequestID), p.Command)
	if err != nil {
		return err
	}
	if result.Cached {
		p.done <- ProposalResult{Applied: result.Session.Err == "", Err: cachedErr(result.Session)}
		return nil
	}

	s.mu.Lock()
	s.pending[result.Op] = p
	s.mu.Unlock()

	s.Transport.BroadcastPrepare(*prepare)
	return nil
}

func cachedErr(res vsr.SessionResult) error {
	if res.Err == "" {
		return nil
	}
	return fmt.Errorf("%s", res.Err)
}

// HandlePrepareOk is the Transport's callback once a backup acknowledges
// a Prepare. When this ack reaches quorum, every newly committed op's
// effects are executed and the originating client proposal (if this
// process holds one, i.e. this replica is the leader) is completed.
func (s *Shell) HandlePrepareOk(ok vsr.PrepareOk) error {
	reached, err := s.Replica.HandlePrepareOk(ok)
	if err != nil {
		return err
	}
	if !reached {
		return nil
	}
	return s.advanceAndExecute(context.Background())
}

// HandleHeartbeat is the Transport's callback for a backup receiving the
// leader's Heartbeat, advancing the local commit point to match.
func (s *Shell) HandleHeartbeat(hb vsr.Heartbeat) error {
	committedBefore := s.Replica.CommitNumber
	effectBatches, err := s.Replica.HandleHeartbeat(hb)
	if err != nil {
		return err
	}
	return s.executeBatches(context.Background(), effectBatches, committedBefore)
}

// advanceAndExecute commits every op the local log already holds beyond
// the current commit point. AdvanceCommits stops at the log's tail on
// its own, so passing its length as the target is always safe even if
// more ops are still in flight.
func (s *Shell) advanceAndExecute(ctx context.Context) error {
	committedBefore := s.Replica.CommitNumber
	effectBatches, err := s.Replica.AdvanceCommits(ids.CommitNumber(len(s.Replica.Log)))
	if err != nil {
		return err
	}
	return s.executeBatches(ctx, effectBatches, committedBefore)
}

func (s *Shell) executeBatches(ctx context.Context, batches [][]kernel.Effect, firstOp ids.CommitNumber) error {
	now := int64(0)
	if s.Clock != nil {
		now = s.Clock()
	}
	for i, effects := range batches {
		op := ids.OpNumber(uint64(firstOp) + uint64(i))
		if s.Executor != nil {
			if err := s.Executor.Execute(ctx, op, s.Replica.View, now, effects); err != nil {
				return err
			}
		}
		if err := s.recordSession(ctx, op, effects); err != nil {
			return err
		}

		s.mu.Lock()
		p, isLocal := s.pending[op]
		delete(s.pending, op)
		s.mu.Unlock()
		if isLocal {
			p.done <- ProposalResult{Applied: true}
		}
	}
	return nil
}

// recordSession caches op's effects against the client/request it
// originated from (spec §4.4 step 1's at-most-once delivery), both in the
// replica's in-memory SessionTable (consulted by Propose on retry) and in
// the durable sessions table (consulted on restart before the in-memory
// table is rebuilt). Effects are opaque to the session cache: it stores
// whatever apply_committed produced, not a re-derivation of it.
func (s *Shell) recordSession(ctx context.Context, op ids.OpNumber, effects []kernel.Effect) error {
	if int(op) >= len(s.Replica.Log) {
		return nil
	}
	entry := s.Replica.Log[op]

	encoded, err := json.Marshal(effects)
	if err != nil {
		return fmt.Errorf("shell: op %s: encode effects for session cache: %w", op, err)
	}

	result := vsr.SessionResult{RequestID: entry.RequestID, Effects: encoded}
	if err := s.Replica.Sessions.Record(entry.ClientID, result); err != nil {
		return fmt.Errorf("shell: op %s: record session: %w", op, err)
	}
	if s.Store != nil {
		if err := s.Store.PutSession(ctx, entry.ClientID, entry.RequestID, encoded, ""); err != nil {
			return fmt.Errorf("shell: op %s: persist session: %w", op, err)
		}
	}
	return nil
}

