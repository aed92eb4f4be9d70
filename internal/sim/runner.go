package sim

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kimberlite-db/kimberlite/internal/ids"
	"github.com/kimberlite-db/kimberlite/internal/kernel"
	"github.com/kimberlite-db/kimberlite/internal/shell"
	"github.com/kimberlite-db/kimberlite/internal/vsr"
	"github.com/kimberlite-db/kimberlite/internal/wal"
)

// Exit codes a VOPR run reports to its caller (spec §6).
const (
	ExitPass                = 0
	ExitInvariantViolation  = 1
	ExitCoverageUnmet       = 2
	ExitNondeterminism      = 3
)

// Simulator drives one deterministic VOPR run: a replica group, a
// fault-controlled network and disk layer, and the standard invariant
// checkers, all stepped from a single discrete-event loop seeded from
// Scenario.Seed (spec §4.5, §9). Nothing here touches a wall clock,
// process RNG, or goroutine scheduling order — every decision flows from
// the seed, which is what makes two runs of the same scenario comparable
// byte-for-byte (spec §8 property 9).
type Simulator struct {
	scenario *Scenario
	clock    Clock
	rng      *RNG
	queue    *eventQueue
	network  *Network
	coverage *Coverage
	tracker  *MonotonicityTracker

	replicas  []*vsr.Replica
	disks     []*FaultyStreamOpener
	executors []*shell.EffectExecutor
	stores    []*shell.Store
	crashed   []bool

	eventsProcessed int64
}

// NewSimulator wires a fresh replica group under baseDir, one subdirectory
// per replica for its WAL segments and SQLite side-store.
func NewSimulator(scenario *Scenario, baseDir string) (*Simulator, error) {
	rng := NewRNG(scenario.Seed)
	coverage := NewCoverage()
	queue := newEventQueue()

	voters := make([]ids.ReplicaId, scenario.ReplicaN)
	for i := range voters {
		voters[i] = ids.ReplicaId(i)
	}
	membership := vsr.Membership{Group: 1, Voters: voters}

	s := &Simulator{
		scenario: scenario,
		rng:      rng,
		queue:    queue,
		coverage: coverage,
		tracker:  NewMonotonicityTracker(),
	}
	s.network = newNetwork(scenario.Faults, rng.Fork(), queue, byzantineTamperer, coverage)

	for i := 0; i < scenario.ReplicaN; i++ {
		replica := vsr.NewReplica(ids.ReplicaId(i), membership, vsr.Version{Major: 1})
		dir := filepath.Join(baseDir, fmt.Sprintf("replica-%d", i))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sim: create replica %d directory: %w", i, err)
		}
		disk := NewFaultyStreamOpener(filepath.Join(dir, "wal"), scenario.Faults, rng.Fork(), coverage)

		store, err := shell.Open(filepath.Join(dir, "shell.db"))
		if err != nil {
			return nil, fmt.Errorf("sim: open side store for replica %d: %w", i, err)
		}

		executor := &shell.EffectExecutor{Appender: disk, Store: store, FsyncPolicy: wal.FsyncPerBatch}

		s.replicas = append(s.replicas, replica)
		s.disks = append(s.disks, disk)
		s.executors = append(s.executors, executor)
		s.stores = append(s.stores, store)
		s.crashed = append(s.crashed, false)
	}

	s.scheduleRequests()
	s.scheduleFaultEvents()
	return s, nil
}

// byzantineTamperer flips a Prepare's checksum byte, the one mutation that
// exercises normal.go's own checksum-rejection path rather than silently
// corrupting state (spec §4.5's "byzantine-lite" qualifier: tampering a
// replica's own checker always catches, never a live exploit).
func byzantineTamperer(payload any) (any, bool) {
	p, ok := payload.(vsr.Prepare)
	if !ok {
		return nil, false
	}
	p.Checksum[0] ^= 0xFF
	return p, true
}

func (s *Simulator) scheduleRequests() {
	tick := Tick(1)
	for _, req := range s.scenario.Requests {
		at := tick
		if req.AtTick > 0 {
			at = Tick(req.AtTick)
		}
		s.queue.Schedule(&Event{At: at, Kind: EventClientRequest, Replica: -1, Payload: req})
		tick++
	}
}

func (s *Simulator) scheduleFaultEvents() {
	f := s.scenario.Faults
	if f.CrashAtTick > 0 && f.CrashReplica >= 0 && f.CrashReplica < len(s.replicas) {
		s.queue.Schedule(&Event{At: f.CrashAtTick, Kind: EventCrash, Replica: f.CrashReplica})
		s.queue.Schedule(&Event{At: f.CrashAtTick + 50, Kind: EventRestart, Replica: f.CrashReplica})
	}
}

// Run drains the event queue, checking invariants after every event, and
// returns the run's observable result. A non-nil error distinguishes an
// invariant violation (the caller maps that to ExitInvariantViolation)
// from an infrastructure failure (scenario misconfiguration, disk I/O
// error opening a store) that has no dedicated exit code of its own.
func (s *Simulator) Run(ctx context.Context) (RunResult, error) {
	defer s.closeStores()

	for {
		ev := s.queue.PopNext()
		if ev == nil {
			break
		}
		s.clock.Advance(ev.At)
		if err := s.dispatch(ctx, ev); err != nil {
			return s.result(), err
		}
		s.eventsProcessed++

		if err := s.checkInvariants(); err != nil {
			return s.result(), err
		}
	}

	return s.result(), nil
}

func (s *Simulator) closeStores() {
	for _, st := range s.stores {
		st.Close()
	}
	for _, d := range s.disks {
		d.Close()
	}
}

func (s *Simulator) checkInvariants() error {
	for _, checker := range StandardInvariants {
		s.coverage.HitInvariant(checker.Name)
		if err := checker.Check(s.replicas); err != nil {
			return fmt.Errorf("sim: %s: %w", checker.Name, err)
		}
	}
	return s.tracker.Check(s.replicas)
}

func (s *Simulator) dispatch(ctx context.Context, ev *Event) error {
	switch ev.Kind {
	case EventClientRequest:
		return s.handleClientRequest(ev.Payload.(Request))
	case EventDeliverMessage:
		return s.handleEnvelope(ctx, ev.Payload.(Envelope))
	case EventCrash:
		s.coverage.Hit(FaultReplicaCrash)
		s.crashed[ev.Replica] = true
		return nil
	case EventRestart:
		s.crashed[ev.Replica] = false
		s.disks[ev.Replica].ForgetAll()
		return nil
	case EventHeartbeat, EventViewTimeout:
		return nil // reserved hooks; no scenario in this repo schedules them yet
	default:
		return fmt.Errorf("sim: unknown event kind %q", ev.Kind)
	}
}

func (s *Simulator) leaderIndex() int {
	for i, r := range s.replicas {
		if s.crashed[i] {
			continue
		}
		if r.Status == vsr.StatusNormal && r.IsLeader() {
			return i
		}
	}
	return -1
}

func (s *Simulator) handleClientRequest(req Request) error {
	leader := s.leaderIndex()
	if leader < 0 {
		return nil // no leader elected right now; request is simply dropped, same as a real timeout+retry
	}

	cmd, err := buildCommand(req)
	if err != nil {
		return fmt.Errorf("sim: request %d/%d: %w", req.ClientID, req.RequestID, err)
	}

	prepare, result, err := s.replicas[leader].Propose(ids.ClientId(req.ClientID), ids.RequestId(req.RequestID), cmd)
	if err != nil {
		return fmt.Errorf("sim: propose: %w", err)
	}
	if result.Cached {
		return nil
	}
	s.coverage.HitPhase("Normal")

	for i := range s.replicas {
		if i == leader || s.crashed[i] {
			continue
		}
		s.network.Send(s.clock.Now(), leader, i, *prepare)
	}
	return nil
}

func (s *Simulator) handleEnvelope(ctx context.Context, env Envelope) error {
	if s.crashed[env.To] {
		return nil // message to a crashed replica is simply lost
	}
	to := s.replicas[env.To]

	switch payload := env.Payload.(type) {
	case vsr.Prepare:
		ok, err := to.HandlePrepare(payload)
		if err != nil {
			return nil // rejected prepare (stale view, checksum mismatch): not a simulator-fatal error
		}
		s.network.Send(s.clock.Now(), env.To, env.From, *ok)

	case vsr.PrepareOk:
		reached, err := to.HandlePrepareOk(payload)
		if err != nil {
			return nil
		}
		if !reached {
			return nil
		}
		if err := s.advanceAndExecute(ctx, env.To); err != nil {
			return err
		}
		for i := range s.replicas {
			if i == env.To || s.crashed[i] {
				continue
			}
			hb := vsr.Heartbeat{View: to.View, Replica: to.ID, CommitNumber: to.CommitNumber, Version: to.LocalVersion}
			s.network.Send(s.clock.Now(), env.To, i, hb)
		}

	case vsr.Heartbeat:
		if err := s.advanceFollower(ctx, env.To, payload); err != nil {
			return err
		}

	case vsr.StartViewChange:
		if to.HandleStartViewChange(payload) {
			dvc := to.BuildDoViewChange(payload.NewView)
			newLeader := int(uint64(payload.NewView) % uint64(len(s.replicas)))
			s.network.Send(s.clock.Now(), env.To, newLeader, dvc)
		}

	case vsr.DoViewChange:
		votes := to.HandleDoViewChange(payload)
		if votes == nil {
			return nil
		}
		tail, commit := vsr.SelectCanonicalLog(votes)
		sv := to.BecomeLeader(payload.NewView, tail, commit)
		for i := range s.replicas {
			if i == env.To || s.crashed[i] {
				continue
			}
			s.network.Send(s.clock.Now(), env.To, i, *sv)
		}

	case vsr.StartView:
		to.HandleStartView(payload)

	default:
		return fmt.Errorf("sim: undeliverable envelope payload type %T", payload)
	}
	return nil
}

func (s *Simulator) advanceAndExecute(ctx context.Context, idx int) error {
	r := s.replicas[idx]
	before := r.CommitNumber
	batches, err := r.AdvanceCommits(ids.CommitNumber(len(r.Log)))
	if err != nil {
		return fmt.Errorf("sim: replica %d advance commits: %w", idx, err)
	}
	return s.executeBatches(ctx, idx, batches, before)
}

func (s *Simulator) advanceFollower(ctx context.Context, idx int, hb vsr.Heartbeat) error {
	r := s.replicas[idx]
	before := r.CommitNumber
	batches, err := r.HandleHeartbeat(hb)
	if err != nil {
		return fmt.Errorf("sim: replica %d handle heartbeat: %w", idx, err)
	}
	return s.executeBatches(ctx, idx, batches, before)
}

func (s *Simulator) executeBatches(ctx context.Context, idx int, batches [][]kernel.Effect, firstOp ids.CommitNumber) error {
	r := s.replicas[idx]
	executor := s.executors[idx]
	for i, effects := range batches {
		op := ids.OpNumber(uint64(firstOp) + uint64(i))
		if err := executor.Execute(ctx, op, r.View, int64(s.clock.Now()), effects); err != nil {
			return fmt.Errorf("sim: replica %d execute op %s: %w", idx, op, err)
		}
		if err := s.recordSession(ctx, idx, op, effects); err != nil {
			return fmt.Errorf("sim: replica %d record session for op %s: %w", idx, op, err)
		}
	}
	return nil
}

// recordSession mirrors internal/shell's own post-execute session caching
// (spec §4.4 step 1's at-most-once delivery) so a simulated client retry
// that lands on a different replica after a view change still observes
// the original cached reply instead of being re-proposed as a new op.
func (s *Simulator) recordSession(ctx context.Context, idx int, op ids.OpNumber, effects []kernel.Effect) error {
	r := s.replicas[idx]
	if int(op) >= len(r.Log) {
		return nil
	}
	entry := r.Log[op]

	encoded, err := json.Marshal(effects)
	if err != nil {
		return fmt.Errorf("encode effects for session cache: %w", err)
	}

	result := vsr.SessionResult{RequestID: entry.RequestID, Effects: encoded}
	if err := r.Sessions.Record(entry.ClientID, result); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	if store := s.stores[idx]; store != nil {
		if err := store.PutSession(ctx, entry.ClientID, entry.RequestID, encoded, ""); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
	}
	return nil
}

// buildCommand translates a scenario request into a kernel command. Only
// the request kinds the conformance scenarios actually need are
// supported; an unrecognized kind is a scenario-authoring error, not a
// fault to inject.
func buildCommand(req Request) (kernel.Command, error) {
	switch req.Kind {
	case "CreateStream":
		return kernel.Command{Kind: kernel.CmdCreateStream, CreateStream: &kernel.CreateStreamCmd{
			Tenant:    ids.TenantId(argUint(req.Args, "tenant", 0)),
			Name:      argString(req.Args, "name", "stream"),
			Class:     kernel.DataClass(argString(req.Args, "class", string(kernel.NonPHI))),
			Placement: kernel.Placement{Kind: kernel.PlacementKind(argString(req.Args, "placement", string(kernel.PlacementGlobal)))},
		}}, nil

	case "AppendBatch":
		var payloads [][]byte
		if raw, ok := req.Args["payloads"].([]any); ok {
			for _, p := range raw {
				if str, ok := p.(string); ok {
					payloads = append(payloads, []byte(str))
				}
			}
		}
		return kernel.Command{Kind: kernel.CmdAppendBatch, AppendBatch: &kernel.AppendBatchCmd{
			Stream:       ids.StreamId(argUint(req.Args, "stream", 0)),
			Payloads:     payloads,
			ExpectedNext: argUint(req.Args, "expected_next", 0),
		}}, nil

	case "Checkpoint":
		return kernel.Command{Kind: kernel.CmdCheckpoint, Checkpoint: &kernel.CheckpointCmd{}}, nil

	default:
		return kernel.Command{}, fmt.Errorf("unsupported request kind %q", req.Kind)
	}
}

func argUint(args map[string]any, key string, def uint64) uint64 {
	switch v := args[key].(type) {
	case int:
		return uint64(v)
	case int64:
		return uint64(v)
	case uint64:
		return v
	default:
		return def
	}
}

func argString(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return def
}

// result assembles the current RunResult. StateHash comes from replica 0
// (any non-crashed replica would agree, per checkReplicaConsistency);
// StorageHash covers every stream replica 0's kernel state knows about,
// read back from its real WAL segments rather than re-derived from
// in-memory bookkeeping, so a torn write or bit-flip that the kernel
// itself never sees still shows up here.
func (s *Simulator) result() RunResult {
	r := s.replicas[0]
	stateHash := r.State.StateHash()

	return RunResult{
		ScenarioName:    s.scenario.Name,
		Seed:            s.scenario.Seed,
		StateHash:       hex.EncodeToString(stateHash[:]),
		StorageHash:     s.storageHash(0),
		EventsProcessed: s.eventsProcessed,
		FinalTick:       s.clock.Now(),
	}
}

func (s *Simulator) storageHash(idx int) string {
	r := s.replicas[idx]
	streamIDs := make([]ids.StreamId, 0, len(r.State.Streams))
	for id := range r.State.Streams {
		streamIDs = append(streamIDs, id)
	}
	sort.Slice(streamIDs, func(i, j int) bool { return streamIDs[i] < streamIDs[j] })

	h := sha256.New()
	for _, id := range streamIDs {
		stream, err := s.disks[idx].Stream(id)
		if err != nil {
			continue
		}
		result, err := stream.ReadFrom(0, 1<<30)
		if err != nil {
			continue
		}
		for _, rec := range result.Records {
			h.Write(rec.Payload)
		}
		result.Close()
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Coverage exposes the run's accumulated coverage for a caller deciding
// whether the coverage gate (spec §8 property 10) is satisfied.
func (s *Simulator) Coverage() *Coverage { return s.coverage }
