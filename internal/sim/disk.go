package sim

import (
	"fmt"

	"github.com/kimberlite-db/kimberlite/internal/ids"
	"github.com/kimberlite-db/kimberlite/internal/wal"
)

// FaultyStreamOpener wraps a real directory of wal.Stream segments and
// injects the disk-level faults spec §4.5 names — torn writes, fsync
// loss, silent bit-flips, crash at a chosen instant — by perturbing the
// batch actually handed to wal.AppendBatch rather than reimplementing
// wal's own segment format. Crash recovery itself is exercised for
// real: after a simulated crash, the next open of the same stream runs
// wal.OpenStream's actual tail-scan recovery path (spec §4.2 scenario
// S4), not a simulator-side approximation of it.
type FaultyStreamOpener struct {
	dir      string
	profile  FaultProfile
	rng      *RNG
	coverage *Coverage
	streams  map[ids.StreamId]*wal.Stream
}

// NewFaultyStreamOpener roots simulated stream directories under dir
// (typically a t.TempDir() in tests, or an in-memory-backed tmpfs mount
// under real simulator runs).
func NewFaultyStreamOpener(dir string, profile FaultProfile, rng *RNG, coverage *Coverage) *FaultyStreamOpener {
	return &FaultyStreamOpener{dir: dir, profile: profile, rng: rng, coverage: coverage, streams: map[ids.StreamId]*wal.Stream{}}
}

// Stream implements shell.StreamOpener.
func (f *FaultyStreamOpener) Stream(id ids.StreamId) (*wal.Stream, error) {
	if s, ok := f.streams[id]; ok {
		return s, nil
	}
	s, err := wal.OpenStream(f.streamDir(id), id, 0)
	if err != nil {
		return nil, err
	}
	f.streams[id] = s
	return s, nil
}

func (f *FaultyStreamOpener) streamDir(id ids.StreamId) string {
	return fmt.Sprintf("%s/stream-%d", f.dir, uint64(id))
}

// AppendWithFaults writes payloads to stream id, applying this run's disk
// fault profile before delegating to the real wal.Stream.AppendBatch. It
// is the fault-injecting substitute for internal/shell's direct
// executeStorageAppend call when running under the simulator.
func (f *FaultyStreamOpener) AppendWithFaults(id ids.StreamId, payloads [][]byte, expectedNext uint64) ([]wal.Record, error) {
	stream, err := f.Stream(id)
	if err != nil {
		return nil, err
	}

	policy := wal.FsyncPerBatch
	if f.rng.Chance(f.profile.FsyncLossProbability) {
		f.coverage.Hit(FaultFsyncLoss)
		policy = wal.FsyncNone
	}

	written := payloads
	if len(written) > 1 && f.rng.Chance(f.profile.TornWriteProbability) {
		f.coverage.Hit(FaultTornWrite)
		written = written[:len(written)-1]
	}

	if len(written) > 0 && f.rng.Chance(f.profile.BitFlipProbability) {
		f.coverage.Hit(FaultBitFlip)
		written = flipOneBit(written)
	}

	return stream.AppendBatch(written, expectedNext, policy)
}

// flipOneBit returns a copy of payloads with a single bit flipped in the
// last non-empty payload, simulating a silent disk bit-flip. Copying
// avoids mutating the caller's slice, which may still be referenced
// elsewhere (e.g. retried on a real OffsetGap failure).
func flipOneBit(payloads [][]byte) [][]byte {
	out := make([][]byte, len(payloads))
	copy(out, payloads)
	for i := len(out) - 1; i >= 0; i-- {
		if len(out[i]) == 0 {
			continue
		}
		mutated := make([]byte, len(out[i]))
		copy(mutated, out[i])
		mutated[0] ^= 0x01
		out[i] = mutated
		break
	}
	return out
}

// Close closes every stream this opener has opened, ignoring individual
// errors beyond the first since simulator teardown never needs to
// recover from a close failure.
func (f *FaultyStreamOpener) Close() error {
	var firstErr error
	for _, s := range f.streams {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Forget drops the in-memory handle for id, so the next Stream call
// reopens it from disk — used to simulate a replica crash followed by
// restart, exercising wal's real recovery path.
func (f *FaultyStreamOpener) Forget(id ids.StreamId) {
	delete(f.streams, id)
}

// ForgetAll drops every cached stream handle, used when a whole replica
// restarts after a simulated crash (EventRestart) rather than a single
// stream being reopened.
func (f *FaultyStreamOpener) ForgetAll() {
	f.streams = map[ids.StreamId]*wal.Stream{}
}
