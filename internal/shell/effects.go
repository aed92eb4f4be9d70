package shell

import (
	"context"
	"fmt"

	"github.com/kimberlite-db/kimberlite/internal/ids"
	"github.com/kimberlite-db/kimberlite/internal/kernel"
	"github.com/kimberlite-db/kimberlite/internal/wal"
)

// ProjectionWaker is notified when a table's committed writes should wake
// any derived projection (spec §4.3's WakeProjection effect). The shell
// has no built-in projection engine — that is explicitly out of scope
// (see spec.md's SQL-planning Non-goal) — so this is a thin hook a
// caller can wire to whatever materialized-view machinery it runs.
type ProjectionWaker func(table ids.TableId)

// BroadcastEmitter is notified when the kernel asks to publish an
// external notification (e.g. change-data-capture).
type BroadcastEmitter func(topic string, payload []byte)

// EffectExecutor runs the side effects apply_committed describes for one
// committed op against real storage (spec §9 Functional Core / Imperative
// Shell split: the kernel only describes; the shell performs).
type EffectExecutor struct {
	Streams     StreamOpener
	Appender    BatchAppender // optional; overrides Streams for StorageAppend
	Store       *Store
	Wake        ProjectionWaker
	Broadcast   BroadcastEmitter
	FsyncPolicy wal.FsyncPolicy
}

// StreamOpener resolves a stream id to its append-only log, opening it
// lazily and caching the handle. Kept as an interface so the simulator
// can substitute an in-memory fake without internal/shell depending on
// how the simulator fakes disk.
type StreamOpener interface {
	Stream(id ids.StreamId) (*wal.Stream, error)
}

// BatchAppender performs a storage-append effect directly, used by the
// simulator to route every StorageAppend through its fault-injecting
// disk layer (torn writes, fsync loss, bit-flips) instead of a plain
// wal.Stream.AppendBatch call. When Appender is set on an EffectExecutor
// it takes priority over Streams for StorageAppend effects.
type BatchAppender interface {
	AppendWithFaults(id ids.StreamId, payloads [][]byte, expectedNext uint64) ([]wal.Record, error)
}

// Execute runs every effect in order for op, recording an audit entry for
// Audit effects and updating the checkpoint table as needed. Session-table
// updates happen separately, in Shell.recordSession, once Execute returns
// successfully for the whole batch.
// Effects never change apply_committed's outcome; a failure here is an
// infrastructure problem (disk full, corrupt segment), not a kernel
// rejection, and is returned rather than retried silently.
func (e *EffectExecutor) Execute(ctx context.Context, op ids.OpNumber, view ids.ViewNumber, now int64, effects []kernel.Effect) error {
	for _, eff := range effects {
		switch eff.Kind {
		case kernel.EffectStorageAppend:
			if err := e.executeStorageAppend(eff.StorageAppend); err != nil {
				return fmt.Errorf("shell: op %s storage append: %w", op, err)
			}
		case kernel.EffectAudit:
			if e.Store != nil {
				if err := e.Store.AppendAudit(ctx, op, eff.Audit.EventKind, eff.Audit.Details, now); err != nil {
					return fmt.Errorf("shell: op %s audit: %w", op, err)
				}
			}
		case kernel.EffectWakeProjection:
			if e.Wake != nil {
				e.Wake(eff.WakeProjection.Table)
			}
		case kernel.EffectEmitBroadcast:
			if e.Broadcast != nil {
				e.Broadcast(eff.EmitBroadcast.Topic, eff.EmitBroadcast.Payload)
			}
		case kernel.EffectCheckpoint:
			if e.Store != nil {
				if err := e.Store.PutCheckpoint(ctx, op, view, eff.Checkpoint.StateHash, now); err != nil {
					return fmt.Errorf("shell: op %s checkpoint: %w", op, err)
				}
			}
		default:
			return fmt.Errorf("shell: op %s: unrecognized effect kind %q", op, eff.Kind)
		}
	}
	return nil
}

func (e *EffectExecutor) executeStorageAppend(eff *kernel.StorageAppendEffect) error {
	if e.Appender != nil {
		_, err := e.Appender.AppendWithFaults(eff.Stream, eff.Payloads, eff.ExpectedNext)
		return err
	}
	stream, err := e.Streams.Stream(eff.Stream)
	if err != nil {
		return err
	}
	_, err = stream.AppendBatch(eff.Payloads, eff.ExpectedNext, e.FsyncPolicy)
	return err
}
