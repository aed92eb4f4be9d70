package kernel

import "github.com/kimberlite-db/kimberlite/internal/ids"

// EffectKind is the closed sum type of side effects apply_committed asks
// the shell to execute (spec §4.3). The kernel never performs these
// itself; it only describes them.
type EffectKind string

const (
	EffectStorageAppend  EffectKind = "StorageAppend"
	EffectAudit          EffectKind = "Audit"
	EffectWakeProjection EffectKind = "WakeProjection"
	EffectEmitBroadcast  EffectKind = "EmitBroadcast"
	EffectCheckpoint     EffectKind = "Checkpoint"
)

// Effect carries exactly one populated payload selected by Kind, produced
// in canonical order by apply_committed.
type Effect struct {
	Kind EffectKind

	StorageAppend  *StorageAppendEffect
	Audit          *AuditEffect
	WakeProjection *WakeProjectionEffect
	EmitBroadcast  *EmitBroadcastEffect
	Checkpoint     *CheckpointEffect
}

// StorageAppendEffect is one record the shell must append to a stream.
// The kernel computes nothing about hashing here — that's wal's job; the
// kernel only describes which stream gets which bytes at which offset.
type StorageAppendEffect struct {
	Stream       ids.StreamId
	Payloads     [][]byte
	ExpectedNext uint64
}

// AuditEffect describes what happened, for the shell's audit sink.
type AuditEffect struct {
	EventKind string
	Details   map[string]string
}

// WakeProjectionEffect tells the shell a table's derived projections
// should be notified of new committed writes.
type WakeProjectionEffect struct {
	Table ids.TableId
}

// EmitBroadcastEffect asks the shell to publish an external notification
// (e.g. a change-data-capture event). Out of core scope beyond the
// description of the effect itself.
type EmitBroadcastEffect struct {
	Topic   string
	Payload []byte
}

// CheckpointEffect asks the shell to persist the post-command state hash
// as a checkpoint.
type CheckpointEffect struct {
	StateHash [32]byte
}
