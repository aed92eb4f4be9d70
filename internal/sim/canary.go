//go:build vopr_canary

// Package sim's canary mutants are compiled only under the vopr_canary
// build tag (go test -tags vopr_canary ./internal/sim/...): known-bad
// kernel/VSR variants that a correct invariant checker suite must catch,
// proving the checkers actually detect the faults they claim to (spec
// §4.5's mutation-score validation). None of this ships in a normal
// build.
package sim

import (
	"github.com/kimberlite-db/kimberlite/internal/ids"
	"github.com/kimberlite-db/kimberlite/internal/kernel"
)

// Canary is one named known-bad variant plus the invariant it should
// trip.
type Canary struct {
	Name              string
	ExpectedViolation string // substring expected in the tripped checker's error
	Apply             func(state kernel.State, cmd kernel.Command) (kernel.State, []kernel.Effect, error)
}

// Canaries is the registry every canary mutation test iterates.
var Canaries = []Canary{
	{
		Name:              "AppendBatchForgetsOffsetBump",
		ExpectedViolation: "state_hash",
		Apply:             applyForgetOffsetBump,
	},
	{
		Name:              "CreateStreamIgnoresPHIPlacement",
		ExpectedViolation: "PlacementViolation",
		Apply:             applyIgnorePHIPlacement,
	},
}

// applyForgetOffsetBump behaves like kernel.Apply for AppendBatch except
// it never advances the stream's next_offset, so state_hash stops moving
// even though records were notionally appended — exactly the bug class
// checkReplicaConsistency and the kernel's own determinism property
// exist to catch.
func applyForgetOffsetBump(state kernel.State, cmd kernel.Command) (kernel.State, []kernel.Effect, error) {
	if cmd.Kind != kernel.CmdAppendBatch {
		return kernel.Apply(state, cmd)
	}
	next := state.Clone()
	meta, ok := next.Streams[cmd.AppendBatch.Stream]
	if !ok {
		return state, nil, &kernel.Error{Kind: kernel.ErrNotFound, Message: "stream not found"}
	}
	// bug: deliberately skip meta.NextOffset advancement
	next.Streams[cmd.AppendBatch.Stream] = meta
	return next, []kernel.Effect{{
		Kind: kernel.EffectStorageAppend,
		StorageAppend: &kernel.StorageAppendEffect{
			Stream:       cmd.AppendBatch.Stream,
			Payloads:     cmd.AppendBatch.Payloads,
			ExpectedNext: cmd.AppendBatch.ExpectedNext,
		},
	}}, nil
}

// applyIgnorePHIPlacement behaves like kernel.Apply for CreateStream
// except it never enforces the PHI-must-be-regional invariant (spec §3,
// scenario S2) — the bug checkAgreement/the kernel's own PlacementViolation
// path exist to catch when a canary run replays S2 against it.
func applyIgnorePHIPlacement(state kernel.State, cmd kernel.Command) (kernel.State, []kernel.Effect, error) {
	if cmd.Kind != kernel.CmdCreateStream {
		return kernel.Apply(state, cmd)
	}
	c := cmd.CreateStream
	next := state.Clone()
	seq := next.NextStreamSeq[c.Tenant]
	id := ids.NewStreamId(c.Tenant, seq)
	next.NextStreamSeq[c.Tenant] = seq + 1
	next.Streams[id] = kernel.StreamMetadata{
		StreamID:  id,
		TenantID:  c.Tenant,
		Name:      c.Name,
		Class:     c.Class,
		Placement: c.Placement, // bug: no PHI/region check
	}
	return next, []kernel.Effect{{Kind: kernel.EffectAudit, Audit: &kernel.AuditEffect{EventKind: "StreamCreated"}}}, nil
}
