// Package ids defines the opaque, fixed-width identifier types shared by
// every Kimberlite component. None of these types carry behavior beyond
// equality, ordering, and string rendering — they exist so the kernel,
// the log, and the consensus layer never pass around bare uint64s.
package ids

import "fmt"

// TenantId identifies a tenant. Tenants own streams, tables, and indexes.
type TenantId uint64

// StreamId identifies an append-only log stream.
//
// A StreamId encodes its owning TenantId in its upper 24 bits so ownership
// is recoverable without a lookup: streamTenantBits of TenantId, followed
// by a per-tenant sequential stream counter in the low bits. See
// NewStreamId and StreamId.Tenant.
type StreamId uint64

const (
	streamTenantBits = 24
	streamSeqBits    = 64 - streamTenantBits
	streamSeqMask    = (uint64(1) << streamSeqBits) - 1
)

// NewStreamId packs a tenant and a per-tenant sequence number into a StreamId.
// Panics if tenant or seq overflow their reserved bit widths, since that
// indicates a counter bug upstream, not bad input data.
func NewStreamId(tenant TenantId, seq uint64) StreamId {
	if uint64(tenant) >= (uint64(1) << streamTenantBits) {
		panic(fmt.Sprintf("ids: tenant %d exceeds %d-bit range", tenant, streamTenantBits))
	}
	if seq > streamSeqMask {
		panic(fmt.Sprintf("ids: stream sequence %d exceeds %d-bit range", seq, streamSeqBits))
	}
	return StreamId(uint64(tenant)<<streamSeqBits | seq)
}

// Tenant recovers the owning TenantId encoded in the upper bits of s.
func (s StreamId) Tenant() TenantId {
	return TenantId(uint64(s) >> streamSeqBits)
}

// TableId identifies a table within the kernel's schema catalog.
type TableId uint64

// IndexId identifies a secondary index.
type IndexId uint64

// GroupId identifies a VSR replica group (a single shard of consensus).
type GroupId uint64

// ReplicaId identifies a replica within a GroupId. Replica numbering is
// dense: 0..N-1 for voting members; standbys are also ReplicaIds, listed
// separately in vsr.Membership.Standbys.
type ReplicaId uint32

// ClientId identifies a logical client for at-most-once session tracking.
type ClientId uint64

// RequestId is a per-client monotonically increasing request counter used
// for at-most-once deduplication in the client session table.
type RequestId uint64

// OpNumber is a replica group's dense, totally ordered command sequence
// number, assigned by the leader of the current view.
type OpNumber uint64

// ViewNumber is the VSR leadership epoch. It never decreases.
type ViewNumber uint64

// CommitNumber is the highest OpNumber known durable at a quorum. It never
// decreases and advances by exactly 1 per committed op.
type CommitNumber uint64

// Offset is a zero-based position within a single stream's log.
type Offset uint64

func (t TenantId) String() string     { return fmt.Sprintf("tenant:%d", uint64(t)) }
func (s StreamId) String() string     { return fmt.Sprintf("stream:%d", uint64(s)) }
func (t TableId) String() string      { return fmt.Sprintf("table:%d", uint64(t)) }
func (i IndexId) String() string      { return fmt.Sprintf("index:%d", uint64(i)) }
func (g GroupId) String() string      { return fmt.Sprintf("group:%d", uint64(g)) }
func (r ReplicaId) String() string    { return fmt.Sprintf("replica:%d", uint32(r)) }
func (c ClientId) String() string     { return fmt.Sprintf("client:%d", uint64(c)) }
func (r RequestId) String() string    { return fmt.Sprintf("request:%d", uint64(r)) }
func (o OpNumber) String() string     { return fmt.Sprintf("op:%d", uint64(o)) }
func (v ViewNumber) String() string   { return fmt.Sprintf("view:%d", uint64(v)) }
func (c CommitNumber) String() string { return fmt.Sprintf("commit:%d", uint64(c)) }
func (o Offset) String() string       { return fmt.Sprintf("offset:%d", uint64(o)) }
