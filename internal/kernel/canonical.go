package kernel

import (
	"encoding/binary"

	"golang.org/x/text/unicode/norm"
)

// Canonical encoding is a simple length-prefixed, type-tagged byte stream,
// not general-purpose serialization — it exists solely to feed
// StateHash and VSR checksums, so its only contract is determinism: the
// same State always produces the same bytes, on every platform, in every
// process. Strings are NFC-normalized (golang.org/x/text/unicode/norm)
// before hashing so visually-identical names that arrived in different
// Unicode normalization forms hash identically — the same discipline
// ir.MarshalCanonical applies to JSON object keys, applied here to a
// denser binary form since the kernel never needs JSON interop.
func appendString(buf []byte, s string) []byte {
	normalized := norm.NFC.String(s)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(normalized)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, normalized...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendInt64(buf []byte, v int64) []byte {
	return appendUint64(buf, uint64(v))
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func appendBytes(buf []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, b...)
}

// valueTag distinguishes Value variants in the canonical encoding. The
// numeric values are part of the hash contract: never renumber them.
const (
	tagNull byte = iota
	tagInt
	tagText
	tagBool
	tagTimestamp
	tagBlob
)

func appendValue(buf []byte, v Value) []byte {
	switch val := v.(type) {
	case nil, Null:
		return append(buf, tagNull)
	case IntValue:
		buf = append(buf, tagInt)
		return appendInt64(buf, int64(val))
	case TextValue:
		buf = append(buf, tagText)
		return appendString(buf, string(val))
	case BoolValue:
		buf = append(buf, tagBool)
		return appendBool(buf, bool(val))
	case TimestampValue:
		buf = append(buf, tagTimestamp)
		return appendInt64(buf, int64(val))
	case BlobValue:
		buf = append(buf, tagBlob)
		return appendBytes(buf, val)
	default:
		panic("kernel: unreachable Value variant in appendValue")
	}
}

func appendPlacement(buf []byte, p Placement) []byte {
	buf = append(buf, byte(len(p.Kind)))
	buf = append(buf, p.Kind...)
	return appendString(buf, p.Region)
}

func appendColumnDef(buf []byte, c ColumnDef) []byte {
	buf = appendString(buf, c.Name)
	buf = appendString(buf, string(c.Type))
	buf = appendBool(buf, c.Nullable)
	if c.Default == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = appendValue(buf, c.Default)
	}
	return buf
}

// appendCanonicalState encodes exactly the fields StateHash's documented
// digest inputs name, in key order: streams, tables, table_name_index,
// indexes, counters.
func appendCanonicalState(buf []byte, s State) []byte {
	for _, sid := range s.sortedStreamIDs() {
		meta := s.Streams[sid]
		buf = appendUint64(buf, uint64(sid))
		buf = appendUint64(buf, uint64(meta.TenantID))
		buf = appendString(buf, meta.Name)
		buf = appendString(buf, string(meta.Class))
		buf = appendPlacement(buf, meta.Placement)
		buf = appendUint64(buf, meta.NextOffset)
		buf = appendInt64(buf, meta.CreatedAtTick)
	}

	for _, tid := range s.sortedTableIDs() {
		t := s.Tables[tid]
		buf = appendUint64(buf, uint64(tid))
		buf = appendString(buf, t.Name)
		buf = appendBool(buf, t.Dropped)
		var colLen [4]byte
		binary.LittleEndian.PutUint32(colLen[:], uint32(len(t.Columns)))
		buf = append(buf, colLen[:]...)
		for _, c := range t.Columns {
			buf = appendColumnDef(buf, c)
		}
		var pkLen [4]byte
		binary.LittleEndian.PutUint32(pkLen[:], uint32(len(t.PrimaryKey)))
		buf = append(buf, pkLen[:]...)
		for _, pk := range t.PrimaryKey {
			buf = appendString(buf, pk)
		}
	}

	for _, name := range s.sortedTableNames() {
		buf = appendString(buf, name)
		buf = appendUint64(buf, uint64(s.TableNameIndex[name]))
	}

	for _, iid := range s.sortedIndexIDs() {
		idx := s.Indexes[iid]
		buf = appendUint64(buf, uint64(iid))
		buf = appendUint64(buf, uint64(idx.TableID))
		buf = appendString(buf, idx.Name)
		buf = appendBool(buf, idx.Unique)
		buf = appendBool(buf, idx.Dropped)
		var colLen [4]byte
		binary.LittleEndian.PutUint32(colLen[:], uint32(len(idx.Columns)))
		buf = append(buf, colLen[:]...)
		for _, c := range idx.Columns {
			buf = appendString(buf, c)
		}
	}

	buf = appendUint64(buf, uint64(s.NextTableID))
	buf = appendUint64(buf, uint64(s.NextIndexID))
	for _, tenant := range s.sortedTenantIDs() {
		buf = appendUint64(buf, uint64(tenant))
		buf = appendUint64(buf, s.NextStreamSeq[tenant])
	}

	return buf
}
