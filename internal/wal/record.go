// Package wal implements Kimberlite's per-stream append-only log: segmented
// files of length-prefixed, CRC-checked, hash-chained records. One writer
// per stream, many readers. The record and segment layouts are bit-exact
// (spec §4.2, §6) so that, given the same command sequence and fsync
// policy, segment bytes are identical across runs and across replicas.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/kimberlite-db/kimberlite/internal/crypto"
)

// recordHeaderSize is the fixed portion of an encoded record preceding the
// variable-length payload: offset(8) + prev_hash(32) + payload_len(4).
const recordHeaderSize = 8 + crypto.DigestSize + 4

// recordTrailerSize is the fixed portion following the payload:
// hash(32) + crc32(4).
const recordTrailerSize = crypto.DigestSize + 4

// Record is a single entry in a stream's hash chain.
type Record struct {
	Offset    uint64
	PrevHash  crypto.Digest
	Payload   []byte
	Hash      crypto.Digest
	CRC32     uint32
}

// EncodedSize returns the exact on-disk size of r once encoded.
func (r Record) EncodedSize() int {
	return recordHeaderSize + len(r.Payload) + recordTrailerSize
}

// BuildRecord computes Hash and CRC32 for a new record given its
// predecessor's hash, its offset, and its payload. Hash is always the
// compliance hash: chain integrity is a compliance-critical property.
func BuildRecord(prevHash crypto.Digest, offset uint64, payload []byte) Record {
	h := crypto.HashComplianceChained(crypto.Compliance, prevHash, offset, payload)
	buf := encodeForCRC(offset, prevHash, payload, h)
	return Record{
		Offset:   offset,
		PrevHash: prevHash,
		Payload:  payload,
		Hash:     h,
		CRC32:    crc32.ChecksumIEEE(buf),
	}
}

// encodeForCRC lays out the bytes covered by the trailing CRC32: everything
// except the CRC32 field itself.
func encodeForCRC(offset uint64, prevHash crypto.Digest, payload []byte, hash crypto.Digest) []byte {
	buf := make([]byte, 0, recordHeaderSize+len(payload)+crypto.DigestSize)
	var off8 [8]byte
	binary.LittleEndian.PutUint64(off8[:], offset)
	buf = append(buf, off8[:]...)
	buf = append(buf, prevHash[:]...)
	var plen4 [4]byte
	binary.LittleEndian.PutUint32(plen4[:], uint32(len(payload)))
	buf = append(buf, plen4[:]...)
	buf = append(buf, payload...)
	buf = append(buf, hash[:]...)
	return buf
}

// Encode writes r's bit-exact little-endian wire layout:
//
//	offset:u64 | prev_hash:[32] | payload_len:u32 | payload | hash:[32] | crc32:u32
func Encode(r Record) []byte {
	body := encodeForCRC(r.Offset, r.PrevHash, r.Payload, r.Hash)
	out := make([]byte, 0, len(body)+4)
	out = append(out, body...)
	var crc4 [4]byte
	binary.LittleEndian.PutUint32(crc4[:], r.CRC32)
	out = append(out, crc4[:]...)
	return out
}

// Decode parses a record from buf, returning the number of bytes consumed.
// It does NOT validate the CRC or chain hash — call Validate for that, so
// callers can distinguish "malformed bytes" from "corrupt record."
func Decode(buf []byte) (Record, int, error) {
	if len(buf) < recordHeaderSize {
		return Record{}, 0, fmt.Errorf("wal: record header truncated: have %d bytes, need %d", len(buf), recordHeaderSize)
	}
	offset := binary.LittleEndian.Uint64(buf[0:8])
	var prevHash crypto.Digest
	copy(prevHash[:], buf[8:8+crypto.DigestSize])
	payloadLen := binary.LittleEndian.Uint32(buf[8+crypto.DigestSize : recordHeaderSize])

	total := recordHeaderSize + int(payloadLen) + recordTrailerSize
	if len(buf) < total {
		return Record{}, 0, fmt.Errorf("wal: record body truncated: have %d bytes, need %d", len(buf), total)
	}

	payload := make([]byte, payloadLen)
	copy(payload, buf[recordHeaderSize:recordHeaderSize+int(payloadLen)])

	var hash crypto.Digest
	hashStart := recordHeaderSize + int(payloadLen)
	copy(hash[:], buf[hashStart:hashStart+crypto.DigestSize])
	crcVal := binary.LittleEndian.Uint32(buf[hashStart+crypto.DigestSize : total])

	return Record{
		Offset:   offset,
		PrevHash: prevHash,
		Payload:  payload,
		Hash:     hash,
		CRC32:    crcVal,
	}, total, nil
}

// Validate checks r's CRC32 and, if prevHash is non-nil, its chain hash
// against the expected predecessor. Returns a ChainError describing which
// check failed.
func Validate(r Record, expectedPrevHash *crypto.Digest) error {
	buf := encodeForCRC(r.Offset, r.PrevHash, r.Payload, r.Hash)
	if crc32.ChecksumIEEE(buf) != r.CRC32 {
		return &ChainError{Kind: ErrChecksumMismatch, Offset: r.Offset}
	}

	wantHash := crypto.HashComplianceChained(crypto.Compliance, r.PrevHash, r.Offset, r.Payload)
	if !wantHash.Equal(r.Hash) {
		return &ChainError{Kind: ErrChecksumMismatch, Offset: r.Offset}
	}

	if expectedPrevHash != nil && !r.PrevHash.Equal(*expectedPrevHash) {
		return &ChainError{Kind: ErrChainBreak, Offset: r.Offset}
	}

	return nil
}
