package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kimberlite-db/kimberlite/internal/crypto"
	"github.com/kimberlite-db/kimberlite/internal/ids"
)

// segmentMagic is the 8-byte magic at the start of every segment header
// (spec §6): "KMBLOG\0\0".
var segmentMagic = [8]byte{'K', 'M', 'B', 'L', 'O', 'G', 0, 0}

const segmentFormatVersion uint16 = 1

// segmentHeaderSize is the fixed size of a segment's header:
// magic(8) + version(2) + stream_id(8) + first_offset(8) + reserved(4).
const segmentHeaderSize = 8 + 2 + 8 + 8 + 4

// DefaultRollThreshold is the default segment size, in bytes, at which a
// segment is sealed and a new one opened.
const DefaultRollThreshold = 64 << 20 // 64 MiB

// segmentFileName pads the segment's first offset to 20 decimal digits so
// lexicographic filename order matches offset order.
func segmentFileName(firstOffset uint64) string {
	return fmt.Sprintf("%020d.kmseg", firstOffset)
}

func sealedSidecarName(firstOffset uint64) string {
	return fmt.Sprintf("%020d.sealed", firstOffset)
}

// SealedSidecar is the trailing sidecar written when a segment is closed:
// {last_offset:u64, tail_hash:[32]}.
type SealedSidecar struct {
	LastOffset uint64
	TailHash   crypto.Digest
}

func encodeSealedSidecar(s SealedSidecar) []byte {
	buf := make([]byte, 8+crypto.DigestSize)
	binary.LittleEndian.PutUint64(buf[0:8], s.LastOffset)
	copy(buf[8:], s.TailHash[:])
	return buf
}

func decodeSealedSidecar(buf []byte) (SealedSidecar, error) {
	if len(buf) != 8+crypto.DigestSize {
		return SealedSidecar{}, fmt.Errorf("wal: malformed sealed sidecar: %d bytes", len(buf))
	}
	var s SealedSidecar
	s.LastOffset = binary.LittleEndian.Uint64(buf[0:8])
	copy(s.TailHash[:], buf[8:])
	return s, nil
}

// writeSegmentHeader writes the fixed segment header to w.
func writeSegmentHeader(w *bufio.Writer, streamID ids.StreamId, firstOffset uint64) error {
	buf := make([]byte, segmentHeaderSize)
	copy(buf[0:8], segmentMagic[:])
	binary.LittleEndian.PutUint16(buf[8:10], segmentFormatVersion)
	binary.LittleEndian.PutUint64(buf[10:18], uint64(streamID))
	binary.LittleEndian.PutUint64(buf[18:26], firstOffset)
	// reserved(4) left zero
	_, err := w.Write(buf)
	return err
}

// readSegmentHeader parses and validates a segment header.
func readSegmentHeader(buf []byte) (streamID ids.StreamId, firstOffset uint64, err error) {
	if len(buf) < segmentHeaderSize {
		return 0, 0, fmt.Errorf("wal: segment header truncated")
	}
	if [8]byte(buf[0:8]) != segmentMagic {
		return 0, 0, fmt.Errorf("wal: bad segment magic")
	}
	version := binary.LittleEndian.Uint16(buf[8:10])
	if version != segmentFormatVersion {
		return 0, 0, fmt.Errorf("wal: unsupported segment version %d", version)
	}
	streamID = ids.StreamId(binary.LittleEndian.Uint64(buf[10:18]))
	firstOffset = binary.LittleEndian.Uint64(buf[18:26])
	return streamID, firstOffset, nil
}

// segmentWriter owns one open (unsealed) segment file for a single stream.
// It is never shared across goroutines; the stream's append lock
// (see stream.go) is the only synchronization.
type segmentWriter struct {
	f           *os.File
	w           *bufio.Writer
	firstOffset uint64
	size        int64
	tailHash    crypto.Digest
	lastOffset  uint64
	hasRecord   bool
}

func newBufioWriter(f *os.File) *bufio.Writer {
	return bufio.NewWriter(f)
}

func createSegment(dir string, streamID ids.StreamId, firstOffset uint64) (*segmentWriter, error) {
	path := filepath.Join(dir, segmentFileName(firstOffset))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: create segment %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := writeSegmentHeader(w, streamID, firstOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: write segment header: %w", err)
	}
	return &segmentWriter{f: f, w: w, firstOffset: firstOffset, size: segmentHeaderSize}, nil
}

// appendRecord buffers r's encoding into the segment. Callers must flush
// per the active FsyncPolicy.
func (s *segmentWriter) appendRecord(r Record) error {
	encoded := Encode(r)
	if _, err := s.w.Write(encoded); err != nil {
		return fmt.Errorf("wal: write record: %w", err)
	}
	s.size += int64(len(encoded))
	s.tailHash = r.Hash
	s.lastOffset = r.Offset
	s.hasRecord = true
	return nil
}

// flush pushes buffered bytes to the OS and, if fsync is requested, to
// stable storage.
func (s *segmentWriter) flush(fsync bool) error {
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("wal: flush segment: %w", err)
	}
	if fsync {
		if err := s.f.Sync(); err != nil {
			return fmt.Errorf("wal: fsync segment: %w", err)
		}
	}
	return nil
}

// seal flushes, fsyncs, and writes the .sealed sidecar, then closes the
// file. A sealed segment is immutable from this point on.
func (s *segmentWriter) seal(dir string) error {
	if err := s.flush(true); err != nil {
		return err
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("wal: close segment: %w", err)
	}
	if !s.hasRecord {
		return nil
	}
	sidecar := SealedSidecar{LastOffset: s.lastOffset, TailHash: s.tailHash}
	path := filepath.Join(dir, sealedSidecarName(s.firstOffset))
	if err := os.WriteFile(path, encodeSealedSidecar(sidecar), 0o644); err != nil {
		return fmt.Errorf("wal: write sealed sidecar: %w", err)
	}
	return nil
}
