package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kimberlite-db/kimberlite/internal/ids"
)

func TestAppendBatchAssignsSequentialOffsets(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStream(dir, ids.NewStreamId(1, 1), DefaultRollThreshold)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer s.Close()

	recs, err := s.AppendBatch([][]byte{[]byte("a"), []byte("b"), []byte("c")}, 0, FsyncPerBatch)
	if err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	for i, r := range recs {
		if r.Offset != uint64(i) {
			t.Fatalf("record %d has offset %d", i, r.Offset)
		}
	}
	if recs[1].PrevHash != recs[0].Hash {
		t.Fatal("chain broken: records[1].prev_hash != records[0].hash")
	}
	if got := s.NextOffset(); got != 3 {
		t.Fatalf("NextOffset() = %d, want 3", got)
	}
}

func TestAppendBatchRejectsOffsetGap(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStream(dir, ids.NewStreamId(1, 1), DefaultRollThreshold)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer s.Close()

	if _, err := s.AppendBatch([][]byte{[]byte("a")}, 0, FsyncPerBatch); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	_, err = s.AppendBatch([][]byte{[]byte("b")}, 5, FsyncPerBatch)
	if err == nil {
		t.Fatal("expected OffsetGapError")
	}
	gapErr, ok := err.(*OffsetGapError)
	if !ok {
		t.Fatalf("expected *OffsetGapError, got %T", err)
	}
	if gapErr.Expected != 1 || gapErr.Got != 5 {
		t.Fatalf("unexpected gap error: %+v", gapErr)
	}
}

func TestReadFromValidatesChain(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStream(dir, ids.NewStreamId(1, 1), DefaultRollThreshold)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	if _, err := s.AppendBatch([][]byte{[]byte("a"), []byte("b")}, 0, FsyncPerBatch); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := OpenStream(dir, ids.NewStreamId(1, 1), DefaultRollThreshold)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	result, err := s2.ReadFrom(0, 1<<20)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	defer result.Close()

	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if string(result.Records[0].Payload) != "a" || string(result.Records[1].Payload) != "b" {
		t.Fatalf("unexpected payloads: %+v", result.Records)
	}
}

func TestRecoveryTruncatesCorruptTail(t *testing.T) {
	dir := t.TempDir()
	streamID := ids.NewStreamId(1, 1)
	s, err := OpenStream(dir, streamID, DefaultRollThreshold)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	if _, err := s.AppendBatch([][]byte{[]byte("a"), []byte("b"), []byte("c")}, 0, FsyncPerBatch); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	// Do not seal: simulate a crash by leaving the segment open, then
	// corrupt the tail bytes after record 1 to model a torn write.
	names, err := s.segmentFiles()
	if err != nil || len(names) != 1 {
		t.Fatalf("expected exactly one open segment, got %v err=%v", names, err)
	}
	path := filepath.Join(dir, names[0])

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	// Flush without sealing so bytes are on disk for the corruption test.
	if err := s.writer.flush(true); err != nil {
		t.Fatalf("flush: %v", err)
	}
	info, err = os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	// Truncate mid-record to model a partial write of the 3rd record.
	if err := os.Truncate(path, info.Size()-2); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	s2, err := OpenStream(dir, streamID, DefaultRollThreshold)
	if err != nil {
		t.Fatalf("recovery OpenStream: %v", err)
	}
	defer s2.Close()

	if got := s2.NextOffset(); got != 2 {
		t.Fatalf("NextOffset() after recovery = %d, want 2 (records a, b survive)", got)
	}

	if _, err := s2.AppendBatch([][]byte{[]byte("c-retry")}, 2, FsyncPerBatch); err != nil {
		t.Fatalf("append after recovery: %v", err)
	}
}

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	var prev [32]byte
	rec := BuildRecord(prev, 0, []byte("payload"))
	encoded := Encode(rec)

	decoded, n, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != len(encoded) {
		t.Fatalf("Decode consumed %d bytes, want %d", n, len(encoded))
	}
	if decoded.Offset != rec.Offset || decoded.Hash != rec.Hash || decoded.CRC32 != rec.CRC32 {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, rec)
	}
	if err := Validate(decoded, nil); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
