package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/edsrzf/mmap-go"

	"github.com/kimberlite-db/kimberlite/internal/crypto"
	"github.com/kimberlite-db/kimberlite/internal/ids"
)

// FsyncPolicy controls when a batch's bytes are forced to stable storage.
type FsyncPolicy int

const (
	// FsyncNone never calls fsync explicitly; only OS page cache flushes
	// apply. Used only for throwaway/simulated streams.
	FsyncNone FsyncPolicy = iota
	// FsyncPerBatch fsyncs once per AppendBatch call. The default.
	FsyncPerBatch
	// FsyncPerRecord fsyncs after every individual record, for
	// compliance-critical streams that cannot tolerate losing even the
	// last record of a batch.
	FsyncPerRecord
)

func (p FsyncPolicy) String() string {
	switch p {
	case FsyncNone:
		return "none"
	case FsyncPerBatch:
		return "batch"
	case FsyncPerRecord:
		return "record"
	default:
		return "unknown"
	}
}

// ParseFsyncPolicy parses the KIMBERLITE_FSYNC_POLICY environment value.
func ParseFsyncPolicy(s string) (FsyncPolicy, error) {
	switch s {
	case "none":
		return FsyncNone, nil
	case "batch", "":
		return FsyncPerBatch, nil
	case "record":
		return FsyncPerRecord, nil
	default:
		return 0, fmt.Errorf("wal: unknown fsync policy %q", s)
	}
}

// Stream is a single stream's append-only log: a directory of segments
// under a single exclusive-writer lock. Reads may proceed concurrently
// with writes; Stream itself does not serialize reads against the writer,
// relying on segment immutability once closed and on the writer holding
// its own mutex while the tail segment is still open.
type Stream struct {
	dir      string
	streamID ids.StreamId

	mu         sync.Mutex // guards writer state; one writer per stream
	writer     *segmentWriter
	nextOffset uint64
	tailHash   crypto.Digest
	rollAt     int64

	// segments is the sorted list of first-offsets for closed segments.
	// ReadFrom does not consult it; it lists the segment files instead.
	segmentsMu sync.RWMutex
	segments   []uint64
}

// OpenStream opens or creates a stream's log directory, recovering from
// any crash-truncated tail (see recovery.go).
func OpenStream(dir string, streamID ids.StreamId, rollThreshold int64) (*Stream, error) {
	if rollThreshold <= 0 {
		rollThreshold = DefaultRollThreshold
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: mkdir %s: %w", dir, err)
	}

	s := &Stream{dir: dir, streamID: streamID, rollAt: rollThreshold}
	if err := s.recover(); err != nil {
		return nil, err
	}
	return s, nil
}

// NextOffset returns the next offset that will be assigned on append.
func (s *Stream) NextOffset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextOffset
}

// AppendBatch appends payloads to the stream under the exclusive writer
// lock, failing with OffsetGapError if expectedNextOffset does not match
// the stream's current next_offset (spec §4.2 step 1).
func (s *Stream) AppendBatch(payloads [][]byte, expectedNextOffset uint64, policy FsyncPolicy) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextOffset != expectedNextOffset {
		return nil, &OffsetGapError{
			Stream:   s.streamID.String(),
			Expected: s.nextOffset,
			Got:      expectedNextOffset,
		}
	}

	if s.writer == nil {
		if err := s.openNewSegment(s.nextOffset); err != nil {
			return nil, err
		}
	}

	records := make([]Record, 0, len(payloads))
	for _, payload := range payloads {
		rec := BuildRecord(s.tailHash, s.nextOffset, payload)

		if s.writer.size+int64(rec.EncodedSize()) > s.rollAt && s.writer.hasRecord {
			if err := s.rollSegment(); err != nil {
				return nil, err
			}
		}

		if err := s.writer.appendRecord(rec); err != nil {
			return nil, err
		}
		if policy == FsyncPerRecord {
			if err := s.writer.flush(true); err != nil {
				return nil, err
			}
		}

		s.tailHash = rec.Hash
		s.nextOffset++
		records = append(records, rec)
	}

	if policy == FsyncPerBatch {
		if err := s.writer.flush(true); err != nil {
			return nil, err
		}
	} else if policy == FsyncNone {
		if err := s.writer.flush(false); err != nil {
			return nil, err
		}
	}

	return records, nil
}

func (s *Stream) openNewSegment(firstOffset uint64) error {
	w, err := createSegment(s.dir, s.streamID, firstOffset)
	if err != nil {
		return err
	}
	s.writer = w
	return nil
}

func (s *Stream) rollSegment() error {
	if err := s.writer.seal(s.dir); err != nil {
		return err
	}
	s.segmentsMu.Lock()
	s.segments = append(s.segments, s.writer.firstOffset)
	s.segmentsMu.Unlock()

	return s.openNewSegment(s.nextOffset)
}

// Close seals the active segment (if any) so the log is left in a clean,
// fully-durable state.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return nil
	}
	err := s.writer.seal(s.dir)
	s.writer = nil
	return err
}

// segmentFiles lists closed (.kmseg with a .sealed sidecar) segments plus
// the current open one, sorted by first offset ascending.
func (s *Stream) segmentFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("wal: read dir %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".kmseg") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func firstOffsetFromName(name string) (uint64, error) {
	base := strings.TrimSuffix(filepath.Base(name), ".kmseg")
	return strconv.ParseUint(base, 10, 64)
}

// ReadFrom reads records starting at fromOffset, validating every CRC and
// chain hash, stopping once maxBytes of payload has been read or the
// stream's tail is reached. Each segment is mapped read-only via mmap and
// Decode copies every payload out of the mapping, so the returned payload
// slices stay valid after the ReadResult's Close.
func (s *Stream) ReadFrom(fromOffset uint64, maxBytes int) (*ReadResult, error) {
	names, err := s.segmentFiles()
	if err != nil {
		return nil, err
	}

	result := &ReadResult{}
	var expectedPrev *crypto.Digest

	budget := maxBytes
	for _, name := range names {
		mapping, recs, segLast, err := readSegment(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		result.mappings = append(result.mappings, mapping)

		if segLast < fromOffset {
			continue
		}

		for _, rec := range recs {
			if rec.Offset < fromOffset {
				expectedPrev = ptrDigest(rec.Hash)
				continue
			}
			if err := Validate(rec, expectedPrev); err != nil {
				result.Truncated = true
				return result, err
			}
			h := rec.Hash
			expectedPrev = &h

			result.Records = append(result.Records, rec)
			budget -= len(rec.Payload)
			if budget <= 0 {
				return result, nil
			}
		}
	}

	return result, nil
}

func ptrDigest(d crypto.Digest) *crypto.Digest { return &d }

// ReadResult holds records returned by ReadFrom along with the memory
// mappings of the segments it read. Close must be called to unmap them.
type ReadResult struct {
	Records   []Record
	Truncated bool
	mappings  []mmap.MMap
}

// Close unmaps every segment mapping opened to satisfy this read.
func (r *ReadResult) Close() error {
	var firstErr error
	for _, m := range r.mappings {
		if err := m.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// readSegment mmaps a closed or open segment file read-only and decodes
// every record it contains, without validating chain continuity (the
// caller stitches continuity across segment boundaries).
func readSegment(path string) (mmap.MMap, []Record, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("wal: open segment %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("wal: stat segment %s: %w", path, err)
	}
	if info.Size() == 0 {
		return nil, nil, 0, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("wal: mmap segment %s: %w", path, err)
	}

	if _, _, err := readSegmentHeader(m); err != nil {
		m.Unmap()
		return nil, nil, 0, fmt.Errorf("wal: segment %s: %w", path, err)
	}

	var records []Record
	var lastOffset uint64
	off := segmentHeaderSize
	for off < len(m) {
		rec, n, err := Decode(m[off:])
		if err != nil {
			break // partial tail record; recovery.go handles truncation
		}
		records = append(records, rec)
		lastOffset = rec.Offset
		off += n
	}

	return m, records, lastOffset, nil
}
