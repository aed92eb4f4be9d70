package wal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kimberlite-db/kimberlite/internal/crypto"
)

// recover scans the stream's directory on open. Every closed segment
// (one with a .sealed sidecar) is assumed durable and is validated only
// far enough to recover the chain tail hash and offset; a CRC or chain
// failure in a closed segment is fatal (SegmentCorruptError) per spec
// §4.2 — operator intervention or VSR state transfer is required. The
// most recent segment without a sidecar is the open tail: its first bad
// record (if any) marks the end of durable data, and the file is
// truncated to the last good record.
func (s *Stream) recover() error {
	names, err := s.segmentFiles()
	if err != nil {
		return err
	}

	if len(names) == 0 {
		s.nextOffset = 0
		s.tailHash = crypto.Digest{}
		return nil
	}

	s.segmentsMu.Lock()
	for _, name := range names[:len(names)-1] {
		first, err := firstOffsetFromName(name)
		if err != nil {
			s.segmentsMu.Unlock()
			return err
		}
		s.segments = append(s.segments, first)
	}
	s.segmentsMu.Unlock()

	for i, name := range names {
		isTail := i == len(names)-1
		path := filepath.Join(s.dir, name)
		first, err := firstOffsetFromName(name)
		if err != nil {
			return err
		}

		sealed := s.hasSealedSidecar(first)

		lastOffset, lastHash, haveAny, truncatedAt, err := s.validateSegment(path, sealed)
		if err != nil {
			if sealed || !isTail {
				// A sealed segment's failure is fatal. So is a non-tail
				// segment's: only the last segment may be open.
				return &SegmentCorruptError{Path: path, Offset: lastOffset, Cause: err}
			}
			if truncatedAt >= 0 {
				if err := truncateFile(path, truncatedAt); err != nil {
					return fmt.Errorf("wal: truncate corrupt tail %s: %w", path, err)
				}
			}
		}

		if haveAny {
			s.nextOffset = lastOffset + 1
			s.tailHash = lastHash
		} else {
			s.nextOffset = first
		}

		if isTail && !sealed {
			w, err := reopenSegmentForAppend(path, first)
			if err != nil {
				return err
			}
			w.lastOffset = lastOffset
			w.tailHash = lastHash
			w.hasRecord = haveAny
			s.writer = w
		}
	}

	return nil
}

func (s *Stream) hasSealedSidecar(firstOffset uint64) bool {
	_, err := os.Stat(filepath.Join(s.dir, sealedSidecarName(firstOffset)))
	return err == nil
}

// validateSegment walks every record in the segment at path, validating
// CRC and chain continuity. It returns the last good offset/hash seen. If
// a record fails validation, err is non-nil and truncatedAt is the byte
// offset to truncate the file to (only meaningful for an open tail).
func (s *Stream) validateSegment(path string, sealed bool) (lastOffset uint64, lastHash crypto.Digest, haveAny bool, truncatedAt int64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, crypto.Digest{}, false, -1, fmt.Errorf("wal: read segment %s: %w", path, err)
	}

	_, firstOffset, hdrErr := readSegmentHeader(data)
	if hdrErr != nil {
		return 0, crypto.Digest{}, false, 0, hdrErr
	}

	var expectedPrev *crypto.Digest
	off := segmentHeaderSize
	for off < len(data) {
		rec, n, decErr := Decode(data[off:])
		if decErr != nil {
			if sealed {
				return lastOffset, lastHash, haveAny, -1, decErr
			}
			return lastOffset, lastHash, haveAny, int64(off), decErr
		}

		if valErr := Validate(rec, expectedPrev); valErr != nil {
			if sealed {
				return lastOffset, lastHash, haveAny, -1, valErr
			}
			return lastOffset, lastHash, haveAny, int64(off), valErr
		}

		lastOffset = rec.Offset
		lastHash = rec.Hash
		h := rec.Hash
		expectedPrev = &h
		haveAny = true
		off += n
	}

	_ = firstOffset
	return lastOffset, lastHash, haveAny, -1, nil
}

func truncateFile(path string, size int64) error {
	return os.Truncate(path, size)
}

func reopenSegmentForAppend(path string, firstOffset uint64) (*segmentWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: reopen segment %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: stat reopened segment %s: %w", path, err)
	}
	return &segmentWriter{
		f:           f,
		w:           newBufioWriter(f),
		firstOffset: firstOffset,
		size:        info.Size(),
	}, nil
}
