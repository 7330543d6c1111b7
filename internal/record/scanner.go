package record

import (
	"bufio"
	"io"

	"github.com/omriShneor/rustdex/errors"
)

// Scanner reads records sequentially from a segment of known size.
//
// Next returns false at the clean end of the data or on the first record
// that cannot be decoded; Err distinguishes the two. After a failure,
// AtTail reports whether the bad record reaches the end of the data, which
// is what a torn write from an unclean shutdown looks like.
//
// A header whose sizes exceed the limits set with SetLimits can only be
// damage, never a torn write, so it is reported as corruption that is not
// at the tail.
type Scanner struct {
	r      *bufio.Reader
	size   int64
	offset int64 // start of the current (or failing) record
	next   int64 // start of the record after the current one
	rec    *DiskRecord
	err    error
	atTail bool

	maxKey   uint32 // 0 means no limit
	maxValue int64  // negative means no limit

	header [DiskRecordHeaderSizeBytes]byte
}

// NewScanner returns a Scanner over the first size bytes of r.
func NewScanner(r io.Reader, size int64) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 64*1024), size: size, maxValue: -1}
}

// SetLimits bounds the key and value sizes a header may declare. It must be
// called before the first Next.
func (s *Scanner) SetLimits(maxKey, maxValue int) {
	s.maxKey = uint32(maxKey)
	s.maxValue = int64(maxValue)
}

// Next advances to the next record.
func (s *Scanner) Next() bool {
	const op = "record.Scan"

	if s.err != nil {
		return false
	}
	s.offset = s.next
	s.rec = nil

	remaining := s.size - s.offset
	if remaining == 0 {
		return false
	}
	if remaining < DiskRecordHeaderSizeBytes {
		return s.fail(truncated(op, DiskRecordHeaderSizeBytes, remaining), true)
	}

	if _, err := io.ReadFull(s.r, s.header[:]); err != nil {
		return s.fail(errors.E(op, errors.IO, err), false)
	}
	h, err := ParseHeader(s.header[:])
	if err != nil {
		return s.fail(errors.E(op, err), true)
	}
	if err := s.checkLimits(h); err != nil {
		return s.fail(errors.E(op, err), false)
	}

	size := h.RecordSize()
	if size > remaining {
		return s.fail(truncated(op, size, remaining), true)
	}

	buf := make([]byte, size)
	copy(buf, s.header[:])
	if _, err := io.ReadFull(s.r, buf[DiskRecordHeaderSizeBytes:]); err != nil {
		return s.fail(errors.E(op, errors.IO, err), false)
	}

	rec, err := DecodeRecordFromBytes(buf)
	if err != nil {
		return s.fail(errors.E(op, err), s.offset+size == s.size)
	}

	s.rec = rec
	s.next = s.offset + size
	return true
}

func (s *Scanner) checkLimits(h Header) error {
	if h.KeySize == 0 {
		return errors.E(errors.Corrupt, errors.Str("empty key"))
	}
	if s.maxKey > 0 && h.KeySize > s.maxKey {
		return errors.E(errors.Corrupt, errors.Errorf("key size %d exceeds limit %d", h.KeySize, s.maxKey))
	}
	if s.maxValue >= 0 && !h.IsTombstone() && int64(h.ValueSize) > s.maxValue {
		return errors.E(errors.Corrupt, errors.Errorf("value size %d exceeds limit %d", h.ValueSize, s.maxValue))
	}
	return nil
}

func (s *Scanner) fail(err error, atTail bool) bool {
	s.err = err
	s.atTail = atTail
	return false
}

// Record returns the record read by the last successful call to Next.
func (s *Scanner) Record() *DiskRecord {
	return s.rec
}

// Offset is the byte offset of the current record, or of the record that
// failed to decode once Next has returned false with a non-nil Err.
func (s *Scanner) Offset() int64 {
	return s.offset
}

// Err returns the first error encountered, or nil at a clean end.
func (s *Scanner) Err() error {
	return s.err
}

// AtTail reports whether the record that failed extends to the end of the data.
func (s *Scanner) AtTail() bool {
	return s.atTail
}
