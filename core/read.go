package core

import (
	"bytes"

	"github.com/omriShneor/rustdex/errors"
	"github.com/omriShneor/rustdex/internal/record"
)

// Get returns the value stored under key. A key that was never written or
// has been deleted fails with errors.NotExist. A record that cannot be read
// back as the directory describes it fails with errors.Corrupt.
func (bk *Bitcask) Get(key []byte) ([]byte, error) {
	const op = "core.Get"

	bk.mu.RLock()
	if bk.closed {
		bk.mu.RUnlock()
		return nil, errors.E(op, errors.Closed)
	}
	e, ok := bk.keyDir.Lookup(key)
	if !ok {
		bk.mu.RUnlock()
		return nil, errors.E(op, errors.NotExist, errors.Errorf("key %q", key))
	}
	// The segment is pinned before the lock is dropped, so a compaction
	// that repoints this key cannot delete the file under the read.
	seg, err := bk.segments.Acquire(e.SegmentID)
	if err != nil {
		bk.mu.RUnlock()
		return nil, errors.E(op, errors.Corrupt, errors.Errorf("key %q references missing segment %d", key, e.SegmentID))
	}
	bk.readers.Add(1)
	bk.mu.RUnlock()

	defer bk.readers.Done()
	defer bk.release(seg)

	data, err := seg.ReadAt(e.Offset, int64(e.RecordSize))
	if err != nil {
		return nil, errors.E(op, err)
	}

	rec, err := record.DecodeRecordFromBytes(data)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if rec.IsTombstone() || rec.ValueSize != e.ValueSize || !bytes.Equal(rec.Key, key) {
		return nil, errors.E(op, errors.Corrupt, errors.Errorf("record at segment %d offset %d does not hold key %q", e.SegmentID, e.Offset, key))
	}

	return rec.Value, nil
}
