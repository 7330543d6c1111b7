package core

import (
	"bytes"
	"time"

	"github.com/omriShneor/rustdex/errors"
	"github.com/omriShneor/rustdex/internal/record"
	"github.com/omriShneor/rustdex/internal/segment"
)

// Put stores value under key. The record is appended to the active segment
// and, with SyncOnWrite, flushed before the key directory is updated.
func (bk *Bitcask) Put(key, value []byte) error {
	const op = "core.Put"

	if err := bk.checkKey(key); err != nil {
		return errors.E(op, err)
	}
	if len(value) > bk.cfg.MaxValueSize {
		return errors.E(op, errors.Invalid, errors.Errorf("value of %d bytes exceeds limit of %d", len(value), bk.cfg.MaxValueSize))
	}

	bk.writeMu.Lock()
	defer bk.writeMu.Unlock()

	if err := bk.writable(); err != nil {
		return errors.E(op, err)
	}

	ts := bk.nextTimestamp()
	data := record.Encode(key, value, ts)

	seg, offset, err := bk.appendDurable(data)
	if err != nil {
		return errors.E(op, err)
	}

	entry := KeyDirEntry{
		SegmentID:  seg.ID(),
		Offset:     offset,
		ValueSize:  uint32(len(value)),
		RecordSize: uint32(len(data)),
		Timestamp:  ts,
	}

	bk.mu.Lock()
	prev, replaced := bk.keyDir.Upsert(key, entry)
	bk.usage[seg.ID()].total += int64(len(data))
	if replaced {
		bk.markDeadLocked(prev)
	}
	bk.mu.Unlock()

	bk.activeHints = append(bk.activeHints, record.HintRecord{
		Timestamp: ts,
		KeySize:   uint32(len(key)),
		ValueSize: uint32(len(value)),
		Offset:    uint64(offset),
		Key:       bytes.Clone(key),
	})

	bk.rotateIfFull()
	return nil
}

// Delete removes key. A tombstone is appended even when the key is absent
// so that replay and compaction see every delete.
func (bk *Bitcask) Delete(key []byte) error {
	const op = "core.Delete"

	if err := bk.checkKey(key); err != nil {
		return errors.E(op, err)
	}

	bk.writeMu.Lock()
	defer bk.writeMu.Unlock()

	if err := bk.writable(); err != nil {
		return errors.E(op, err)
	}

	ts := bk.nextTimestamp()
	data := record.EncodeTombstone(key, ts)

	seg, offset, err := bk.appendDurable(data)
	if err != nil {
		return errors.E(op, err)
	}

	bk.mu.Lock()
	prev, removed := bk.keyDir.Remove(key)
	u := bk.usage[seg.ID()]
	u.total += int64(len(data))
	u.dead += int64(len(data))
	if removed {
		bk.markDeadLocked(prev)
	}
	bk.mu.Unlock()

	bk.activeHints = append(bk.activeHints, record.HintRecord{
		Timestamp: ts,
		KeySize:   uint32(len(key)),
		ValueSize: record.TombstoneValueSize,
		Offset:    uint64(offset),
		Key:       bytes.Clone(key),
	})

	bk.rotateIfFull()
	return nil
}

func (bk *Bitcask) checkKey(key []byte) error {
	if len(key) == 0 {
		return errors.E(errors.Invalid, errors.Str("empty key"))
	}
	if len(key) > bk.cfg.MaxKeySize {
		return errors.E(errors.Invalid, errors.Errorf("key of %d bytes exceeds limit of %d", len(key), bk.cfg.MaxKeySize))
	}
	return nil
}

// writable reports why the engine cannot take writes. bk.writeMu must be held.
func (bk *Bitcask) writable() error {
	if bk.closed {
		return errors.E(errors.Closed)
	}
	if bk.writeErr != nil {
		return errors.E(errors.IO, errors.Errorf("writes disabled after earlier failure: %v", bk.writeErr))
	}
	return nil
}

// nextTimestamp returns a nanosecond timestamp strictly greater than any
// handed out before, even if the wall clock steps back.
func (bk *Bitcask) nextTimestamp() uint64 {
	ts := uint64(time.Now().UnixNano())
	if ts <= bk.lastTimestamp {
		ts = bk.lastTimestamp + 1
	}
	bk.lastTimestamp = ts
	return ts
}

// appendDurable writes data to the active segment, rotating first if data
// would push a non-empty segment past MaxSegmentSize. Any failure here
// leaves the active segment in an unknown state, so it disables writes.
func (bk *Bitcask) appendDurable(data []byte) (*segment.Segment, int64, error) {
	if size := bk.active.Size(); size > 0 && size+int64(len(data)) > bk.cfg.MaxSegmentSize {
		if err := bk.rotate(); err != nil {
			return nil, 0, err
		}
	}

	seg := bk.active
	offset, err := seg.Append(data)
	if err != nil {
		bk.writeErr = err
		return nil, 0, err
	}

	if bk.cfg.SyncOnWrite {
		if err := seg.Flush(); err != nil {
			bk.writeErr = err
			return nil, 0, err
		}
	} else {
		bk.dirty = true
	}
	return seg, offset, nil
}

// rotateIfFull seals the active segment once it has reached MaxSegmentSize.
// The write that filled it has already been committed, so a failure is
// logged and surfaces on the next write.
func (bk *Bitcask) rotateIfFull() {
	if bk.active.Size() < bk.cfg.MaxSegmentSize {
		return
	}
	if err := bk.rotate(); err != nil {
		bk.logger.Error().Err(err).Uint32("segment", bk.active.ID()).Msg("error rotating active segment")
	}
}

// rotate seals the active segment and starts a new one with the next id.
// bk.writeMu must be held.
func (bk *Bitcask) rotate() error {
	const op = "core.rotate"

	old := bk.active
	if err := old.Seal(); err != nil {
		bk.writeErr = err
		return errors.E(op, err)
	}
	bk.dirty = false

	if bk.cfg.WriteHints {
		if err := old.WriteHints(bk.activeHints); err != nil {
			bk.logger.Warn().Err(err).Uint32("segment", old.ID()).Msg("error writing hint file")
		}
	}

	id := bk.nextID

	// The manifest names the new segment before it exists, so recovery
	// never mistakes a half-finished rotation for a stray file.
	if err := writeManifest(bk.dir, manifest{Active: id, Floor: bk.floor}); err != nil {
		bk.writeErr = err
		return errors.E(op, err)
	}

	seg, err := segment.Create(bk.dir, id)
	if err != nil {
		bk.writeErr = err
		return errors.E(op, err)
	}
	if err := bk.segments.Add(seg); err != nil {
		seg.Close()
		bk.writeErr = err
		return errors.E(op, err)
	}
	bk.nextID++

	bk.mu.Lock()
	bk.active = seg
	bk.usage[id] = &segmentUsage{}
	bk.mu.Unlock()

	bk.activeHints = nil

	bk.logger.Info().Uint32("sealed", old.ID()).Uint32("active", id).Int64("sealed_size", old.Size()).Msg("rotated active segment")

	bk.triggerCompaction()
	return nil
}

// markDeadLocked accounts the record e points at as obsolete. bk.mu must
// be held for writing.
func (bk *Bitcask) markDeadLocked(e KeyDirEntry) {
	if u, ok := bk.usage[e.SegmentID]; ok {
		u.dead += int64(e.RecordSize)
	}
}
