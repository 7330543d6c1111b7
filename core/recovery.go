package core

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/omriShneor/rustdex/errors"
	"github.com/omriShneor/rustdex/internal/record"
	"github.com/omriShneor/rustdex/internal/segment"
)

// segmentLoad is what recovery learns about one segment: every record it
// holds, in log order, without values.
type segmentLoad struct {
	seg     *segment.Segment
	entries []record.HintRecord
	scanned bool // entries came from a full scan rather than a hint file
}

// recover rebuilds the key directory from the segments in bk.dir.
//
// Segments are decoded in parallel but applied strictly in ascending id
// order, so a later record for a key always overrides an earlier one.
func (bk *Bitcask) recover() error {
	const op = "core.recover"

	listing, err := segment.List(bk.dir)
	if err != nil {
		return errors.E(op, err)
	}

	// A compaction that never published its output.
	for _, name := range listing.Merged {
		bk.logger.Warn().Str("file", name).Msg("removing unfinished merge output")
		if err := os.Remove(filepath.Join(bk.dir, name)); err != nil {
			return errors.E(op, errors.IO, err)
		}
	}

	m, haveManifest, err := readManifest(bk.dir)
	if err != nil {
		return errors.E(op, err)
	}

	var ids []uint32
	for _, id := range listing.Segments {
		if haveManifest && id < m.Floor {
			// Superseded by a finished compaction whose cleanup was cut short.
			bk.logger.Info().Uint32("segment", id).Uint32("floor", m.Floor).Msg("removing compacted segment")
			if err := removeSegmentFiles(bk.dir, id); err != nil {
				return errors.E(op, err)
			}
			continue
		}
		if haveManifest && id > m.Active {
			return errors.E(op, errors.Corrupt, errors.Errorf("segment %d is newer than active segment %d recorded in manifest", id, m.Active))
		}
		ids = append(ids, id)
	}

	for _, id := range listing.Hints {
		if _, found := slices.BinarySearch(ids, id); !found {
			if err := os.Remove(filepath.Join(bk.dir, segment.HintFileName(id))); err != nil && !os.IsNotExist(err) {
				return errors.E(op, errors.IO, err)
			}
		}
	}

	var activeID uint32
	switch {
	case haveManifest:
		activeID = m.Active
		bk.floor = m.Floor
	case len(ids) > 0:
		activeID = ids[len(ids)-1]
	}

	loads := make([]segmentLoad, 0, len(ids)+1)
	for _, id := range ids {
		seg, err := segment.Open(bk.dir, id)
		if err != nil {
			return errors.E(op, err)
		}
		if err := bk.segments.Add(seg); err != nil {
			seg.Close()
			return errors.E(op, err)
		}
		loads = append(loads, segmentLoad{seg: seg})
	}

	if len(ids) == 0 || ids[len(ids)-1] != activeID {
		seg, err := segment.Create(bk.dir, activeID)
		if err != nil {
			return errors.E(op, err)
		}
		if err := bk.segments.Add(seg); err != nil {
			seg.Close()
			return errors.E(op, err)
		}
		loads = append(loads, segmentLoad{seg: seg})
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range loads {
		l := &loads[i]
		if l.seg.ID() == activeID {
			g.Go(func() error { return bk.loadActive(l) })
		} else {
			g.Go(func() error { return bk.loadSealed(l) })
		}
	}
	if err := g.Wait(); err != nil {
		return errors.E(op, err)
	}

	for i := range loads {
		bk.apply(&loads[i])
	}

	active := loads[len(loads)-1]
	active.seg.Unseal()
	bk.active = active.seg
	bk.activeHints = active.entries
	bk.nextID = activeID + 1
	if !haveManifest {
		if err := writeManifest(bk.dir, manifest{Active: activeID}); err != nil {
			return errors.E(op, err)
		}
	}

	if bk.active.Size() >= bk.cfg.MaxSegmentSize {
		if err := bk.rotate(); err != nil {
			return errors.E(op, err)
		}
	}
	return nil
}

// loadSealed reads a sealed segment through its hint file when one is
// present and consistent, and by a full scan otherwise. A sealed segment
// was complete when it was sealed, so any record that fails to decode is
// corruption.
func (bk *Bitcask) loadSealed(l *segmentLoad) error {
	hints, err := l.seg.ReadHints()
	if err == nil {
		l.entries = hints
		return nil
	}
	if !errors.Is(errors.NotExist, err) {
		bk.logger.Warn().Err(err).Uint32("segment", l.seg.ID()).Msg("ignoring hint file, scanning segment")
	}

	s := bk.newScanner(l.seg)
	l.entries = scanEntries(s)
	l.scanned = true
	if err := s.Err(); err != nil {
		if errors.Is(errors.IO, err) {
			return err
		}
		return errors.E(errors.Corrupt, errors.Errorf("sealed segment %d: bad record at offset %d: %v", l.seg.ID(), s.Offset(), err))
	}

	if bk.cfg.WriteHints {
		if err := l.seg.WriteHints(l.entries); err != nil {
			bk.logger.Warn().Err(err).Uint32("segment", l.seg.ID()).Msg("error writing hint file")
		}
	}
	return nil
}

// loadActive scans the segment that was being written. A record cut short
// at the end of the file is the expected result of a crash mid-append and
// is discarded; a bad record followed by more data is corruption.
func (bk *Bitcask) loadActive(l *segmentLoad) error {
	s := bk.newScanner(l.seg)
	l.entries = scanEntries(s)
	l.scanned = true

	err := s.Err()
	if err == nil {
		return nil
	}
	if errors.Is(errors.IO, err) {
		return err
	}
	if !s.AtTail() {
		return errors.E(errors.Corrupt, errors.Errorf("active segment %d: bad record at offset %d: %v", l.seg.ID(), s.Offset(), err))
	}

	bk.logger.Warn().
		Err(err).
		Uint32("segment", l.seg.ID()).
		Int64("offset", s.Offset()).
		Int64("discarded", l.seg.Size()-s.Offset()).
		Msg("truncating torn record at end of active segment")
	return l.seg.Truncate(s.Offset())
}

// newScanner returns a scanner that rejects headers no Put could have
// written under the current limits.
func (bk *Bitcask) newScanner(seg *segment.Segment) *record.Scanner {
	s := seg.NewScanner()
	s.SetLimits(bk.cfg.MaxKeySize, bk.cfg.MaxValueSize)
	return s
}

func scanEntries(s *record.Scanner) []record.HintRecord {
	var entries []record.HintRecord
	for s.Next() {
		r := s.Record()
		entries = append(entries, record.HintRecord{
			Timestamp: r.Timestamp,
			KeySize:   r.KeySize,
			ValueSize: r.ValueSize,
			Offset:    uint64(s.Offset()),
			Key:       bytes.Clone(r.Key),
		})
	}
	return entries
}

// apply replays one segment into the key directory. Records are applied
// unconditionally: scan order is write order.
func (bk *Bitcask) apply(l *segmentLoad) {
	id := l.seg.ID()
	u := &segmentUsage{total: l.seg.Size()}
	bk.usage[id] = u

	for i := range l.entries {
		h := &l.entries[i]
		size := h.RecordSize()

		if h.IsTombstone() {
			u.dead += size
			if prev, removed := bk.keyDir.Remove(h.Key); removed {
				bk.markDeadLocked(prev)
			}
		} else {
			e := KeyDirEntry{
				SegmentID:  id,
				Offset:     int64(h.Offset),
				ValueSize:  h.ValueSize,
				RecordSize: uint32(size),
				Timestamp:  h.Timestamp,
			}
			if prev, replaced := bk.keyDir.Upsert(h.Key, e); replaced {
				bk.markDeadLocked(prev)
			}
		}

		if h.Timestamp > bk.lastTimestamp {
			bk.lastTimestamp = h.Timestamp
		}
	}

	bk.logger.Debug().Uint32("segment", id).Int("records", len(l.entries)).Bool("scanned", l.scanned).Msg("recovered segment")
}

func removeSegmentFiles(dir string, id uint32) error {
	for _, name := range []string{segment.DataFileName(id), segment.HintFileName(id)} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return errors.E("core.removeSegmentFiles", errors.IO, err)
		}
	}
	return nil
}
