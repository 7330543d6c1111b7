package core

import (
	"bytes"
	"cmp"
	"slices"
	"time"

	"github.com/omriShneor/rustdex/errors"
	"github.com/omriShneor/rustdex/internal/record"
	"github.com/omriShneor/rustdex/internal/segment"
)

// mergeJob is the snapshot a compaction works from.
type mergeJob struct {
	id       uint32   // id reserved for the merge output
	segments []uint32 // sealed segments being replaced
	items    []mergeItem
}

type mergeItem struct {
	key    []byte
	entry  KeyDirEntry // entry at snapshot time
	offset int64       // position in the merge output
}

// Compact rewrites the live records of every sealed segment into a single
// new segment and removes the old ones. Writes continue while the copy runs.
// Only one compaction runs at a time; a second caller waits.
func (bk *Bitcask) Compact() error {
	bk.mergeMu.Lock()
	defer bk.mergeMu.Unlock()
	return bk.compact()
}

// compact runs one merge cycle. bk.mergeMu must be held.
//
// The active segment A is sealed first. The merge output takes id A+1 and
// new writes go to A+2, so replaying segments in id order puts every copied
// record after the versions it replaces and before any write made while the
// merge ran.
func (bk *Bitcask) compact() error {
	const op = "core.Compact"

	start := time.Now()

	job, err := bk.beginMerge()
	if err != nil {
		return errors.E(op, err)
	}
	if job == nil {
		return nil
	}

	bk.logger.Info().
		Uint32("output", job.id).
		Int("segments", len(job.segments)).
		Int("live", len(job.items)).
		Msg("compaction started")

	out, err := bk.writeMerge(job)
	if err != nil {
		return errors.E(op, err)
	}

	reclaimed, err := bk.finishMerge(job, out)

	bk.logger.Info().
		Uint32("output", job.id).
		Int("segments", len(job.segments)).
		Int64("reclaimed", reclaimed).
		Dur("elapsed", time.Since(start)).
		Msg("compaction finished")

	if err != nil {
		return errors.E(op, err)
	}
	return nil
}

// beginMerge seals the active segment, reserves the output id and takes a
// snapshot of the directory entries that live in sealed segments. It returns
// nil when there is nothing worth merging.
func (bk *Bitcask) beginMerge() (*mergeJob, error) {
	bk.writeMu.Lock()
	defer bk.writeMu.Unlock()

	if err := bk.writable(); err != nil {
		return nil, err
	}

	bk.mu.RLock()
	activeID := bk.active.ID()
	activeEmpty := bk.active.Size() == 0
	var candidates []uint32
	var dead int64
	for id, u := range bk.usage {
		if id == activeID && activeEmpty {
			continue
		}
		candidates = append(candidates, id)
		dead += u.dead
	}
	bk.mu.RUnlock()

	if len(candidates) == 0 || (len(candidates) == 1 && dead == 0) {
		return nil, nil
	}

	id := bk.nextID
	bk.nextID++
	if err := bk.rotate(); err != nil {
		return nil, err
	}

	job := &mergeJob{id: id}
	for _, sid := range bk.segments.IDs() {
		if sid < id {
			job.segments = append(job.segments, sid)
		}
	}

	bk.mu.RLock()
	bk.keyDir.Range(func(key string, e KeyDirEntry) bool {
		if e.SegmentID < id {
			job.items = append(job.items, mergeItem{key: []byte(key), entry: e})
		}
		return true
	})
	bk.mu.RUnlock()

	// Copy in log order so the output reads sequentially from each input.
	slices.SortFunc(job.items, func(a, b mergeItem) int {
		if c := cmp.Compare(a.entry.SegmentID, b.entry.SegmentID); c != 0 {
			return c
		}
		return cmp.Compare(a.entry.Offset, b.entry.Offset)
	})

	return job, nil
}

// writeMerge copies every snapshotted record into the merge output and
// publishes it under its final name. It runs without the write lock. The
// input segments cannot be retired meanwhile since only a compaction
// retires segments. A nil segment means no live records were found.
func (bk *Bitcask) writeMerge(job *mergeJob) (*segment.Segment, error) {
	const op = "core.writeMerge"

	if len(job.items) == 0 {
		return nil, nil
	}

	out, err := segment.CreateMerge(bk.dir, job.id)
	if err != nil {
		return nil, errors.E(op, err)
	}

	hints := make([]record.HintRecord, 0, len(job.items))
	for i := range job.items {
		it := &job.items[i]

		src, ok := bk.segments.Get(it.entry.SegmentID)
		if !ok {
			out.Remove()
			return nil, errors.E(op, errors.Corrupt, errors.Errorf("key %q references missing segment %d", it.key, it.entry.SegmentID))
		}
		data, err := src.ReadAt(it.entry.Offset, int64(it.entry.RecordSize))
		if err != nil {
			out.Remove()
			return nil, errors.E(op, err)
		}
		rec, err := record.DecodeRecordFromBytes(data)
		if err != nil {
			out.Remove()
			return nil, errors.E(op, errors.Corrupt, errors.Errorf("segment %d offset %d: %v", it.entry.SegmentID, it.entry.Offset, err))
		}
		if !bytes.Equal(rec.Key, it.key) || rec.IsTombstone() {
			out.Remove()
			return nil, errors.E(op, errors.Corrupt, errors.Errorf("record at segment %d offset %d does not hold key %q", it.entry.SegmentID, it.entry.Offset, it.key))
		}

		// The record is copied as is; its checksum and timestamp still hold.
		offset, err := out.Append(data)
		if err != nil {
			out.Remove()
			return nil, errors.E(op, err)
		}
		it.offset = offset

		hints = append(hints, record.HintRecord{
			Timestamp: rec.Timestamp,
			KeySize:   rec.KeySize,
			ValueSize: rec.ValueSize,
			Offset:    uint64(offset),
			Key:       it.key,
		})
	}

	if err := out.Seal(); err != nil {
		out.Remove()
		return nil, errors.E(op, err)
	}
	if err := out.Rename(); err != nil {
		out.Remove()
		return nil, errors.E(op, err)
	}
	if bk.cfg.WriteHints {
		if err := out.WriteHints(hints); err != nil {
			bk.logger.Warn().Err(err).Uint32("segment", job.id).Msg("error writing hint file")
		}
	}
	return out, nil
}

// finishMerge repoints the directory at the merge output and retires the
// inputs. An entry is only repointed if it is still the one snapshotted;
// anything written or deleted during the copy wins.
func (bk *Bitcask) finishMerge(job *mergeJob, out *segment.Segment) (int64, error) {
	const op = "core.finishMerge"

	bk.writeMu.Lock()
	defer bk.writeMu.Unlock()

	if out != nil {
		if err := bk.segments.Add(out); err != nil {
			out.Remove()
			return 0, errors.E(op, err)
		}
	}

	bk.mu.Lock()
	var u *segmentUsage
	if out != nil {
		u = &segmentUsage{total: out.Size()}
		bk.usage[job.id] = u
	}
	for _, it := range job.items {
		cur, ok := bk.keyDir.Lookup(it.key)
		if !ok || cur != it.entry {
			u.dead += int64(it.entry.RecordSize)
			continue
		}
		cur.SegmentID = job.id
		cur.Offset = it.offset
		bk.keyDir.Upsert(it.key, cur)
	}

	var reclaimed int64
	for _, id := range job.segments {
		if old, ok := bk.usage[id]; ok {
			reclaimed += old.total
			delete(bk.usage, id)
		}
	}
	if out != nil {
		reclaimed -= out.Size()
	}
	bk.compactions++
	bk.reclaimed += reclaimed
	bk.mu.Unlock()

	// Once the floor is durable the inputs are dead to recovery, even if a
	// pinned one outlives a crash.
	bk.floor = job.id
	merr := writeManifest(bk.dir, manifest{Active: bk.active.ID(), Floor: bk.floor})
	if merr != nil {
		bk.logger.Error().Err(merr).Uint32("floor", job.id).Msg("error recording compaction floor")
	}

	for _, id := range job.segments {
		pending, err := bk.segments.Retire(id)
		if err != nil {
			bk.logger.Warn().Err(err).Uint32("segment", id).Msg("error removing compacted segment")
			continue
		}
		if pending {
			bk.logger.Debug().Uint32("segment", id).Msg("compacted segment still in use, removal deferred")
		}
	}

	if merr != nil {
		return reclaimed, errors.E(op, merr)
	}
	return reclaimed, nil
}
