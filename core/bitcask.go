package core

import (
	"context"
	"iter"
	"os"
	"sync"
	"time"

	"github.com/phuslu/log"

	"github.com/omriShneor/rustdex/errors"
	"github.com/omriShneor/rustdex/internal/lock"
	"github.com/omriShneor/rustdex/internal/record"
	"github.com/omriShneor/rustdex/internal/segment"
)

// Bitcask is a log-structured key/value store rooted in one directory.
//
// Writes are serialized: Put, Delete, segment rotation and the repointing
// step of a compaction all run under a single write lock. Reads only take
// the index lock long enough to resolve an entry and pin its segment, so any
// number of Gets proceed alongside a writer or a running compaction.
type Bitcask struct {
	dir      string
	cfg      Config
	logger   *log.Logger
	lockFile *os.File
	segments *segment.Registry

	mergeMu sync.Mutex // one compaction at a time
	writeMu sync.Mutex // for active appends, rotation and the fields below

	nextID        uint32
	floor         uint32
	lastTimestamp uint64
	activeHints   []record.HintRecord
	dirty         bool
	writeErr      error

	mu          sync.RWMutex // for keyDir, active, usage, counters and closed
	keyDir      *KeyDir
	active      *segment.Segment
	usage       map[uint32]*segmentUsage
	compactions uint64
	reclaimed   int64
	closed      bool

	readers   sync.WaitGroup
	compactCh chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// segmentUsage tracks how many bytes of a segment are records and how many
// of those are no longer reachable from the key directory.
type segmentUsage struct {
	total int64
	dead  int64
}

// Stats is a point-in-time summary of an engine.
type Stats struct {
	Segments       int
	ActiveSegment  uint32
	Keys           int
	TotalBytes     int64
	DeadBytes      int64
	GarbageRatio   float64
	Compactions    uint64
	ReclaimedBytes int64
}

// Open opens the store in dir, creating the directory if needed, and
// rebuilds the key directory from the segments found there.
//
// The directory is locked for the lifetime of the returned engine; a second
// Open of the same directory fails with errors.Locked until Close.
func Open(dir string, cfg Config) (*Bitcask, error) {
	const op = "core.Open"

	if err := cfg.Validate(); err != nil {
		return nil, errors.E(op, err)
	}

	// 0 (special bit - ignored), 7 (rwx - owner), 5 (r-x - user group), 5 (r-x - others)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.E(op, errors.Invalid, err)
	}

	lf, err := lock.LockDirectory(dir)
	if err != nil {
		return nil, errors.E(op, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &log.DefaultLogger
	}

	bk := &Bitcask{
		dir:       dir,
		cfg:       cfg,
		logger:    logger,
		lockFile:  lf,
		segments:  segment.NewRegistry(),
		keyDir:    NewKeyDir(),
		usage:     make(map[uint32]*segmentUsage),
		compactCh: make(chan struct{}, 1),
	}

	start := time.Now()
	if err := bk.recover(); err != nil {
		bk.segments.CloseAll()
		lock.UnlockDirectory(lf)
		return nil, errors.E(op, err)
	}

	bk.logger.Info().
		Str("dir", dir).
		Int("segments", bk.segments.Len()).
		Int("keys", bk.keyDir.Len()).
		Uint32("active", bk.active.ID()).
		Dur("elapsed", time.Since(start)).
		Msg("bitcask opened")

	ctx, cancel := context.WithCancel(context.Background())
	bk.cancel = cancel

	if !cfg.SyncOnWrite {
		bk.wg.Add(1)
		go bk.syncDiskInterval(ctx, cfg.SyncInterval)
	}
	if cfg.AutoCompact.Enabled {
		bk.wg.Add(1)
		go bk.autoCompactInterval(ctx, cfg.AutoCompact.Interval)
	}

	return bk, nil
}

// Dir returns the directory the engine was opened on.
func (bk *Bitcask) Dir() string {
	return bk.dir
}

// ListKeys returns the keys live at the time of the call. The sequence is
// a snapshot and is unaffected by later writes.
func (bk *Bitcask) ListKeys() (iter.Seq[[]byte], error) {
	bk.mu.RLock()
	defer bk.mu.RUnlock()

	if bk.closed {
		return nil, errors.E("core.ListKeys", errors.Closed)
	}

	keys := bk.keyDir.Keys()
	return func(yield func([]byte) bool) {
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}, nil
}

// Exists reports whether key is live.
func (bk *Bitcask) Exists(key []byte) (bool, error) {
	bk.mu.RLock()
	defer bk.mu.RUnlock()

	if bk.closed {
		return false, errors.E("core.Exists", errors.Closed)
	}
	_, ok := bk.keyDir.Lookup(key)
	return ok, nil
}

// Count returns the number of live keys.
func (bk *Bitcask) Count() (int, error) {
	bk.mu.RLock()
	defer bk.mu.RUnlock()

	if bk.closed {
		return 0, errors.E("core.Count", errors.Closed)
	}
	return bk.keyDir.Len(), nil
}

// Stats returns counters describing the on-disk state.
func (bk *Bitcask) Stats() (Stats, error) {
	bk.mu.RLock()
	defer bk.mu.RUnlock()

	if bk.closed {
		return Stats{}, errors.E("core.Stats", errors.Closed)
	}

	s := Stats{
		Segments:       len(bk.usage),
		ActiveSegment:  bk.active.ID(),
		Keys:           bk.keyDir.Len(),
		Compactions:    bk.compactions,
		ReclaimedBytes: bk.reclaimed,
	}
	s.TotalBytes, s.DeadBytes = bk.bytesLocked()
	if s.TotalBytes > 0 {
		s.GarbageRatio = float64(s.DeadBytes) / float64(s.TotalBytes)
	}
	return s, nil
}

// bytesLocked sums segment usage. bk.mu must be held.
func (bk *Bitcask) bytesLocked() (total, dead int64) {
	for _, u := range bk.usage {
		total += u.total
		dead += u.dead
	}
	return total, dead
}

// Sync flushes the active segment. It is only needed when SyncOnWrite is
// off; otherwise every write is already durable when it returns.
func (bk *Bitcask) Sync() error {
	const op = "core.Sync"

	bk.writeMu.Lock()
	defer bk.writeMu.Unlock()

	if bk.closed {
		return errors.E(op, errors.Closed)
	}
	if !bk.dirty {
		return nil
	}
	if err := bk.active.Flush(); err != nil {
		bk.writeErr = err
		return errors.E(op, err)
	}
	bk.dirty = false
	return nil
}

// Close stops background work, flushes the active segment and releases
// every file handle and the directory lock. Operations on a closed engine,
// including a second Close, fail with errors.Closed.
func (bk *Bitcask) Close() error {
	const op = "core.Close"

	bk.cancel()
	bk.wg.Wait()

	bk.mergeMu.Lock()
	defer bk.mergeMu.Unlock()
	bk.writeMu.Lock()
	defer bk.writeMu.Unlock()

	bk.mu.Lock()
	if bk.closed {
		bk.mu.Unlock()
		return errors.E(op, errors.Closed)
	}
	bk.closed = true
	bk.mu.Unlock()

	// No new reader can start once closed is set.
	bk.readers.Wait()

	var first error
	if err := bk.active.Flush(); err != nil {
		first = errors.E(op, err)
	}
	if err := bk.segments.CloseAll(); err != nil && first == nil {
		first = errors.E(op, err)
	}
	lock.UnlockDirectory(bk.lockFile)

	bk.logger.Info().Str("dir", bk.dir).Msg("bitcask closed")
	return first
}

func (bk *Bitcask) syncDiskInterval(ctx context.Context, interval time.Duration) {
	defer bk.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := bk.Sync(); err != nil && !errors.Is(errors.Closed, err) {
				bk.logger.Error().Err(err).Msg("error syncing active segment")
			}

		case <-ctx.Done():
			return
		}
	}
}

func (bk *Bitcask) autoCompactInterval(ctx context.Context, interval time.Duration) {
	defer bk.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-bk.compactCh:
		case <-ctx.Done():
			return
		}

		if !bk.shouldCompact() {
			continue
		}
		// An explicit Compact is already running.
		if !bk.mergeMu.TryLock() {
			continue
		}
		err := bk.compact()
		bk.mergeMu.Unlock()
		if err != nil {
			bk.logger.Error().Err(err).Msg("automatic compaction failed")
		}
	}
}

// shouldCompact reports whether obsolete bytes, superseded values and
// tombstones alike, have reached the configured share of the store.
func (bk *Bitcask) shouldCompact() bool {
	bk.mu.RLock()
	defer bk.mu.RUnlock()

	if bk.closed {
		return false
	}
	total, dead := bk.bytesLocked()
	if total == 0 || total < bk.cfg.AutoCompact.MinBytes {
		return false
	}
	return float64(dead)/float64(total) >= bk.cfg.AutoCompact.Threshold
}

// triggerCompaction asks the background loop for an early check.
func (bk *Bitcask) triggerCompaction() {
	select {
	case bk.compactCh <- struct{}{}:
	default:
	}
}

func (bk *Bitcask) release(seg *segment.Segment) {
	if err := bk.segments.Release(seg); err != nil {
		bk.logger.Warn().Err(err).Uint32("segment", seg.ID()).Msg("error removing retired segment")
	}
}
