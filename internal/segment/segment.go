package segment

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/omriShneor/rustdex/errors"
	"github.com/omriShneor/rustdex/internal/record"
	"github.com/omriShneor/rustdex/internal/utils"
)

// Segment is one append-only data file identified by a numeric id.
//
// Only an unsealed segment accepts appends. Reads may run concurrently with
// each other and with an append, since they only touch bytes below the size
// observed when the record was located.
type Segment struct {
	id   uint32
	dir  string
	path string
	file *os.File

	mu     sync.RWMutex // for size + sealed
	size   int64
	sealed bool

	// Owned by Registry.
	refs    int
	retired bool
}

// Create opens the data file for segment id in dir, creating it if needed.
// The segment starts unsealed with its size at the end of any existing data.
func Create(dir string, id uint32) (*Segment, error) {
	return openPath(dir, filepath.Join(dir, DataFileName(id)), id, os.O_CREATE|os.O_RDWR)
}

// Open opens an existing data file for segment id. It is returned sealed;
// call Unseal to make it the active segment.
func Open(dir string, id uint32) (*Segment, error) {
	s, err := openPath(dir, filepath.Join(dir, DataFileName(id)), id, os.O_RDWR)
	if err != nil {
		return nil, err
	}
	s.sealed = true
	return s, nil
}

// CreateMerge creates the temporary output file of a compaction whose
// result will become segment id.
func CreateMerge(dir string, id uint32) (*Segment, error) {
	path := filepath.Join(dir, MergedFileName(id))
	return openPath(dir, path, id, os.O_CREATE|os.O_TRUNC|os.O_RDWR)
}

func openPath(dir, path string, id uint32, flag int) (*Segment, error) {
	const op = "segment.Open"

	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(op, errors.NotExist, err)
		}
		return nil, errors.E(op, errors.IO, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.E(op, errors.IO, err)
	}

	if flag&os.O_CREATE != 0 {
		if err := utils.SyncDir(dir); err != nil {
			f.Close()
			return nil, errors.E(op, errors.IO, err)
		}
	}

	return &Segment{id: id, dir: dir, path: path, file: f, size: info.Size()}, nil
}

// ID returns the segment id.
func (s *Segment) ID() uint32 {
	return s.id
}

// Path returns the current path of the data file.
func (s *Segment) Path() string {
	return s.path
}

// Size returns the number of bytes appended so far.
func (s *Segment) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Sealed reports whether the segment is read-only.
func (s *Segment) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed
}

// Append writes b at the end of the segment and returns the offset at which
// it begins. The bytes are durable only after Flush.
func (s *Segment) Append(b []byte) (int64, error) {
	const op = "segment.Append"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return 0, errors.E(op, errors.Sealed, errors.Errorf("segment %d", s.id))
	}

	n, err := s.file.WriteAt(b, s.size)
	if err != nil {
		// A short write leaves a torn record; drop it so the next append
		// starts on a record boundary.
		if n > 0 {
			_ = s.file.Truncate(s.size)
		}
		return 0, errors.E(op, errors.IO, err)
	}

	offset := s.size
	s.size += int64(n)
	return offset, nil
}

// ReadAt returns exactly n bytes starting at offset.
func (s *Segment) ReadAt(offset, n int64) ([]byte, error) {
	const op = "segment.ReadAt"

	if offset < 0 || n < 0 || offset+n > s.Size() {
		return nil, errors.E(op, errors.Corrupt, errors.Errorf("read [%d,%d) beyond segment %d", offset, offset+n, s.id))
	}

	buf := make([]byte, n)
	if _, err := s.file.ReadAt(buf, offset); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.E(op, errors.Corrupt, err)
		}
		return nil, errors.E(op, errors.IO, err)
	}
	return buf, nil
}

// Flush forces appended bytes to stable storage.
func (s *Segment) Flush() error {
	if err := fdatasync(s.file); err != nil {
		return errors.E("segment.Flush", errors.IO, err)
	}
	return nil
}

// Seal flushes the segment and makes it read-only. Sealing twice is a no-op.
func (s *Segment) Seal() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return nil
	}
	if err := fdatasync(s.file); err != nil {
		return errors.E("segment.Seal", errors.IO, err)
	}
	s.sealed = true
	return nil
}

// Unseal reopens a segment for appends. It is used when the engine resumes
// writing to the active segment found on disk.
func (s *Segment) Unseal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = false
}

// Truncate discards everything at and after size. It is used by recovery
// to drop a torn trailing record.
func (s *Segment) Truncate(size int64) error {
	const op = "segment.Truncate"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := utils.TruncateAt(s.file, size); err != nil {
		return errors.E(op, errors.IO, err)
	}
	s.size = size
	return nil
}

// NewScanner returns a record scanner over the current contents.
func (s *Segment) NewScanner() *record.Scanner {
	size := s.Size()
	return record.NewScanner(io.NewSectionReader(s.file, 0, size), size)
}

// Rename moves the data file to the canonical name for its id. It is used
// to publish the output of a compaction.
func (s *Segment) Rename() error {
	const op = "segment.Rename"

	target := filepath.Join(s.dir, DataFileName(s.id))
	if err := os.Rename(s.path, target); err != nil {
		return errors.E(op, errors.IO, err)
	}
	if err := utils.SyncDir(s.dir); err != nil {
		return errors.E(op, errors.IO, err)
	}
	s.path = target
	return nil
}

// WriteHints persists a hint file for the segment. The file is written
// to a temporary name and renamed into place.
func (s *Segment) WriteHints(hints []record.HintRecord) error {
	const op = "segment.WriteHints"

	data := record.EncodeHintFile(s.id, s.Size(), hints)
	path := filepath.Join(s.dir, HintFileName(s.id))
	if err := utils.WriteFileAtomic(path, data); err != nil {
		return errors.E(op, errors.IO, err)
	}
	return nil
}

// ReadHints loads the segment's hint file. It fails with errors.NotExist if
// there is none and errors.Corrupt if it does not match the data file.
func (s *Segment) ReadHints() ([]record.HintRecord, error) {
	const op = "segment.ReadHints"

	data, err := os.ReadFile(filepath.Join(s.dir, HintFileName(s.id)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(op, errors.NotExist, err)
		}
		return nil, errors.E(op, errors.IO, err)
	}
	hints, err := record.DecodeHintFile(data, s.id, s.Size())
	if err != nil {
		return nil, errors.E(op, err)
	}
	return hints, nil
}

// Close releases the file handle.
func (s *Segment) Close() error {
	if err := s.file.Close(); err != nil {
		return errors.E("segment.Close", errors.IO, err)
	}
	return nil
}

// Remove closes the segment and deletes its data and hint files.
func (s *Segment) Remove() error {
	const op = "segment.Remove"

	_ = s.file.Close()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.E(op, errors.IO, err)
	}
	if err := os.Remove(filepath.Join(s.dir, HintFileName(s.id))); err != nil && !os.IsNotExist(err) {
		return errors.E(op, errors.IO, err)
	}
	return nil
}
