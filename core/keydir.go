package core

// KeyDirEntry represents the in-memory index entry for a single key.
//
// Each entry points to the latest record bearing the key across all
// segments. Older versions may still exist in immutable segments but are
// unreachable.
//
// The KeyDir is rebuilt on startup by scanning segments or reading
// hint files.
type KeyDirEntry struct {
	SegmentID  uint32 // Segment containing the record
	Offset     int64  // Byte offset in the segment where the record starts
	ValueSize  uint32 // Size of the value in bytes
	RecordSize uint32 // Total size of the record on disk (header + key + value)
	Timestamp  uint64 // Timestamp of the record
}

// KeyDir is the in-memory index mapping keys to their latest on-disk entries.
//
// A KeyDir holds live keys only: applying a tombstone removes the key. It is
// not safe for concurrent use; the engine guards it with its own lock.
type KeyDir struct {
	entries map[string]KeyDirEntry
}

func NewKeyDir() *KeyDir {
	return &KeyDir{entries: make(map[string]KeyDirEntry)}
}

// Lookup returns the entry for key.
func (kd *KeyDir) Lookup(key []byte) (KeyDirEntry, bool) {
	e, ok := kd.entries[string(key)]
	return e, ok
}

// Upsert points key at e unconditionally and returns the entry it replaced.
func (kd *KeyDir) Upsert(key []byte, e KeyDirEntry) (prev KeyDirEntry, replaced bool) {
	k := string(key)
	prev, replaced = kd.entries[k]
	kd.entries[k] = e
	return prev, replaced
}

// Remove drops key and returns the entry it had.
func (kd *KeyDir) Remove(key []byte) (prev KeyDirEntry, removed bool) {
	k := string(key)
	prev, removed = kd.entries[k]
	if removed {
		delete(kd.entries, k)
	}
	return prev, removed
}

// Keys returns a copy of every live key, in no particular order.
func (kd *KeyDir) Keys() [][]byte {
	keys := make([][]byte, 0, len(kd.entries))
	for k := range kd.entries {
		keys = append(keys, []byte(k))
	}
	return keys
}

// Len returns the number of live keys.
func (kd *KeyDir) Len() int {
	return len(kd.entries)
}

// Range calls fn for every entry until fn returns false.
func (kd *KeyDir) Range(fn func(key string, e KeyDirEntry) bool) {
	for k, e := range kd.entries {
		if !fn(k, e) {
			return
		}
	}
}
