package core

import (
	"slices"
	"testing"

	"github.com/omriShneor/rustdex/errors"
)

func TestKeyDir(t *testing.T) {
	kd := NewKeyDir()

	if _, ok := kd.Lookup([]byte("a")); ok {
		t.Fatalf("empty key directory returned an entry")
	}

	first := KeyDirEntry{SegmentID: 1, Offset: 0, ValueSize: 1, RecordSize: 22, Timestamp: 1}
	if _, replaced := kd.Upsert([]byte("a"), first); replaced {
		t.Errorf("first upsert reported a replaced entry")
	}

	second := KeyDirEntry{SegmentID: 2, Offset: 40, ValueSize: 3, RecordSize: 24, Timestamp: 2}
	prev, replaced := kd.Upsert([]byte("a"), second)
	if !replaced || prev != first {
		t.Errorf("Upsert() = %+v, %v; want %+v, true", prev, replaced, first)
	}

	got, ok := kd.Lookup([]byte("a"))
	if !ok || got != second {
		t.Errorf("Lookup() = %+v, %v; want %+v", got, ok, second)
	}

	kd.Upsert([]byte("b"), first)
	if kd.Len() != 2 {
		t.Errorf("Len() = %d, want 2", kd.Len())
	}

	var keys []string
	for _, k := range kd.Keys() {
		keys = append(keys, string(k))
	}
	slices.Sort(keys)
	if !slices.Equal(keys, []string{"a", "b"}) {
		t.Errorf("Keys() = %v", keys)
	}

	if prev, removed := kd.Remove([]byte("a")); !removed || prev != second {
		t.Errorf("Remove() = %+v, %v", prev, removed)
	}
	if _, removed := kd.Remove([]byte("a")); removed {
		t.Errorf("second Remove reported a removed entry")
	}
	if _, ok := kd.Lookup([]byte("a")); ok {
		t.Errorf("removed key still present")
	}

	n := 0
	kd.Range(func(key string, e KeyDirEntry) bool {
		n++
		return false
	})
	if n != 1 {
		t.Errorf("Range visited %d entries after stop", n)
	}
}

func TestKeysAreCopies(t *testing.T) {
	kd := NewKeyDir()
	kd.Upsert([]byte("key"), KeyDirEntry{})

	keys := kd.Keys()
	keys[0][0] = 'x'

	if _, ok := kd.Lookup([]byte("key")); !ok {
		t.Fatalf("mutating a returned key changed the directory")
	}
}

func TestManifest(t *testing.T) {
	dir := t.TempDir()

	if _, ok, err := readManifest(dir); ok || err != nil {
		t.Fatalf("readManifest() on empty dir = %v, %v", ok, err)
	}

	want := manifest{Active: 7, Floor: 4}
	if err := writeManifest(dir, want); err != nil {
		t.Fatalf("writeManifest failed: %v", err)
	}

	got, ok, err := readManifest(dir)
	if err != nil || !ok {
		t.Fatalf("readManifest() = %v, %v", ok, err)
	}
	if got != want {
		t.Errorf("readManifest() = %+v, want %+v", got, want)
	}

	data := want.encode()
	for i := range data {
		bad := slices.Clone(data)
		bad[i] ^= 0x01
		if _, err := decodeManifest(bad); !errors.Is(errors.Corrupt, err) {
			t.Errorf("flipping byte %d: expected corruption error, got %v", i, err)
		}
	}
	if _, err := decodeManifest(data[:8]); !errors.Is(errors.Corrupt, err) {
		t.Errorf("expected corruption error for short manifest, got %v", err)
	}
}
