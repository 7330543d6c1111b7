package segment

import (
	"os"
	"testing"

	"github.com/omriShneor/rustdex/errors"
)

func TestRegistry_RetireWaitsForReaders(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry()

	seg, err := Create(dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Add(seg); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(seg); !errors.Is(errors.Invalid, err) {
		t.Fatalf("expected duplicate id to be rejected, got %v", err)
	}

	pinned, err := r.Acquire(1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	pending, err := r.Retire(1)
	if err != nil {
		t.Fatalf("Retire failed: %v", err)
	}
	if !pending {
		t.Fatalf("Retire should defer removal while a reader holds the segment")
	}
	if _, err := os.Stat(seg.Path()); err != nil {
		t.Fatalf("segment removed while pinned: %v", err)
	}
	if _, err := r.Acquire(1); !errors.Is(errors.NotExist, err) {
		t.Fatalf("retired segment still acquirable: %v", err)
	}

	// The pinned handle remains readable.
	if _, err := pinned.ReadAt(0, 0); err != nil {
		t.Fatalf("read through pinned handle failed: %v", err)
	}

	if err := r.Release(pinned); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(seg.Path()); !os.IsNotExist(err) {
		t.Fatalf("segment not removed after last release")
	}
}

func TestRegistry_RetireUnpinned(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry()

	for _, id := range []uint32{3, 1, 2} {
		seg, err := Create(dir, id)
		if err != nil {
			t.Fatal(err)
		}
		r.Add(seg)
	}

	ids := r.IDs()
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("IDs() = %v", ids)
	}

	pending, err := r.Retire(2)
	if err != nil || pending {
		t.Fatalf("Retire(2) = %v, %v", pending, err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d after retire", r.Len())
	}
	if pending, err := r.Retire(42); err != nil || pending {
		t.Errorf("retiring an unknown id should be a no-op, got %v, %v", pending, err)
	}

	if err := r.CloseAll(); err != nil {
		t.Fatalf("CloseAll failed: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("registry not empty after CloseAll")
	}
}
