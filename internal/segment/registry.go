package segment

import (
	"maps"
	"slices"
	"sync"

	"github.com/omriShneor/rustdex/errors"
)

// Registry resolves segment ids to open segments.
//
// Everything else in the engine refers to segments by id. A reader pins a
// segment with Acquire for the duration of a read; Retire removes an id from
// the registry and deletes its files once the last pin is released.
type Registry struct {
	mu       sync.Mutex
	segments map[uint32]*Segment
}

func NewRegistry() *Registry {
	return &Registry{segments: make(map[uint32]*Segment)}
}

// Add registers s under its id. Ids are never reused, so a taken id is an error.
func (r *Registry) Add(s *Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.segments[s.id]; ok {
		return errors.E("segment.Registry.Add", errors.Invalid, errors.Errorf("segment %d already registered", s.id))
	}
	r.segments[s.id] = s
	return nil
}

// Get returns the segment registered under id without pinning it.
func (r *Registry) Get(id uint32) (*Segment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.segments[id]
	return s, ok
}

// Acquire pins and returns the segment registered under id.
// Every successful Acquire must be paired with a Release.
func (r *Registry) Acquire(id uint32) (*Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.segments[id]
	if !ok {
		return nil, errors.E("segment.Registry.Acquire", errors.NotExist, errors.Errorf("segment %d", id))
	}
	s.refs++
	return s, nil
}

// Release unpins s. If s was retired and this was the last pin, its files
// are removed.
func (r *Registry) Release(s *Segment) error {
	r.mu.Lock()
	s.refs--
	remove := s.retired && s.refs == 0
	r.mu.Unlock()

	if remove {
		return s.Remove()
	}
	return nil
}

// Retire unregisters id. Its files are removed immediately if nothing holds
// a pin, otherwise by the last Release. It reports whether removal is
// still pending.
func (r *Registry) Retire(id uint32) (pending bool, err error) {
	r.mu.Lock()
	s, ok := r.segments[id]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}
	delete(r.segments, id)
	s.retired = true
	pending = s.refs > 0
	r.mu.Unlock()

	if pending {
		return true, nil
	}
	return false, s.Remove()
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.segments))
}

// Len returns the number of registered segments.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.segments)
}

// CloseAll closes every registered segment and empties the registry.
// The first error is returned but every segment is closed.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for id, s := range r.segments {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.segments, id)
	}
	return first
}
