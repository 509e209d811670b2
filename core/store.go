package core

import (
	"fmt"

	"github.com/orbitalfoundry/debris-simulator/model"
)

// Store is the flat, capacity-bounded table of physics objects. Slots
// are reused through a free-list in O(1); iteration over the dense
// backing slice is what the parallel backend shards across workers.
//
// The store is exclusively owned by the engine and is not safe for
// concurrent mutation; the engine serializes access around each tick.
type Store struct {
	objects []model.PhysicsObject
	gens    []uint32
	free    []int32

	alive      int
	satellites int
	debris     int
}

// NewStore allocates a store with the given fixed capacity.
func NewStore(capacity int) (*Store, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrInitialization, capacity)
	}
	s := &Store{
		objects: make([]model.PhysicsObject, capacity),
		gens:    make([]uint32, capacity),
		free:    make([]int32, 0, capacity),
	}
	// Seed the free-list so low slots are handed out first.
	for i := capacity - 1; i >= 0; i-- {
		s.free = append(s.free, int32(i))
		s.gens[i] = 1 // generation 0 is never minted, so the zero ObjectID stays invalid
	}
	return s, nil
}

// Capacity returns the fixed maximum number of live objects.
func (s *Store) Capacity() int { return len(s.objects) }

// Len returns the current number of live objects.
func (s *Store) Len() int { return s.alive }

// FreeSlots returns how many more objects can be allocated.
func (s *Store) FreeSlots() int { return len(s.free) }

// Satellites returns the number of live satellite-class objects.
func (s *Store) Satellites() int { return s.satellites }

// Debris returns the number of live debris-class objects.
func (s *Store) Debris() int { return s.debris }

// Allocate places the given object into a free slot and returns its
// ID. The caller's ID and Alive fields are overwritten by the store.
func (s *Store) Allocate(spec model.PhysicsObject) (model.ObjectID, error) {
	if len(s.free) == 0 {
		return 0, ErrCapacityExceeded
	}
	if spec.Mass <= 0 || spec.Radius <= 0 {
		return 0, fmt.Errorf("%w: object needs positive mass and radius", ErrInvalidObject)
	}

	slot := int(s.free[len(s.free)-1])
	s.free = s.free[:len(s.free)-1]

	id := model.NewObjectID(slot, s.gens[slot])
	spec.ID = id
	spec.Alive = true
	s.objects[slot] = spec

	s.alive++
	switch spec.Class {
	case model.ClassSatellite:
		s.satellites++
	case model.ClassDebris:
		s.debris++
	}
	return id, nil
}

// Free releases the slot behind id. Freeing a dead or stale ID is a
// no-op returning false.
func (s *Store) Free(id model.ObjectID) bool {
	obj := s.lookup(id)
	if obj == nil {
		return false
	}
	slot := id.Slot()

	switch obj.Class {
	case model.ClassSatellite:
		s.satellites--
	case model.ClassDebris:
		s.debris--
	}
	s.alive--

	obj.Alive = false
	obj.Class = model.ClassRemoved
	s.gens[slot]++ // retire every ID minted for this slot
	s.free = append(s.free, int32(slot))
	return true
}

// Get returns a copy of the object behind id, or false when the ID is
// stale or was never allocated.
func (s *Store) Get(id model.ObjectID) (model.PhysicsObject, bool) {
	obj := s.lookup(id)
	if obj == nil {
		return model.PhysicsObject{}, false
	}
	return *obj, true
}

// ForEachAlive calls fn with a pointer to every live object. The
// pointer is only valid for the duration of the call; fn must not
// allocate or free store slots.
func (s *Store) ForEachAlive(fn func(*model.PhysicsObject)) {
	for i := range s.objects {
		if s.objects[i].Alive {
			fn(&s.objects[i])
		}
	}
}

// slice exposes the dense backing array for the parallel backend. Dead
// slots are present and must be skipped via the Alive flag.
func (s *Store) slice() []model.PhysicsObject {
	return s.objects
}

// at returns the object in a slot without liveness checks.
func (s *Store) at(slot int) *model.PhysicsObject {
	return &s.objects[slot]
}

// lookup resolves an ID to its live object, or nil when the slot is
// dead or the generation is stale.
func (s *Store) lookup(id model.ObjectID) *model.PhysicsObject {
	slot := id.Slot()
	if slot < 0 || slot >= len(s.objects) {
		return nil
	}
	if s.gens[slot] != id.Generation() {
		return nil
	}
	obj := &s.objects[slot]
	if !obj.Alive {
		return nil
	}
	return obj
}
