package model

// ObjectID identifies a tracked body. The low 32 bits address a store
// slot and the high 32 bits carry the slot's generation, so a freed
// slot's old IDs stay dead forever and are never confused with the
// slot's next occupant.
type ObjectID uint64

// NewObjectID packs a slot index and generation into an ObjectID.
func NewObjectID(slot int, generation uint32) ObjectID {
	return ObjectID(uint64(generation)<<32 | uint64(uint32(slot)))
}

// Slot returns the store slot the ID addresses.
func (id ObjectID) Slot() int {
	return int(uint32(id))
}

// Generation returns the slot generation the ID was minted with.
func (id ObjectID) Generation() uint32 {
	return uint32(id >> 32)
}

// ObjectClass indicates what kind of body an object is.
type ObjectClass int

const (
	ClassSatellite ObjectClass = iota
	ClassDebris
	ClassRemoved // burned up or otherwise destroyed
)

// String returns the lowercase wire name of the class.
func (c ObjectClass) String() string {
	switch c {
	case ClassSatellite:
		return "satellite"
	case ClassDebris:
		return "debris"
	case ClassRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// OrbitClass is a presentation grouping tag derived from the orbit an
// object was seeded into. It has no effect on physics.
type OrbitClass int

const (
	OrbitLEO OrbitClass = iota
	OrbitMEO
	OrbitGEO
	OrbitHEO
)

// String returns the conventional orbit-class abbreviation.
func (c OrbitClass) String() string {
	switch c {
	case OrbitLEO:
		return "LEO"
	case OrbitMEO:
		return "MEO"
	case OrbitGEO:
		return "GEO"
	case OrbitHEO:
		return "HEO"
	default:
		return "unknown"
	}
}

// PhysicsObject is one tracked body: a satellite, a debris fragment, or
// a dead slot awaiting reuse. Positions are km in an Earth-centered
// inertial frame, velocities km/s, mass kg, radius km.
type PhysicsObject struct {
	ID       ObjectID
	Position Vec3
	Velocity Vec3
	Mass     float64
	Radius   float64
	Class    ObjectClass
	Orbit    OrbitClass
	Alive    bool

	// CreatedAt is the simulation time (seconds since engine start) the
	// object was seeded or fragmented into existence.
	CreatedAt float64
}
