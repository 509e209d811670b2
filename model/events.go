package model

// CollisionEvent describes one detected contact between two live
// objects. Events live for a single tick: the breakup generator
// consumes them immediately and they are then discarded.
type CollisionEvent struct {
	A, B ObjectID

	// ContactPosition is the midpoint between the two bodies at
	// detection time, km ECI.
	ContactPosition Vec3

	// RelativeSpeed is |vA - vB| in km/s.
	RelativeSpeed float64

	// CombinedMass is the sum of both parent masses in kg, the pool
	// the breakup model splits across fragments.
	CombinedMass float64
}

// RemovalReason says why an object left the simulation.
type RemovalReason int

const (
	// RemovalBurnup: altitude dropped below the burnup threshold.
	RemovalBurnup RemovalReason = iota
	// RemovalAnomaly: non-finite state after integration, treated as an
	// implicit reentry.
	RemovalAnomaly
	// RemovalCollision: consumed as a collision parent.
	RemovalCollision
)

// String returns the lowercase wire name of the reason.
func (r RemovalReason) String() string {
	switch r {
	case RemovalBurnup:
		return "burnup"
	case RemovalAnomaly:
		return "anomaly"
	case RemovalCollision:
		return "collision"
	default:
		return "unknown"
	}
}

// RemovalEvent notifies collaborators that an object was destroyed, so
// the renderer can play a burn effect. It carries no further physics
// obligation.
type RemovalEvent struct {
	ID       ObjectID
	Position Vec3
	Reason   RemovalReason
}

// CascadeState is the externally visible bookkeeping of a forced
// debris cascade. Mutated only by the cascade controller.
type CascadeState struct {
	Active          bool    `json:"active"`
	CollisionCount  int     `json:"collisionCount"`
	DebrisGenerated int     `json:"debrisGenerated"`
	Level           int     `json:"cascadeLevel"`
	StartTime       float64 `json:"startTime"` // sim seconds
}
