package core

import (
	"math"
	"sort"

	"github.com/orbitalfoundry/debris-simulator/model"
)

// CascadeParams tunes the forced-collision demonstration mode.
type CascadeParams struct {
	// ClosingSpeedKmS is the speed each selected satellite is given on
	// its converging trajectory.
	ClosingSpeedKmS float64

	// TeleportRangeKm: when the chosen pair is further apart than this,
	// both are moved to a shared midpoint so a collision is guaranteed
	// within the next tick.
	TeleportRangeKm float64

	// ApproachOffsetKm is half the gap the pair is re-placed at after a
	// teleport.
	ApproachOffsetKm float64

	// LevelDivisor derives cascadeLevel = collisionCount / LevelDivisor.
	LevelDivisor int
}

// DefaultCascadeParams returns the documented demonstration defaults.
func DefaultCascadeParams() CascadeParams {
	return CascadeParams{
		ClosingSpeedKmS:  7.5,
		TeleportRangeKm:  50,
		ApproachOffsetKm: 10,
		LevelDivisor:     5,
	}
}

// CascadeController orchestrates deliberate collisions ("Kessler
// syndrome" demonstration) and keeps cascade statistics. It is the
// only mutator of the CascadeState.
type CascadeController struct {
	params CascadeParams
	state  model.CascadeState
}

// NewCascadeController builds a controller with the given parameters.
func NewCascadeController(params CascadeParams) *CascadeController {
	if params.LevelDivisor <= 0 {
		params.LevelDivisor = 5
	}
	return &CascadeController{params: params}
}

// State returns a copy of the current cascade statistics.
func (c *CascadeController) State() model.CascadeState {
	return c.state
}

// Trigger selects two live satellites at the most similar altitude,
// points them at each other at the closing speed, and teleports them
// to a shared midpoint when they are too far apart to meet naturally.
// This is a forced, deterministic event for demonstrating debris
// cascade growth, not an emergent one.
//
// gridCellKm is the collision detector's broad-phase cell size. A
// staged midpoint is snapped to the centre of its cell: detection is
// same-bucket only, and a pair straddling a cell boundary would never
// be tested against each other.
func (c *CascadeController) Trigger(store *Store, simTime, gridCellKm float64) ([2]model.ObjectID, error) {
	type candidate struct {
		id  model.ObjectID
		alt float64
	}
	var sats []candidate
	store.ForEachAlive(func(obj *model.PhysicsObject) {
		if obj.Class == model.ClassSatellite {
			sats = append(sats, candidate{id: obj.ID, alt: obj.Position.Norm()})
		}
	})
	if len(sats) < 2 {
		return [2]model.ObjectID{}, ErrCascadeUnavailable
	}

	// Similar altitudes maximize the odds of a believable cascade:
	// sort by radius and take the closest adjacent pair.
	sort.Slice(sats, func(i, j int) bool { return sats[i].alt < sats[j].alt })
	best := 0
	bestGap := math.Inf(1)
	for i := 0; i+1 < len(sats); i++ {
		if gap := sats[i+1].alt - sats[i].alt; gap < bestGap {
			bestGap = gap
			best = i
		}
	}

	a := store.lookup(sats[best].id)
	b := store.lookup(sats[best+1].id)

	if a.Position.DistanceTo(b.Position) > c.params.TeleportRangeKm {
		mid := a.Position.Add(b.Position).Scale(0.5)
		// Keep the staged collision out of the atmosphere.
		minRadius := c.minStagingRadius()
		if mid.Norm() < minRadius {
			mid = mid.Normalized().Scale(minRadius)
		}
		if gridCellKm > 0 {
			mid = snapToCellCenter(mid, gridCellKm)
		}
		axis := tangentAt(mid)
		a.Position = mid.Sub(axis.Scale(c.params.ApproachOffsetKm))
		b.Position = mid.Add(axis.Scale(c.params.ApproachOffsetKm))
	}

	// Converging, opposite trajectories at the configured closing speed.
	toB := b.Position.Sub(a.Position).Normalized()
	a.Velocity = toB.Scale(c.params.ClosingSpeedKmS)
	b.Velocity = toB.Scale(-c.params.ClosingSpeedKmS)

	if !c.state.Active {
		c.state = model.CascadeState{Active: true, StartTime: simTime}
	}
	return [2]model.ObjectID{a.ID, b.ID}, nil
}

// minStagingRadius keeps forced collisions above a typical LEO floor.
// Snapping afterwards can lower the point by up to half a cell
// diagonal, which still leaves it well above the burnup altitude.
func (c *CascadeController) minStagingRadius() float64 {
	return EarthRadiusKm + 400
}

// snapToCellCenter moves a point to the centre of the broad-phase cell
// containing it.
func snapToCellCenter(p model.Vec3, cell float64) model.Vec3 {
	return model.Vec3{
		X: (math.Floor(p.X/cell) + 0.5) * cell,
		Y: (math.Floor(p.Y/cell) + 0.5) * cell,
		Z: (math.Floor(p.Z/cell) + 0.5) * cell,
	}
}

// RecordCollisions folds one tick's collision and debris counts into
// the cascade statistics. Counts only accumulate while a cascade is
// active; they never decrease.
func (c *CascadeController) RecordCollisions(collisions, fragments int) {
	if !c.state.Active || collisions < 0 || fragments < 0 {
		return
	}
	c.state.CollisionCount += collisions
	c.state.DebrisGenerated += fragments
	c.state.Level = c.state.CollisionCount / c.params.LevelDivisor
}

// Reset clears cascade statistics, e.g. when the scenario is reseeded.
func (c *CascadeController) Reset() {
	c.state = model.CascadeState{}
}
