package core

import (
	"math"

	"github.com/orbitalfoundry/debris-simulator/model"
)

// cellKey addresses one fixed-size cube of the spatial hash.
type cellKey struct {
	x, y, z int32
}

// Detector finds colliding pairs in two phases: a spatial-hash broad
// phase that buckets objects into fixed 3D grid cells, then an exact
// distance test on the objects sharing a bucket. Pairwise checking the
// whole population would be O(n²), which is infeasible past a few
// thousand objects.
type Detector struct {
	// CellSizeKm is the broad-phase cell edge. It must comfortably
	// exceed object radii plus the safety margin so that contacts are
	// found within a single bucket.
	CellSizeKm float64

	// MaxSafetyMarginKm caps the extra contact distance granted to
	// fast-moving pairs. The margin per pair is relativeSpeed·h, a cheap
	// stand-in for continuous collision detection, which is not
	// attempted at this scale.
	MaxSafetyMarginKm float64

	cells map[cellKey][]int32
}

// NewDetector builds a detector with the given broad-phase cell size.
func NewDetector(cellSizeKm, maxSafetyMarginKm float64) *Detector {
	if cellSizeKm <= 0 {
		cellSizeKm = 100
	}
	return &Detector{
		CellSizeKm:        cellSizeKm,
		MaxSafetyMarginKm: maxSafetyMarginKm,
		cells:             make(map[cellKey][]int32),
	}
}

// keyFor maps a position to its grid cell.
func (d *Detector) keyFor(pos model.Vec3) cellKey {
	inv := 1 / d.CellSizeKm
	return cellKey{
		x: int32(math.Floor(pos.X * inv)),
		y: int32(math.Floor(pos.Y * inv)),
		z: int32(math.Floor(pos.Z * inv)),
	}
}

// rebuild rebuckets every live object. Bucket slices are reused across
// ticks to keep steady-state allocation near zero.
func (d *Detector) rebuild(store *Store) {
	for k, bucket := range d.cells {
		if len(bucket) == 0 {
			delete(d.cells, k)
			continue
		}
		d.cells[k] = bucket[:0]
	}
	objects := store.slice()
	for i := range objects {
		if !objects[i].Alive {
			continue
		}
		k := d.keyFor(objects[i].Position)
		d.cells[k] = append(d.cells[k], int32(i))
	}
}

// contact reports whether two bodies are touching: distance below the
// sum of their radii plus the speed-scaled safety margin for the
// sub-step length h.
func (d *Detector) contact(a, b *model.PhysicsObject, h float64) (model.CollisionEvent, bool) {
	relSpeed := a.Velocity.Sub(b.Velocity).Norm()
	margin := relSpeed * h
	if margin > d.MaxSafetyMarginKm {
		margin = d.MaxSafetyMarginKm
	}
	reach := a.Radius + b.Radius + margin
	if a.Position.DistanceTo(b.Position) >= reach {
		return model.CollisionEvent{}, false
	}
	return model.CollisionEvent{
		A:               a.ID,
		B:               b.ID,
		ContactPosition: a.Position.Add(b.Position).Scale(0.5),
		RelativeSpeed:   relSpeed,
		CombinedMass:    a.Mass + b.Mass,
	}, true
}

// Detect returns this tick's collision events. h is the sub-step
// length used for the fast-mover margin. An object consumed by one
// collision is withdrawn from further candidacy in the same tick
// (first match wins); simultaneous collisions between distinct pairs
// are all reported.
func (d *Detector) Detect(store *Store, h float64) []model.CollisionEvent {
	d.rebuild(store)

	var events []model.CollisionEvent
	consumed := make(map[int32]struct{})

	for _, bucket := range d.cells {
		if len(bucket) < 2 {
			continue
		}
		for i := 0; i < len(bucket); i++ {
			si := bucket[i]
			if _, gone := consumed[si]; gone {
				continue
			}
			a := store.at(int(si))
			for j := i + 1; j < len(bucket); j++ {
				sj := bucket[j]
				if _, gone := consumed[sj]; gone {
					continue
				}
				b := store.at(int(sj))
				ev, hit := d.contact(a, b, h)
				if !hit {
					continue
				}
				events = append(events, ev)
				consumed[si] = struct{}{}
				consumed[sj] = struct{}{}
				break
			}
		}
	}
	return events
}
