package core

import (
	"context"
	"math"
	"sort"

	"github.com/orbitalfoundry/debris-simulator/internal/logging"
	"github.com/orbitalfoundry/debris-simulator/model"
)

// ClassDistribution specifies how a seeded population is split across
// orbit classes plus ambient debris. Weights are relative; they need
// not sum to one.
type ClassDistribution struct {
	LEO    float64
	MEO    float64
	GEO    float64
	HEO    float64
	Debris float64
}

// DefaultClassDistribution mirrors the real orbital population's rough
// shape: LEO-heavy with a thin ring of everything else.
func DefaultClassDistribution() ClassDistribution {
	return ClassDistribution{LEO: 0.6, MEO: 0.25, GEO: 0.1, HEO: 0.04, Debris: 0.01}
}

// counts apportions total across the five classes using largest
// remainders, so the result is within rounding of the requested ratios
// and always sums exactly to total.
func (d ClassDistribution) counts(total int) [5]int {
	weights := [5]float64{d.LEO, d.MEO, d.GEO, d.HEO, d.Debris}
	var sum float64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	var out [5]int
	if total <= 0 || sum <= 0 {
		return out
	}

	type rem struct {
		idx  int
		frac float64
	}
	assigned := 0
	rems := make([]rem, 0, 5)
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		exact := float64(total) * w / sum
		out[i] = int(math.Floor(exact))
		assigned += out[i]
		rems = append(rems, rem{idx: i, frac: exact - math.Floor(exact)})
	}
	sort.Slice(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for i := 0; assigned < total; i = (i + 1) % len(rems) {
		out[rems[i].idx]++
		assigned++
	}
	return out
}

// orbitBand gives each class a sampling range of altitudes (km above
// the surface). GEO is a ring, not a band.
type orbitBand struct {
	minAltKm, maxAltKm float64
}

var orbitBands = map[model.OrbitClass]orbitBand{
	model.OrbitLEO: {200, 2000},
	model.OrbitMEO: {2000, 35786},
	model.OrbitGEO: {35786, 35786},
	model.OrbitHEO: {500, 40000},
}

// Populate seeds count objects according to the distribution. The
// request is silently clamped to remaining capacity; the number
// actually seeded is returned so callers can report the shortfall.
func (e *Engine) Populate(count int, dist ClassDistribution) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight != nil {
		return 0, ErrConcurrencyViolation
	}

	free := e.store.FreeSlots()
	seeded := count
	if seeded > free {
		e.log.Warn(context.Background(), "population request clamped to capacity",
			logging.Int("requested", count), logging.Int("clamped", free))
		seeded = free
	}
	if seeded <= 0 {
		return 0, nil
	}

	counts := dist.counts(seeded)
	classes := [5]model.OrbitClass{model.OrbitLEO, model.OrbitMEO, model.OrbitGEO, model.OrbitHEO, model.OrbitLEO}
	for ci, n := range counts {
		debris := ci == 4
		for i := 0; i < n; i++ {
			spec := e.sampleObject(classes[ci], debris)
			if _, err := e.store.Allocate(spec); err != nil {
				// The free-slot count was checked above; anything here
				// is a genuine capacity race and stops seeding.
				return seededSoFar(counts, ci, i), err
			}
		}
	}
	return seeded, nil
}

func seededSoFar(counts [5]int, ci, i int) int {
	total := i
	for k := 0; k < ci; k++ {
		total += counts[k]
	}
	return total
}

// sampleObject draws one object from the class's parameter ranges: a
// uniformly random position direction at a radius inside the band,
// moving prograde at the circular (or, for HEO, vis-viva) speed. This
// replaces TLE synthesis entirely; seeding is a distribution sampler,
// not an orbital-elements pipeline.
func (e *Engine) sampleObject(class model.OrbitClass, debris bool) model.PhysicsObject {
	band := orbitBands[class]
	alt := band.minAltKm
	if band.maxAltKm > band.minAltKm {
		alt += e.rng.Float64() * (band.maxAltKm - band.minAltKm)
	}
	r := e.physics.PrimaryRadiusKm + alt
	pos := e.randomUnitVector().Scale(r)

	speed := CircularSpeedKmS(e.physics.MuKm3S2, r)
	if class == model.OrbitHEO {
		// Highly elliptical: pick a semi-major axis beyond the current
		// radius so the object is somewhere between perigee and apogee.
		a := r * (1 + e.rng.Float64())
		speed = VisVivaSpeedKmS(e.physics.MuKm3S2, r, a)
	}
	vel := tangentAt(pos).Scale(speed)

	obj := model.PhysicsObject{
		Position:  pos,
		Velocity:  vel,
		Orbit:     class,
		Class:     model.ClassSatellite,
		CreatedAt: e.simTime,
	}
	if debris {
		obj.Class = model.ClassDebris
		obj.Mass = 0.1 + e.rng.Float64()*9.9 // 0.1-10 kg
		obj.Radius = 1e-4 * math.Cbrt(obj.Mass)
	} else {
		obj.Mass = 100 + e.rng.Float64()*4900 // 100-5000 kg bus
		obj.Radius = 0.002 + e.rng.Float64()*0.008
	}
	return obj
}

// randomUnitVector samples a direction uniformly on the sphere.
func (e *Engine) randomUnitVector() model.Vec3 {
	u := 2*e.rng.Float64() - 1
	phi := 2 * math.Pi * e.rng.Float64()
	s := math.Sqrt(1 - u*u)
	return model.Vec3{X: s * math.Cos(phi), Y: s * math.Sin(phi), Z: u}
}
