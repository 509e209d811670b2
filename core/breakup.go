package core

import (
	"math"
	"math/rand"

	"github.com/orbitalfoundry/debris-simulator/model"
)

// BreakupParams tunes the statistical fragmentation model, which
// follows the shape of NASA's standard breakup model: a log-normal
// delta-V distribution parameterized by impact velocity and a
// power-law mass split favouring many small fragments.
type BreakupParams struct {
	// FragmentDensityFactor scales fragment yield:
	// fragments = floor(impactSpeed · factor), capped by free slots.
	FragmentDensityFactor float64

	// DeltaVDispersion is the σ of the log10 delta-V distribution.
	DeltaVDispersion float64

	// FragmentRadiusScaleKm converts fragment mass to an effective
	// collision radius under a fixed density assumption:
	// radius = scale · ∛mass.
	FragmentRadiusScaleKm float64

	// MinFragmentMassKg floors fragment masses so the power-law split
	// never emits a massless body.
	MinFragmentMassKg float64

	// ScatterKm spreads fragments around the contact point so newborn
	// debris does not stack at a single coordinate.
	ScatterKm float64
}

// DefaultBreakupParams returns the documented model defaults.
func DefaultBreakupParams() BreakupParams {
	return BreakupParams{
		FragmentDensityFactor: 10,
		DeltaVDispersion:      0.4,
		FragmentRadiusScaleKm: 1e-4,
		MinFragmentMassKg:     0.01,
		ScatterKm:             1.0,
	}
}

// BreakupModel synthesizes debris for collision events. It owns its
// RNG so seeded runs are reproducible.
type BreakupModel struct {
	params  BreakupParams
	physics PhysicsParams
	rng     *rand.Rand
}

// NewBreakupModel builds a model around shared physics parameters.
func NewBreakupModel(params BreakupParams, physics PhysicsParams, rng *rand.Rand) *BreakupModel {
	if params.FragmentDensityFactor <= 0 {
		params.FragmentDensityFactor = 10
	}
	return &BreakupModel{params: params, physics: physics, rng: rng}
}

// FragmentYield returns how many fragments an impact at relSpeed km/s
// wants to produce, before capacity capping.
func (m *BreakupModel) FragmentYield(relSpeed float64) int {
	if relSpeed <= 0 {
		return 0
	}
	return int(math.Floor(relSpeed * m.params.FragmentDensityFactor))
}

// Synthesize builds up to freeSlots fragment specs for the event.
// Returned objects have no IDs; the caller allocates them into the
// store. The second return is how many fragments were dropped because
// the store was full (drop-newest policy: the collision still consumes
// its parents, the excess yield simply never materializes).
func (m *BreakupModel) Synthesize(ev model.CollisionEvent, freeSlots int, simTime float64) ([]model.PhysicsObject, int) {
	want := m.FragmentYield(ev.RelativeSpeed)
	n := want
	if n > freeSlots {
		n = freeSlots
	}
	if n <= 0 {
		return nil, want
	}

	// Power-law-weighted mass split: weights U² normalized over the
	// combined parent mass, so totals are conserved while most
	// fragments come out small.
	weights := make([]float64, n)
	var weightSum float64
	for i := range weights {
		u := m.rng.Float64()
		weights[i] = u * u
		weightSum += weights[i]
	}
	if weightSum == 0 {
		weightSum = 1
	}

	// Base velocity at the impact point: the local circular orbital
	// speed, tangential, from vis-viva at that radius.
	r := ev.ContactPosition.Norm()
	base := tangentAt(ev.ContactPosition).Scale(CircularSpeedKmS(m.physics.MuKm3S2, r))

	chi := math.Log10(ev.RelativeSpeed)
	mean := 0.9*chi + 2.9
	scale := 0.2*chi + 1.85

	fragments := make([]model.PhysicsObject, 0, n)
	for i := 0; i < n; i++ {
		mass := ev.CombinedMass * weights[i] / weightSum
		if mass < m.params.MinFragmentMassKg {
			mass = m.params.MinFragmentMassKg
		}

		// Delta-V magnitude: log-normal in m/s, scaled and converted to km/s.
		exponent := mean + m.params.DeltaVDispersion*m.rng.NormFloat64()
		deltaVKmS := scale * math.Pow(10, exponent) / 1000.0

		dir := m.randomUnitVector()
		fragments = append(fragments, model.PhysicsObject{
			Position:  ev.ContactPosition.Add(m.randomUnitVector().Scale(m.rng.Float64() * m.params.ScatterKm)),
			Velocity:  base.Add(dir.Scale(deltaVKmS)),
			Mass:      mass,
			Radius:    m.params.FragmentRadiusScaleKm * math.Cbrt(mass),
			Class:     model.ClassDebris,
			Orbit:     orbitClassForRadius(r, m.physics.PrimaryRadiusKm),
			CreatedAt: simTime,
		})
	}
	return fragments, want - n
}

// randomUnitVector samples a direction uniformly on the sphere.
func (m *BreakupModel) randomUnitVector() model.Vec3 {
	u := 2*m.rng.Float64() - 1 // cos(polar)
	phi := 2 * math.Pi * m.rng.Float64()
	s := math.Sqrt(1 - u*u)
	return model.Vec3{X: s * math.Cos(phi), Y: s * math.Sin(phi), Z: u}
}

// orbitClassForRadius tags an object by the altitude band it currently
// occupies. Presentation only.
func orbitClassForRadius(r, primaryRadiusKm float64) model.OrbitClass {
	alt := r - primaryRadiusKm
	switch {
	case alt < 2000:
		return model.OrbitLEO
	case alt < 35000:
		return model.OrbitMEO
	case alt < 36500:
		return model.OrbitGEO
	default:
		return model.OrbitHEO
	}
}
