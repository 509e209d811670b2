package core

import (
	"math"

	"github.com/orbitalfoundry/debris-simulator/model"
)

// PhysicsParams holds every tunable of the force and integration model.
// Both backends evaluate exactly these formulas; they differ only in
// how the work is scheduled.
type PhysicsParams struct {
	// MuKm3S2 is the primary body's gravitational parameter.
	MuKm3S2 float64
	// PrimaryRadiusKm is the primary body's mean radius, the zero point
	// for altitudes.
	PrimaryRadiusKm float64

	// PerturberMuKm3S2 enables a single simplified perturbing body when
	// positive. Not a full n-body solve: the perturber sits at a fixed
	// offset and its pull is scaled by PerturberAttenuation.
	PerturberMuKm3S2     float64
	PerturberPosition    model.Vec3
	PerturberAttenuation float64

	// DragThresholdAltKm is the altitude below which atmospheric drag
	// applies.
	DragThresholdAltKm float64
	// BurnupAltitudeKm is the altitude below which an object is
	// destroyed instead of integrated further.
	BurnupAltitudeKm float64
	// DragCoefficient scales the drag magnitude (the k in
	// exp(-(alt-refAlt)/falloff)·k·|v|²).
	DragCoefficient float64
	DragRefAltKm    float64
	DragFalloffKm   float64

	// SubStepSeconds is the fixed integrator sub-step. A requested tick
	// dt is clamped to MaxTickSeconds and split into ceil(dt/SubStep)
	// equal slices no larger than SubStepSeconds, which keeps the
	// integrator stable at high time multipliers.
	SubStepSeconds float64
	MaxTickSeconds float64
}

// DefaultPhysicsParams returns Earth-orbit parameters matching the
// documented simulation defaults.
func DefaultPhysicsParams() PhysicsParams {
	return PhysicsParams{
		MuKm3S2:            EarthMuKm3S2,
		PrimaryRadiusKm:    EarthRadiusKm,
		PerturberMuKm3S2:   0,
		DragThresholdAltKm: 200,
		BurnupAltitudeKm:   100,
		DragCoefficient:    1e-4,
		DragRefAltKm:       100,
		DragFalloffKm:      50,
		SubStepSeconds:     1.0,
		MaxTickSeconds:     3600,
	}
}

func (p PhysicsParams) validate() bool {
	return p.MuKm3S2 > 0 && p.PrimaryRadiusKm > 0 &&
		p.SubStepSeconds > 0 && p.MaxTickSeconds >= p.SubStepSeconds &&
		p.BurnupAltitudeKm <= p.DragThresholdAltKm
}

// subSteps clamps a requested tick duration and splits it into n equal
// sub-steps of length h ≤ SubStepSeconds.
func (p PhysicsParams) subSteps(dt float64) (n int, h float64) {
	if dt <= 0 {
		return 0, 0
	}
	if dt > p.MaxTickSeconds {
		dt = p.MaxTickSeconds
	}
	n = int(math.Ceil(dt / p.SubStepSeconds))
	if n < 1 {
		n = 1
	}
	return n, dt / float64(n)
}

// Acceleration evaluates the total acceleration (km/s²) on a body at
// pos with velocity vel: central gravity, the optional attenuated
// perturber, and exponential-atmosphere drag below the drag threshold.
func (p PhysicsParams) Acceleration(pos, vel model.Vec3) model.Vec3 {
	r := pos.Norm()
	if r == 0 {
		return model.Vec3{}
	}

	// Central body: a = -μ/r³ · r_vec.
	acc := pos.Scale(-p.MuKm3S2 / (r * r * r))

	if p.PerturberMuKm3S2 > 0 {
		rel := p.PerturberPosition.Sub(pos)
		d := rel.Norm()
		if d > 0 {
			acc = acc.Add(rel.Scale(p.PerturberAttenuation * p.PerturberMuKm3S2 / (d * d * d)))
		}
	}

	alt := r - p.PrimaryRadiusKm
	if alt < p.DragThresholdAltKm {
		speed := vel.Norm()
		if speed > 0 {
			density := math.Exp(-(alt - p.DragRefAltKm) / p.DragFalloffKm)
			// Magnitude density·k·|v|² opposing the velocity direction.
			acc = acc.Add(vel.Scale(-density * p.DragCoefficient * speed))
		}
	}
	return acc
}

// stepOutcome classifies one object's fate after a sub-step.
type stepOutcome int

const (
	outcomeActive stepOutcome = iota
	outcomeBurnup
	outcomeAnomaly
)

// advance applies one semi-implicit Euler sub-step of length h to obj:
// velocity first from the acceleration, then position from the new
// velocity. The returned outcome tells the lifecycle stage whether the
// object survived.
func (p PhysicsParams) advance(obj *model.PhysicsObject, h float64) stepOutcome {
	acc := p.Acceleration(obj.Position, obj.Velocity)
	obj.Velocity = obj.Velocity.Add(acc.Scale(h))
	obj.Position = obj.Position.Add(obj.Velocity.Scale(h))

	if !obj.Position.IsFinite() || !obj.Velocity.IsFinite() {
		return outcomeAnomaly
	}
	if AltitudeKm(obj.Position, p.PrimaryRadiusKm) < p.BurnupAltitudeKm {
		return outcomeBurnup
	}
	return outcomeActive
}
