package core

import (
	"math"

	"github.com/orbitalfoundry/debris-simulator/model"
)

// EarthRadiusKm is the mean Earth radius used for altitude and burnup
// calculations (kilometres).
const EarthRadiusKm = 6371.0

// EarthMuKm3S2 is Earth's standard gravitational parameter (km³/s²).
const EarthMuKm3S2 = 398600.4418

// AltitudeKm returns height above the primary's surface for a position
// measured from the primary's centre.
func AltitudeKm(pos model.Vec3, primaryRadiusKm float64) float64 {
	return pos.Norm() - primaryRadiusKm
}

// CircularSpeedKmS returns the circular orbital speed at radius r from
// the primary's centre: v = sqrt(μ/r).
func CircularSpeedKmS(mu, r float64) float64 {
	if r <= 0 {
		return 0
	}
	return math.Sqrt(mu / r)
}

// VisVivaSpeedKmS returns orbital speed at radius r on an orbit with
// semi-major axis a: v² = μ(2/r − 1/a).
func VisVivaSpeedKmS(mu, r, a float64) float64 {
	if r <= 0 || a <= 0 {
		return 0
	}
	v2 := mu * (2/r - 1/a)
	if v2 <= 0 {
		return 0
	}
	return math.Sqrt(v2)
}

// OrbitalPeriodS returns the period of a circular orbit at radius r:
// T = 2π·sqrt(r³/μ).
func OrbitalPeriodS(mu, r float64) float64 {
	if r <= 0 || mu <= 0 {
		return 0
	}
	return 2 * math.Pi * math.Sqrt(r*r*r/mu)
}

// tangentAt returns a unit vector perpendicular to the radial direction
// at pos, suitable as a prograde velocity direction. The reference axis
// is swapped when pos is nearly polar so the cross product stays
// well-conditioned.
func tangentAt(pos model.Vec3) model.Vec3 {
	axis := model.Vec3{Z: 1}
	if math.Abs(pos.X) < 1e-9 && math.Abs(pos.Y) < 1e-9 {
		axis = model.Vec3{X: 1}
	}
	return axis.Cross(pos).Normalized()
}
