package model

// RenderObject is the per-tick projection handed to the renderer: just
// enough to place and color a mesh. Values are copies; collaborators
// never see the engine's live state.
type RenderObject struct {
	ID       ObjectID    `json:"id"`
	Position Vec3        `json:"position"`
	Class    ObjectClass `json:"-"`
}

// ObjectSnapshot is a read-only copy of a single object's dynamical
// state, served on demand for telemetry panels.
type ObjectSnapshot struct {
	ID         ObjectID    `json:"id"`
	Position   Vec3        `json:"position"`
	Velocity   Vec3        `json:"velocity"`
	AltitudeKm float64     `json:"altitudeKm"`
	SpeedKmS   float64     `json:"speedKms"`
	Class      ObjectClass `json:"-"`
	Orbit      OrbitClass  `json:"-"`
}

// Stats summarizes the population for telemetry.
type Stats struct {
	ActiveObjects     int          `json:"activeObjects"`
	SatelliteCount    int          `json:"satelliteCount"`
	DebrisCount       int          `json:"debrisCount"`
	AverageAltitudeKm float64      `json:"averageAltitudeKm"`
	SimTime           float64      `json:"simTime"`
	TimeMultiplier    float64      `json:"timeMultiplier"`
	Cascade           CascadeState `json:"cascade"`
}
