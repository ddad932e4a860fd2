package model

// ImpactParameters describes the impactor fed into the physics model.
type ImpactParameters struct {
	Material       string  `json:"material" yaml:"material"`
	DiameterMeters float64 `json:"diameter_m" yaml:"diameter_m"`
	VelocityKmS    float64 `json:"velocity_km_s" yaml:"velocity_km_s"`
}

// ImpactResult holds the derived outcome for one set of ImpactParameters.
// It is recomputed on every launch and never cached.
type ImpactResult struct {
	Params ImpactParameters `json:"params"`

	KineticEnergyJ      float64 `json:"kinetic_energy_j"`
	MassKg              float64 `json:"mass_kg"`
	CraterRadiusKm      float64 `json:"crater_radius_km"`
	CraterDepthKm       float64 `json:"crater_depth_km"`
	LethalDistanceKm    float64 `json:"lethal_distance_km"`
	ShockwaveDiameterKm float64 `json:"shockwave_diameter_km"`
}
