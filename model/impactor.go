package model

import "time"

// Impactor is a candidate object from the near-Earth-object catalog.
type Impactor struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	MinDiameterMeters float64   `json:"min_diameter_m"`
	MaxDiameterMeters float64   `json:"max_diameter_m"`
	VelocityKmS       float64   `json:"velocity_km_s"`
	CloseApproach     time.Time `json:"close_approach"`
	Hazardous         bool      `json:"hazardous"`
}

// AverageDiameterMeters is the midpoint of the estimated diameter range.
func (i Impactor) AverageDiameterMeters() float64 {
	return (i.MinDiameterMeters + i.MaxDiameterMeters) / 2
}
