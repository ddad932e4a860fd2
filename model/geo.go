package model

import "fmt"

// GeoPoint is a geographic location in degrees. Latitude is in [-90, 90]
// and longitude in [-180, 180]; values outside those ranges are rejected by
// the projector rather than clamped.
type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.Lat, p.Lon)
}
