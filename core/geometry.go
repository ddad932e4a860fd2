package core

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/impact-simulator/model"
)

// DefaultGlobeRadius is the radius of the globe renderer's sphere in scene
// units.
const DefaultGlobeRadius = 100.0

// Vec3 is a Cartesian vector in the renderer's scene frame (Y up).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalize returns the unit vector along v. The zero vector is returned
// unchanged.
func (v Vec3) Normalize() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return Vec3{X: v.X / n, Y: v.Y / n, Z: v.Z / n}
}

func (v Vec3) mgl() mgl64.Vec3 { return mgl64.Vec3{v.X, v.Y, v.Z} }

// SurfacePosition is a point on the globe plus its outward unit normal.
// Orientation rotates the renderer's up axis (0, 1, 0) onto Normal so that
// upright markers stand perpendicular to the surface.
type SurfacePosition struct {
	Point       Vec3       `json:"point"`
	Normal      Vec3       `json:"normal"`
	Orientation mgl64.Quat `json:"-"`
}

// OrientationXYZW returns the orientation quaternion in the x, y, z, w order
// used by the renderer.
func (s SurfacePosition) OrientationXYZW() [4]float64 {
	q := s.Orientation
	return [4]float64{q.V[0], q.V[1], q.V[2], q.W}
}

var sceneUp = mgl64.Vec3{0, 1, 0}

// ToSurfacePosition projects a geographic point onto a sphere of the given
// radius.
//
// The mapping is a fixed contract with the globe renderer:
//
//	φ = (90 − lat)·π/180   (colatitude)
//	θ = (lon + 180)·π/180  (azimuth)
//	x = −R·sin φ·cos θ
//	y =  R·cos φ
//	z =  R·sin φ·sin θ
//
// Any other sign or offset convention places overlays at the wrong spot on
// the rendered globe.
func ToSurfacePosition(lat, lon, sphereRadius float64) (SurfacePosition, error) {
	if err := ValidateGeoPoint(model.GeoPoint{Lat: lat, Lon: lon}); err != nil {
		return SurfacePosition{}, err
	}
	if !positiveFinite(sphereRadius) {
		return SurfacePosition{}, fmt.Errorf("%w: sphere radius must be finite and > 0, got %v", ErrInvalidParameter, sphereRadius)
	}

	phi := (90 - lat) * math.Pi / 180
	theta := (lon + 180) * math.Pi / 180

	p := Vec3{
		X: -sphereRadius * math.Sin(phi) * math.Cos(theta),
		Y: sphereRadius * math.Cos(phi),
		Z: sphereRadius * math.Sin(phi) * math.Sin(theta),
	}
	normal := p.Normalize()

	return SurfacePosition{
		Point:       p,
		Normal:      normal,
		Orientation: mgl64.QuatBetweenVectors(sceneUp, normal.mgl()),
	}, nil
}

// Project is ToSurfacePosition for a GeoPoint.
func Project(p model.GeoPoint, sphereRadius float64) (SurfacePosition, error) {
	return ToSurfacePosition(p.Lat, p.Lon, sphereRadius)
}

// ValidateGeoPoint checks that latitude is in [-90, 90] and longitude in
// [-180, 180].
func ValidateGeoPoint(p model.GeoPoint) error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude must be within [-90, 90], got %v", ErrInvalidParameter, p.Lat)
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude must be within [-180, 180], got %v", ErrInvalidParameter, p.Lon)
	}
	return nil
}
