package core

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

const geomTol = 1e-9

func vecClose(a, b Vec3, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}

func TestToSurfacePositionFixedConvention(t *testing.T) {
	cases := []struct {
		name     string
		lat, lon float64
		want     Vec3
	}{
		// φ = 90°, θ = 180°: x = −R·cos 180° = R.
		{"equator prime meridian", 0, 0, Vec3{X: 100}},
		{"north pole", 90, 0, Vec3{Y: 100}},
		{"south pole", -90, 0, Vec3{Y: -100}},
		// θ = 270°: z = R·sin 270° = −R.
		{"equator 90E", 0, 90, Vec3{Z: -100}},
		{"equator 90W", 0, -90, Vec3{Z: 100}},
		{"antimeridian", 0, 180, Vec3{X: -100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sp, err := ToSurfacePosition(tc.lat, tc.lon, 100)
			if err != nil {
				t.Fatalf("ToSurfacePosition error: %v", err)
			}
			if !vecClose(sp.Point, tc.want, geomTol) {
				t.Fatalf("Point = %+v, want %+v", sp.Point, tc.want)
			}
		})
	}
}

func TestToSurfacePositionMatchesFormula(t *testing.T) {
	for _, lat := range []float64{-73.5, -12, 0, 33.3, 89} {
		for _, lon := range []float64{-179, -45, 0, 12.5, 150} {
			const r = 6371.0
			phi := (90 - lat) * math.Pi / 180
			theta := (lon + 180) * math.Pi / 180
			want := Vec3{
				X: -r * math.Sin(phi) * math.Cos(theta),
				Y: r * math.Cos(phi),
				Z: r * math.Sin(phi) * math.Sin(theta),
			}
			sp, err := ToSurfacePosition(lat, lon, r)
			if err != nil {
				t.Fatalf("ToSurfacePosition(%v, %v) error: %v", lat, lon, err)
			}
			if !vecClose(sp.Point, want, 1e-6) {
				t.Fatalf("ToSurfacePosition(%v, %v) = %+v, want %+v", lat, lon, sp.Point, want)
			}
			if n := sp.Normal.Norm(); math.Abs(n-1) > geomTol {
				t.Fatalf("normal norm = %v, want 1", n)
			}
			if d := sp.Point.Norm(); math.Abs(d-r) > 1e-6 {
				t.Fatalf("point distance from centre = %v, want %v", d, r)
			}
		}
	}
}

func TestOrientationRotatesUpOntoNormal(t *testing.T) {
	for _, lat := range []float64{-90, -30, 0, 45, 90} {
		sp, err := ToSurfacePosition(lat, 60, DefaultGlobeRadius)
		if err != nil {
			t.Fatalf("ToSurfacePosition error: %v", err)
		}
		r := sp.Orientation.Rotate(mgl64.Vec3{0, 1, 0})
		// Components near zero come out around 1e-16, so compare absolutely.
		if got := (Vec3{X: r[0], Y: r[1], Z: r[2]}); !vecClose(got, sp.Normal, 1e-9) {
			t.Fatalf("lat %v: rotated up = %+v, want normal %+v", lat, got, sp.Normal)
		}
	}
}

func TestToSurfacePositionRejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name          string
		lat, lon, rad float64
	}{
		{"lat too high", 90.0001, 0, 100},
		{"lat too low", -91, 0, 100},
		{"lon too high", 0, 180.5, 100},
		{"lon too low", 0, -181, 100},
		{"nan lat", math.NaN(), 0, 100},
		{"zero radius", 0, 0, 0},
		{"negative radius", 0, 0, -5},
		{"inf radius", 0, 0, math.Inf(1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ToSurfacePosition(tc.lat, tc.lon, tc.rad); !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("error = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestVec3Helpers(t *testing.T) {
	a := Vec3{X: 3, Y: 4}
	if a.Norm() != 5 {
		t.Fatalf("Norm = %v, want 5", a.Norm())
	}
	if got := a.Normalize(); !vecClose(got, Vec3{X: 0.6, Y: 0.8}, geomTol) {
		t.Fatalf("Normalize = %+v", got)
	}
	if got := (Vec3{}).Normalize(); got != (Vec3{}) {
		t.Fatalf("Normalize(zero) = %+v, want zero", got)
	}
}
