package core

import (
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/impact-simulator/model"
)

func relClose(got, want, tol float64) bool {
	if want == 0 {
		return math.Abs(got) <= tol
	}
	return math.Abs(got-want)/math.Abs(want) <= tol
}

func TestRockFiftyMetresTwentyKmS(t *testing.T) {
	const (
		rho = 3000.0
		d   = 50.0
		v   = 20.0
	)
	wantEnergy := (math.Pi / 12) * rho * math.Pow(d/1000, 3) * math.Pow(v*1000, 2)
	wantRadius := 0.18 * math.Pow(wantEnergy/(3000*9.8), 0.25)
	wantDepth := 0.0278 * wantRadius
	wantLethal := 0.388 * math.Pow(rho, 1.0/3.0) * (d / 1000) * math.Pow(v, 2.0/3.0)

	res, err := Compute(model.ImpactParameters{Material: "rock", DiameterMeters: d, VelocityKmS: v})
	if err != nil {
		t.Fatalf("Compute error: %v", err)
	}

	checks := []struct {
		name      string
		got, want float64
	}{
		{"energy", res.KineticEnergyJ, wantEnergy},
		{"crater radius", res.CraterRadiusKm, wantRadius},
		{"crater depth", res.CraterDepthKm, wantDepth},
		{"lethal distance", res.LethalDistanceKm, wantLethal},
		{"shockwave diameter", res.ShockwaveDiameterKm, 2 * wantLethal},
	}
	for _, c := range checks {
		if !relClose(c.got, c.want, 1e-6) {
			t.Fatalf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	// The standalone functions agree with Compute.
	e, _ := KineticEnergy("rock", d, v)
	r, _ := CraterRadiusKm("rock", d, v)
	dep, _ := CraterDepthKm("rock", d, v)
	l, _ := LethalDistanceKm("rock", d, v)
	s, _ := ShockwaveDiameterKm("rock", d, v)
	if e != res.KineticEnergyJ || r != res.CraterRadiusKm || dep != res.CraterDepthKm || l != res.LethalDistanceKm || s != res.ShockwaveDiameterKm {
		t.Fatalf("standalone functions disagree with Compute: %v %v %v %v %v vs %+v", e, r, dep, l, s, res)
	}
}

func TestDepthIsFixedFractionOfRadius(t *testing.T) {
	for _, m := range Materials() {
		for _, d := range []float64{0.5, 10, 50, 1000, 25000} {
			for _, v := range []float64{0.1, 11, 20, 72} {
				r, err := CraterRadiusKm(m, d, v)
				if err != nil {
					t.Fatalf("CraterRadiusKm(%s, %v, %v) error: %v", m, d, v, err)
				}
				depth, err := CraterDepthKm(m, d, v)
				if err != nil {
					t.Fatalf("CraterDepthKm(%s, %v, %v) error: %v", m, d, v, err)
				}
				if !relClose(depth, 0.0278*r, 1e-9) {
					t.Fatalf("depth = %v, want 0.0278 * %v", depth, r)
				}
			}
		}
	}
}

func TestOutputsPositiveFiniteAndMonotonicInVelocity(t *testing.T) {
	fns := map[string]func(string, float64, float64) (float64, error){
		"energy": KineticEnergy,
		"radius": CraterRadiusKm,
		"depth":  CraterDepthKm,
		"lethal": LethalDistanceKm,
	}
	for _, m := range Materials() {
		for _, d := range []float64{1, 50, 340} {
			for _, v := range []float64{0.5, 5, 30} {
				for name, fn := range fns {
					lo, err := fn(m, d, v)
					if err != nil {
						t.Fatalf("%s(%s, %v, %v) error: %v", name, m, d, v, err)
					}
					hi, err := fn(m, d, 2*v)
					if err != nil {
						t.Fatalf("%s(%s, %v, %v) error: %v", name, m, d, 2*v, err)
					}
					if !(lo > 0) || math.IsInf(lo, 0) || math.IsNaN(lo) {
						t.Fatalf("%s(%s, %v, %v) = %v, want positive finite", name, m, d, v, lo)
					}
					if !(hi > lo) {
						t.Fatalf("%s not increasing in velocity: %v -> %v", name, lo, hi)
					}
				}
			}
		}
	}
}

func TestInvalidInputsRejected(t *testing.T) {
	cases := []struct {
		name     string
		material string
		d, v     float64
		want     error
	}{
		{"zero diameter", "rock", 0, 20, ErrInvalidParameter},
		{"negative diameter", "rock", -1, 20, ErrInvalidParameter},
		{"nan diameter", "rock", math.NaN(), 20, ErrInvalidParameter},
		{"inf diameter", "rock", math.Inf(1), 20, ErrInvalidParameter},
		{"zero velocity", "rock", 50, 0, ErrInvalidParameter},
		{"negative velocity", "rock", 50, -3, ErrInvalidParameter},
		{"nan velocity", "rock", 50, math.NaN(), ErrInvalidParameter},
		{"overflow", "osmium", 1e200, 1e200, ErrInvalidParameter},
		{"unknown material", "unobtainium", 50, 20, ErrUnknownMaterial},
	}
	fns := map[string]func(string, float64, float64) (float64, error){
		"KineticEnergy":       KineticEnergy,
		"CraterRadiusKm":      CraterRadiusKm,
		"CraterDepthKm":       CraterDepthKm,
		"LethalDistanceKm":    LethalDistanceKm,
		"ShockwaveDiameterKm": ShockwaveDiameterKm,
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for fnName, fn := range fns {
				got, err := fn(tc.material, tc.d, tc.v)
				if !errors.Is(err, tc.want) {
					t.Fatalf("%s error = %v, want %v", fnName, err, tc.want)
				}
				if got != 0 {
					t.Fatalf("%s returned %v alongside error, want 0", fnName, got)
				}
			}
			_, err := Compute(model.ImpactParameters{Material: tc.material, DiameterMeters: tc.d, VelocityKmS: tc.v})
			if !errors.Is(err, tc.want) {
				t.Fatalf("Compute error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestMassKg(t *testing.T) {
	got, err := MassKg("iron", 2)
	if err != nil {
		t.Fatalf("MassKg error: %v", err)
	}
	want := 7874 * (4.0 / 3.0) * math.Pi
	if !relClose(got, want, 1e-12) {
		t.Fatalf("MassKg(iron, 2) = %v, want %v", got, want)
	}
	if _, err := MassKg("iron", 0); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("MassKg zero diameter error = %v, want ErrInvalidParameter", err)
	}
}
