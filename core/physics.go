package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/impact-simulator/model"
)

const (
	// Target surface the crater scaling assumes, independent of the impactor.
	targetDensity = 3000.0 // kg/m³, generic rock
	gravity       = 9.8    // m/s²

	craterRadiusCoeff = 0.18
	craterDepthRatio  = 0.0278 // depth:radius ≈ 1:36
	lethalCoeff       = 0.388

	// ShockwaveDiameterFactor converts the lethal distance (a radius) into the
	// diameter used to size the impact overlay.
	ShockwaveDiameterFactor = 2.0
)

// KineticEnergy returns the impactor's kinetic energy in joules:
// (π/12)·ρ·(d/1000)³·(v·1000)².
func KineticEnergy(material string, diameterMeters, velocityKmS float64) (float64, error) {
	rho, err := impactorDensity(material, diameterMeters, velocityKmS)
	if err != nil {
		return 0, err
	}
	return finiteOutput("kinetic energy", kineticEnergy(rho, diameterMeters, velocityKmS))
}

// CraterRadiusKm returns the crater radius in kilometres for an impact into
// a generic rocky surface.
func CraterRadiusKm(material string, diameterMeters, velocityKmS float64) (float64, error) {
	rho, err := impactorDensity(material, diameterMeters, velocityKmS)
	if err != nil {
		return 0, err
	}
	return finiteOutput("crater radius", craterRadius(kineticEnergy(rho, diameterMeters, velocityKmS)))
}

// CraterDepthKm returns the crater depth in kilometres, a fixed fraction of
// the crater radius.
func CraterDepthKm(material string, diameterMeters, velocityKmS float64) (float64, error) {
	r, err := CraterRadiusKm(material, diameterMeters, velocityKmS)
	if err != nil {
		return 0, err
	}
	return craterDepthRatio * r, nil
}

// LethalDistanceKm returns the order-of-magnitude air-blast reach in
// kilometres: 0.388·ρ^(1/3)·(d/1000)·v^(2/3).
func LethalDistanceKm(material string, diameterMeters, velocityKmS float64) (float64, error) {
	rho, err := impactorDensity(material, diameterMeters, velocityKmS)
	if err != nil {
		return 0, err
	}
	return finiteOutput("lethal distance", lethalDistance(rho, diameterMeters, velocityKmS))
}

// ShockwaveDiameterKm is twice the lethal distance. The impact overlay is
// sized by this diameter, not by the radius.
func ShockwaveDiameterKm(material string, diameterMeters, velocityKmS float64) (float64, error) {
	d, err := LethalDistanceKm(material, diameterMeters, velocityKmS)
	if err != nil {
		return 0, err
	}
	return ShockwaveDiameterFactor * d, nil
}

// MassKg returns the mass of a spherical impactor in kilograms.
func MassKg(material string, diameterMeters float64) (float64, error) {
	if !positiveFinite(diameterMeters) {
		return 0, fmt.Errorf("%w: diameter must be finite and > 0, got %v", ErrInvalidParameter, diameterMeters)
	}
	rho, err := DensityOf(material)
	if err != nil {
		return 0, err
	}
	r := diameterMeters / 2
	return finiteOutput("mass", rho*(4.0/3.0)*math.Pi*r*r*r)
}

// Compute validates p once and evaluates every output of the model.
func Compute(p model.ImpactParameters) (model.ImpactResult, error) {
	rho, err := impactorDensity(p.Material, p.DiameterMeters, p.VelocityKmS)
	if err != nil {
		return model.ImpactResult{}, err
	}
	energy, err := finiteOutput("kinetic energy", kineticEnergy(rho, p.DiameterMeters, p.VelocityKmS))
	if err != nil {
		return model.ImpactResult{}, err
	}
	radius := craterRadius(energy)
	lethal := lethalDistance(rho, p.DiameterMeters, p.VelocityKmS)
	mass, err := MassKg(p.Material, p.DiameterMeters)
	if err != nil {
		return model.ImpactResult{}, err
	}

	return model.ImpactResult{
		Params:              p,
		KineticEnergyJ:      energy,
		MassKg:              mass,
		CraterRadiusKm:      radius,
		CraterDepthKm:       craterDepthRatio * radius,
		LethalDistanceKm:    lethal,
		ShockwaveDiameterKm: ShockwaveDiameterFactor * lethal,
	}, nil
}

// ValidateParameters checks diameter, velocity and material without
// evaluating the model.
func ValidateParameters(p model.ImpactParameters) error {
	_, err := impactorDensity(p.Material, p.DiameterMeters, p.VelocityKmS)
	return err
}

func impactorDensity(material string, diameterMeters, velocityKmS float64) (float64, error) {
	if !positiveFinite(diameterMeters) {
		return 0, fmt.Errorf("%w: diameter must be finite and > 0, got %v", ErrInvalidParameter, diameterMeters)
	}
	if !positiveFinite(velocityKmS) {
		return 0, fmt.Errorf("%w: velocity must be finite and > 0, got %v", ErrInvalidParameter, velocityKmS)
	}
	return DensityOf(material)
}

func kineticEnergy(rho, diameterMeters, velocityKmS float64) float64 {
	d := diameterMeters / 1000
	v := velocityKmS * 1000
	return (math.Pi / 12) * rho * d * d * d * v * v
}

func craterRadius(energy float64) float64 {
	return craterRadiusCoeff * math.Pow(energy/(targetDensity*gravity), 0.25)
}

func lethalDistance(rho, diameterMeters, velocityKmS float64) float64 {
	return lethalCoeff * math.Cbrt(rho) * (diameterMeters / 1000) * math.Pow(velocityKmS, 2.0/3.0)
}

// finiteOutput rejects results that overflowed float64 for inputs that were
// individually finite.
func finiteOutput(what string, v float64) (float64, error) {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidParameter, what)
	}
	return v, nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
