package core

import (
	"fmt"
	"sort"
)

// Densities in kg/m³. The table is fixed at build time.
var materialDensities = map[string]float64{
	"osmium":  22610,
	"rock":    3000,
	"diamond": 3520,
	"cheese":  700,
	"gold":    19320,
	"iron":    7874,
	"wood":    1000,
}

// DensityOf returns the density of a material in kg/m³.
func DensityOf(material string) (float64, error) {
	rho, ok := materialDensities[material]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMaterial, material)
	}
	return rho, nil
}

// Materials lists the known material identifiers in sorted order.
func Materials() []string {
	names := make([]string, 0, len(materialDensities))
	for name := range materialDensities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
