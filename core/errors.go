package core

import "errors"

// Error taxonomy shared by the physics model, the projector and the
// simulation controller. Every failure surfaced by this module wraps exactly
// one of these sentinels.
var (
	// ErrUnknownMaterial indicates a material identifier missing from the catalog.
	ErrUnknownMaterial = errors.New("unknown material")
	// ErrInvalidParameter indicates a non-finite or out-of-range input.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrUnavailableCatalog indicates the remote impactor catalog could not be
	// fetched or decoded.
	ErrUnavailableCatalog = errors.New("impactor catalog unavailable")
)
