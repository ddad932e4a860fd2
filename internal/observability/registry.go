package observability

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// register adds c to reg. When an equivalent collector is already registered
// the existing one is returned, so two SimulationCollectors can share one
// registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, name string) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return c, fmt.Errorf("register %s: %w", name, err)
	}
	existing, ok := are.ExistingCollector.(C)
	if !ok {
		return c, fmt.Errorf("register %s: already registered as %T", name, are.ExistingCollector)
	}
	return existing, nil
}
