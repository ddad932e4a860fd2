package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/impact-simulator/model"
)

// SimulationCollector bundles Prometheus metrics for the impact simulator:
// controller actions, overlay commands and catalog fetches.
type SimulationCollector struct {
	gatherer prometheus.Gatherer

	Launches        prometheus.Counter
	Resets          prometheus.Counter
	Rejected        *prometheus.CounterVec
	ImpactEnergy    prometheus.Histogram
	OverlayCommands *prometheus.CounterVec

	CatalogFetches       *prometheus.CounterVec
	CatalogFetchDuration *prometheus.HistogramVec
	CatalogStale         prometheus.Counter
	CatalogImpactors     prometheus.Gauge
}

// NewSimulationCollector registers simulator metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimulationCollector(reg prometheus.Registerer) (*SimulationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	launches, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "impact_launches_total",
		Help: "Number of accepted launch actions.",
	}), "impact_launches_total")
	if err != nil {
		return nil, err
	}
	resets, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "impact_resets_total",
		Help: "Number of accepted reset actions.",
	}), "impact_resets_total")
	if err != nil {
		return nil, err
	}
	rejected, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impact_rejected_actions_total",
		Help: "Controller actions rejected by validation, labeled by action and error kind.",
	}, []string{"action", "reason"}), "impact_rejected_actions_total")
	if err != nil {
		return nil, err
	}
	energy, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "impact_energy_joules",
		Help:    "Kinetic energy of launched impactors.",
		Buckets: prometheus.ExponentialBuckets(1e6, 100, 10),
	}), "impact_energy_joules")
	if err != nil {
		return nil, err
	}
	overlays, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_commands_total",
		Help: "Renderer commands emitted, labeled by overlay kind and operation.",
	}, []string{"kind", "op"}), "overlay_commands_total")
	if err != nil {
		return nil, err
	}
	fetches, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetches_total",
		Help: "Impactor catalog fetches, labeled by outcome.",
	}, []string{"outcome"}), "catalog_fetches_total")
	if err != nil {
		return nil, err
	}
	fetchDur, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_fetch_duration_seconds",
		Help:    "Latency of impactor catalog fetches in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"outcome"}), "catalog_fetch_duration_seconds")
	if err != nil {
		return nil, err
	}
	stale, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catalog_stale_responses_total",
		Help: "Catalog responses discarded because a newer request superseded them.",
	}), "catalog_stale_responses_total")
	if err != nil {
		return nil, err
	}
	impactors, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_impactors",
		Help: "Number of impactors in the latest catalog.",
	}), "catalog_impactors")
	if err != nil {
		return nil, err
	}

	return &SimulationCollector{
		gatherer:             gatherer,
		Launches:             launches,
		Resets:               resets,
		Rejected:             rejected,
		ImpactEnergy:         energy,
		OverlayCommands:      overlays,
		CatalogFetches:       fetches,
		CatalogFetchDuration: fetchDur,
		CatalogStale:         stale,
		CatalogImpactors:     impactors,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimulationCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordLaunch counts an accepted launch and observes its energy.
func (c *SimulationCollector) RecordLaunch(res model.ImpactResult) {
	if c == nil {
		return
	}
	c.Launches.Inc()
	c.ImpactEnergy.Observe(res.KineticEnergyJ)
}

// RecordReset counts an accepted reset.
func (c *SimulationCollector) RecordReset() {
	if c == nil {
		return
	}
	c.Resets.Inc()
}

// RecordRejected counts an action rejected with the given error kind.
func (c *SimulationCollector) RecordRejected(action, reason string) {
	if c == nil {
		return
	}
	c.Rejected.WithLabelValues(action, reason).Inc()
}

// RecordOverlayCommand satisfies overlay.CommandRecorder.
func (c *SimulationCollector) RecordOverlayCommand(kind, op string) {
	if c == nil {
		return
	}
	c.OverlayCommands.WithLabelValues(kind, op).Inc()
}

// RecordCatalogFetch counts a finished catalog fetch.
func (c *SimulationCollector) RecordCatalogFetch(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.CatalogFetches.WithLabelValues(outcome).Inc()
	c.CatalogFetchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordStaleCatalog counts a discarded catalog response.
func (c *SimulationCollector) RecordStaleCatalog() {
	if c == nil {
		return
	}
	c.CatalogStale.Inc()
}

// SetCatalogSize records the size of the applied catalog.
func (c *SimulationCollector) SetCatalogSize(n int) {
	if c == nil {
		return
	}
	c.CatalogImpactors.Set(float64(n))
}
