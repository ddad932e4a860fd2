// Package controller holds the simulation state machine: the candidate
// location, the impactor parameters and the armed/launched toggle that
// decides which overlay is on the globe.
package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/catalog"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/internal/observability"
	"github.com/signalsfoundry/impact-simulator/internal/sim/overlay"
	"github.com/signalsfoundry/impact-simulator/kb"
	"github.com/signalsfoundry/impact-simulator/model"
	"github.com/signalsfoundry/impact-simulator/timectrl"
)

const (
	// DefaultPreviewSize is the height of the upright preview marker in
	// globe units.
	DefaultPreviewSize = 50.0
	// DefaultImpactScale converts the shockwave diameter into renderer units
	// for the impact dome.
	DefaultImpactScale = 2.0
)

// Mode is the controller's two-state toggle.
type Mode int

const (
	// Armed shows the preview marker and accepts a launch.
	Armed Mode = iota
	// Launched shows the impact overlay and accepts a reset.
	Launched
)

func (m Mode) String() string {
	if m == Launched {
		return "launched"
	}
	return "armed"
}

// MarshalText renders the mode as "armed" or "launched".
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Presenter receives everything the user-facing surface shows besides the
// globe overlays. Calls happen on the controller's goroutine.
type Presenter interface {
	ShowResult(res model.ImpactResult)
	ShowParameters(p model.ImpactParameters)
	ShowMode(m Mode)
	ShowCatalog(impactors []model.Impactor)
	ShowCatalogUnavailable(err error)
}

// NopPresenter discards all presentation calls.
type NopPresenter struct{}

func (NopPresenter) ShowResult(model.ImpactResult)         {}
func (NopPresenter) ShowParameters(model.ImpactParameters) {}
func (NopPresenter) ShowMode(Mode)                         {}
func (NopPresenter) ShowCatalog([]model.Impactor)          {}
func (NopPresenter) ShowCatalogUnavailable(error)          {}

// MetricsRecorder receives controller events. observability.SimulationCollector
// satisfies it.
type MetricsRecorder interface {
	RecordLaunch(res model.ImpactResult)
	RecordReset()
	RecordRejected(action, reason string)
	RecordCatalogFetch(outcome string, d time.Duration)
	RecordStaleCatalog()
}

// Dispatcher delivers closures to the goroutine that owns the Controller.
// Loop is the production implementation.
type Dispatcher interface {
	Post(fn func(*Controller))
}

// Snapshot is a read-only view of controller state.
type Snapshot struct {
	Mode          Mode                   `json:"mode"`
	Location      model.GeoPoint         `json:"location"`
	Params        model.ImpactParameters `json:"params"`
	Result        *model.ImpactResult    `json:"result,omitempty"`
	ManualEntry   bool                   `json:"manual_entry"`
	CatalogSeq    uint64                 `json:"catalog_seq"`
	PreviewHandle overlay.Handle         `json:"preview_handle,omitempty"`
	ImpactHandle  overlay.Handle         `json:"impact_handle,omitempty"`
}

// Controller is the simulation state machine. It is not safe for concurrent
// use: all calls, including catalog completions, must come from one
// goroutine (see Loop).
type Controller struct {
	overlays *overlay.Manager

	mode     Mode
	location model.GeoPoint
	params   model.ImpactParameters
	result   *model.ImpactResult

	previewSize float64
	impactScale float64

	fetcher     catalog.Fetcher
	dispatcher  Dispatcher
	store       *kb.KnowledgeBase
	catalogSeq  uint64
	manualEntry bool

	clock     timectrl.Clock
	presenter Presenter
	metrics   MetricsRecorder
	log       logging.Logger
}

// Option customises Controller construction.
type Option func(*Controller)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithPresenter attaches the user-facing surface.
func WithPresenter(p Presenter) Option {
	return func(c *Controller) {
		if p != nil {
			c.presenter = p
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithCatalog enables remote impactor lookups. Results are handed back to
// the controller through d.
func WithCatalog(f catalog.Fetcher, d Dispatcher) Option {
	return func(c *Controller) {
		c.fetcher = f
		c.dispatcher = d
	}
}

// WithStore shares the impactor store with other readers.
func WithStore(s *kb.KnowledgeBase) Option {
	return func(c *Controller) {
		if s != nil {
			c.store = s
		}
	}
}

// WithClock overrides the time source used for "today" and TLE propagation.
func WithClock(clk timectrl.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithInitialLocation sets the starting candidate point.
func WithInitialLocation(p model.GeoPoint) Option {
	return func(c *Controller) {
		c.location = p
	}
}

// WithInitialParameters sets the starting impactor.
func WithInitialParameters(p model.ImpactParameters) Option {
	return func(c *Controller) {
		c.params = p
	}
}

// WithPreviewSize sets the preview marker size.
func WithPreviewSize(size float64) Option {
	return func(c *Controller) {
		c.previewSize = size
	}
}

// WithImpactScale sets the factor applied to the shockwave diameter when
// sizing the impact overlay.
func WithImpactScale(scale float64) Option {
	return func(c *Controller) {
		c.impactScale = scale
	}
}

// New builds an armed controller drawing through overlays. The initial state
// defaults to a 50 m rock at 20 km/s aimed at (0, 0).
func New(overlays *overlay.Manager, opts ...Option) (*Controller, error) {
	if overlays == nil {
		return nil, fmt.Errorf("%w: overlay manager is required", core.ErrInvalidParameter)
	}
	c := &Controller{
		overlays:    overlays,
		mode:        Armed,
		params:      model.ImpactParameters{Material: "rock", DiameterMeters: 50, VelocityKmS: 20},
		previewSize: DefaultPreviewSize,
		impactScale: DefaultImpactScale,
		store:       kb.NewKnowledgeBase(),
		clock:       timectrl.SystemClock{},
		presenter:   NopPresenter{},
		log:         logging.Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := core.ValidateGeoPoint(c.location); err != nil {
		return nil, err
	}
	if err := core.ValidateParameters(c.params); err != nil {
		return nil, err
	}
	if !positive(c.previewSize) {
		return nil, fmt.Errorf("%w: preview size must be finite and > 0, got %v", core.ErrInvalidParameter, c.previewSize)
	}
	if !positive(c.impactScale) {
		return nil, fmt.Errorf("%w: impact scale must be finite and > 0, got %v", core.ErrInvalidParameter, c.impactScale)
	}
	if c.fetcher != nil && c.dispatcher == nil {
		return nil, fmt.Errorf("%w: catalog fetcher needs a dispatcher", core.ErrInvalidParameter)
	}
	return c, nil
}

// Start draws the initial preview and announces the armed mode.
func (c *Controller) Start(ctx context.Context) error {
	if _, err := c.overlays.Place(ctx, overlay.Preview, c.location, c.previewSize); err != nil {
		return err
	}
	c.presenter.ShowParameters(c.params)
	c.presenter.ShowMode(c.mode)
	c.log.Info(ctx, "simulation armed",
		logging.String("location", c.location.String()),
		logging.String("material", c.params.Material),
	)
	return nil
}

// SetLocation moves the candidate point. While armed the preview follows it;
// while launched the point is only recorded for the next reset. An invalid
// point is rejected and the previous one kept.
func (c *Controller) SetLocation(ctx context.Context, p model.GeoPoint) error {
	if err := core.ValidateGeoPoint(p); err != nil {
		return c.reject(ctx, "set_location", err)
	}
	if c.mode == Armed {
		if _, err := c.overlays.Place(ctx, overlay.Preview, p, c.previewSize); err != nil {
			return c.reject(ctx, "set_location", err)
		}
	}
	c.location = p
	c.log.Debug(ctx, "location updated",
		logging.String("location", p.String()),
		logging.String("mode", c.mode.String()),
	)
	return nil
}

// SetLocationFromTLE moves the candidate point to the sub-satellite point of
// a tracked object at t (the controller clock when t is zero).
func (c *Controller) SetLocationFromTLE(ctx context.Context, line1, line2 string, t time.Time) (model.GeoPoint, error) {
	if t.IsZero() {
		t = c.clock.Now()
	}
	p, err := core.SubPoint(line1, line2, t)
	if err != nil {
		return model.GeoPoint{}, c.reject(ctx, "set_location_tle", err)
	}
	if err := c.SetLocation(ctx, p); err != nil {
		return model.GeoPoint{}, err
	}
	return p, nil
}

// SetParameters replaces the impactor description. Invalid values are
// rejected and the previous parameters kept.
func (c *Controller) SetParameters(ctx context.Context, p model.ImpactParameters) error {
	if err := core.ValidateParameters(p); err != nil {
		return c.reject(ctx, "set_parameters", err)
	}
	c.params = p
	c.presenter.ShowParameters(p)
	return nil
}

// Launch computes the impact for the current parameters, swaps the preview
// for the impact overlay and enters Launched. Launching while launched is a
// no-op that returns the current result.
func (c *Controller) Launch(ctx context.Context) (model.ImpactResult, error) {
	if c.mode == Launched && c.result != nil {
		return *c.result, nil
	}

	ctx, span := observability.Tracer("controller").Start(ctx, "controller.Launch")
	defer span.End()
	span.SetAttributes(
		attribute.String("impact.material", c.params.Material),
		attribute.Float64("impact.diameter_m", c.params.DiameterMeters),
		attribute.Float64("impact.velocity_km_s", c.params.VelocityKmS),
	)

	res, err := core.Compute(c.params)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return model.ImpactResult{}, c.reject(ctx, "launch", err)
	}
	size := res.ShockwaveDiameterKm * c.impactScale
	if !positive(size) {
		err := fmt.Errorf("%w: impact overlay size %v out of range", core.ErrInvalidParameter, size)
		span.SetStatus(codes.Error, err.Error())
		return model.ImpactResult{}, c.reject(ctx, "launch", err)
	}

	c.overlays.Clear(ctx, overlay.Preview)
	if _, err := c.overlays.Place(ctx, overlay.Impact, c.location, size); err != nil {
		// Put the preview back so a failed launch leaves the globe as it was.
		if _, restoreErr := c.overlays.Place(ctx, overlay.Preview, c.location, c.previewSize); restoreErr != nil {
			c.log.Error(ctx, "failed to restore preview", logging.Err(restoreErr))
		}
		span.SetStatus(codes.Error, err.Error())
		return model.ImpactResult{}, c.reject(ctx, "launch", err)
	}

	c.result = &res
	c.mode = Launched
	span.SetAttributes(attribute.Float64("impact.energy_j", res.KineticEnergyJ))

	if c.metrics != nil {
		c.metrics.RecordLaunch(res)
	}
	c.presenter.ShowResult(res)
	c.presenter.ShowMode(c.mode)
	c.log.Info(ctx, "impact launched",
		logging.String("location", c.location.String()),
		logging.String("material", res.Params.Material),
		logging.Float64("energy_j", res.KineticEnergyJ),
		logging.Float64("crater_radius_km", res.CraterRadiusKm),
		logging.Float64("lethal_distance_km", res.LethalDistanceKm),
	)
	return res, nil
}

// Reset removes the impact overlay, re-arms the controller and puts the
// preview back at the last recorded point. Resetting while armed is a no-op.
func (c *Controller) Reset(ctx context.Context) error {
	if c.mode == Armed {
		return nil
	}
	impact, hadImpact := c.overlays.Current(overlay.Impact)
	c.overlays.Clear(ctx, overlay.Impact)
	if _, err := c.overlays.Place(ctx, overlay.Preview, c.location, c.previewSize); err != nil {
		if hadImpact {
			if _, restoreErr := c.overlays.Place(ctx, overlay.Impact, impact.Geo, impact.Size); restoreErr != nil {
				c.log.Error(ctx, "failed to restore impact", logging.Err(restoreErr))
			}
		}
		return c.reject(ctx, "reset", err)
	}
	c.mode = Armed

	if c.metrics != nil {
		c.metrics.RecordReset()
	}
	c.presenter.ShowMode(c.mode)
	c.log.Info(ctx, "simulation reset", logging.String("location", c.location.String()))
	return nil
}

// Mode returns the current toggle state.
func (c *Controller) Mode() Mode { return c.mode }

// Snapshot returns a copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		Mode:        c.mode,
		Location:    c.location,
		Params:      c.params,
		ManualEntry: c.manualEntry,
		CatalogSeq:  c.catalogSeq,
	}
	if c.result != nil {
		res := *c.result
		s.Result = &res
	}
	if ov, ok := c.overlays.Current(overlay.Preview); ok {
		s.PreviewHandle = ov.Handle
	}
	if ov, ok := c.overlays.Current(overlay.Impact); ok {
		s.ImpactHandle = ov.Handle
	}
	return s
}

func (c *Controller) reject(ctx context.Context, action string, err error) error {
	reason := Reason(err)
	if c.metrics != nil {
		c.metrics.RecordRejected(action, reason)
	}
	c.log.Warn(ctx, "action rejected",
		logging.String("action", action),
		logging.String("reason", reason),
		logging.Err(err),
	)
	return err
}

// Reason classifies err into a short label for metrics and API responses.
func Reason(err error) string {
	switch {
	case errors.Is(err, core.ErrUnknownMaterial):
		return "unknown_material"
	case errors.Is(err, core.ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, core.ErrUnavailableCatalog):
		return "unavailable_catalog"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
