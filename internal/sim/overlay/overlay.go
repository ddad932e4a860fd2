// Package overlay owns the shapes drawn on the globe. It keeps at most one
// live overlay per kind and talks to the renderer only through one-way
// commands.
package overlay

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/model"
)

// Kind identifies an overlay slot.
type Kind int

const (
	// Preview is the marker shown at the candidate impact location.
	Preview Kind = iota
	// Impact is the dome drawn after launch, sized by shockwave diameter.
	Impact

	kindCount
)

func (k Kind) String() string {
	switch k {
	case Preview:
		return "preview"
	case Impact:
		return "impact"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Op is a renderer command verb.
type Op int

const (
	// OpCreate draws a new shape at Position.
	OpCreate Op = iota
	// OpRemove deletes the shape with Handle; unknown handles are ignored.
	OpRemove
)

func (o Op) String() string {
	if o == OpRemove {
		return "remove"
	}
	return "create"
}

// Handle is an opaque identifier for a rendered shape.
type Handle string

// Command is a single fire-and-forget instruction for the renderer.
// Position, Geo and Size are only meaningful for OpCreate.
type Command struct {
	Op       Op
	Kind     Kind
	Handle   Handle
	Geo      model.GeoPoint
	Position core.SurfacePosition
	Size     float64
}

// Sink receives renderer commands. Implementations must not call back into
// the Manager.
type Sink interface {
	Send(cmd Command)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Command)

// Send implements Sink.
func (f SinkFunc) Send(cmd Command) { f(cmd) }

// Overlay describes the live shape in one slot.
type Overlay struct {
	Handle   Handle
	Geo      model.GeoPoint
	Position core.SurfacePosition
	Size     float64
}

// CommandRecorder counts emitted commands.
type CommandRecorder interface {
	RecordOverlayCommand(kind, op string)
}

// Manager is the overlay state machine. Each kind is either absent or
// present(handle, position). A Manager is not safe for concurrent use; it
// belongs to the simulation controller.
type Manager struct {
	sink   Sink
	radius float64

	slots [kindCount]*Overlay

	newHandle func() Handle
	log       logging.Logger
	metrics   CommandRecorder
}

// Option customises Manager construction.
type Option func(*Manager)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithCommandRecorder attaches a metrics recorder for emitted commands.
func WithCommandRecorder(r CommandRecorder) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

// WithHandleSource overrides handle generation.
func WithHandleSource(fn func() Handle) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newHandle = fn
		}
	}
}

// NewManager builds a Manager that projects onto a sphere of sphereRadius
// and emits commands to sink. Both slots start absent.
func NewManager(sink Sink, sphereRadius float64, opts ...Option) (*Manager, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: overlay sink is required", core.ErrInvalidParameter)
	}
	if !(sphereRadius > 0) || math.IsInf(sphereRadius, 0) {
		return nil, fmt.Errorf("%w: sphere radius must be finite and > 0, got %v", core.ErrInvalidParameter, sphereRadius)
	}
	m := &Manager{
		sink:      sink,
		radius:    sphereRadius,
		newHandle: func() Handle { return Handle(uuid.NewString()) },
		log:       logging.Noop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Place draws an overlay of the given kind at p. A live overlay of the same
// kind is removed first, so two handles of one kind never coexist. On error
// nothing is emitted and the slot is left as it was.
func (m *Manager) Place(ctx context.Context, kind Kind, p model.GeoPoint, size float64) (Handle, error) {
	if err := checkKind(kind); err != nil {
		return "", err
	}
	if !(size > 0) || math.IsInf(size, 0) {
		return "", fmt.Errorf("%w: %s size must be finite and > 0, got %v", core.ErrInvalidParameter, kind, size)
	}
	pos, err := core.Project(p, m.radius)
	if err != nil {
		return "", err
	}

	m.release(ctx, kind)

	ov := &Overlay{
		Handle:   m.newHandle(),
		Geo:      p,
		Position: pos,
		Size:     size,
	}
	m.slots[kind] = ov
	m.emit(Command{
		Op:       OpCreate,
		Kind:     kind,
		Handle:   ov.Handle,
		Geo:      p,
		Position: pos,
		Size:     size,
	})
	m.log.Debug(ctx, "overlay placed",
		logging.String("kind", kind.String()),
		logging.String("handle", string(ov.Handle)),
		logging.String("geo", p.String()),
		logging.Any("size", size),
	)
	return ov.Handle, nil
}

// Clear removes the overlay of the given kind. It reports whether anything
// was removed; clearing an absent slot is a no-op.
func (m *Manager) Clear(ctx context.Context, kind Kind) bool {
	if checkKind(kind) != nil {
		return false
	}
	return m.release(ctx, kind)
}

// ClearAll removes every live overlay.
func (m *Manager) ClearAll(ctx context.Context) {
	for k := Kind(0); k < kindCount; k++ {
		m.release(ctx, k)
	}
}

// Current returns the live overlay of the given kind, if any.
func (m *Manager) Current(kind Kind) (Overlay, bool) {
	if checkKind(kind) != nil || m.slots[kind] == nil {
		return Overlay{}, false
	}
	return *m.slots[kind], true
}

func (m *Manager) release(ctx context.Context, kind Kind) bool {
	old := m.slots[kind]
	if old == nil {
		return false
	}
	m.slots[kind] = nil
	m.emit(Command{Op: OpRemove, Kind: kind, Handle: old.Handle})
	m.log.Debug(ctx, "overlay removed",
		logging.String("kind", kind.String()),
		logging.String("handle", string(old.Handle)),
	)
	return true
}

func (m *Manager) emit(cmd Command) {
	m.sink.Send(cmd)
	if m.metrics != nil {
		m.metrics.RecordOverlayCommand(cmd.Kind.String(), cmd.Op.String())
	}
}

func checkKind(kind Kind) error {
	if kind < 0 || kind >= kindCount {
		return fmt.Errorf("%w: unknown overlay kind %d", core.ErrInvalidParameter, int(kind))
	}
	return nil
}
