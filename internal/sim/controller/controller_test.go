package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/sim/overlay"
	"github.com/signalsfoundry/impact-simulator/model"
)

func TestStartPlacesInitialPreview(t *testing.T) {
	f := newFixture(t, WithInitialLocation(model.GeoPoint{Lat: 5, Lon: 6}))

	cmds := f.rec.Commands()
	if len(cmds) != 1 || cmds[0].Op != overlay.OpCreate || cmds[0].Kind != overlay.Preview {
		t.Fatalf("Start emitted %v, want [create preview]", opsOf(cmds))
	}
	if cmds[0].Size != DefaultPreviewSize {
		t.Fatalf("preview size = %v, want %v", cmds[0].Size, DefaultPreviewSize)
	}
	if cmds[0].Geo != (model.GeoPoint{Lat: 5, Lon: 6}) {
		t.Fatalf("preview at %v, want (5, 6)", cmds[0].Geo)
	}
	if f.ctrl.Mode() != Armed {
		t.Fatalf("mode = %v, want armed", f.ctrl.Mode())
	}
}

func TestEndToEndLaunchAndReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.ctrl.SetParameters(ctx, model.ImpactParameters{Material: "rock", DiameterMeters: 50, VelocityKmS: 20}); err != nil {
		t.Fatalf("SetParameters: %v", err)
	}
	target := model.GeoPoint{Lat: 10, Lon: 20}
	if err := f.ctrl.SetLocation(ctx, target); err != nil {
		t.Fatalf("SetLocation: %v", err)
	}

	res, err := f.ctrl.Launch(ctx)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	lethal, _ := core.LethalDistanceKm("rock", 50, 20)
	if math.Abs(res.LethalDistanceKm-lethal) > 1e-12 {
		t.Fatalf("LethalDistanceKm = %v, want %v", res.LethalDistanceKm, lethal)
	}
	if f.ctrl.Mode() != Launched {
		t.Fatalf("mode = %v, want launched", f.ctrl.Mode())
	}

	cmds := f.rec.Commands()
	wantOps := []string{
		"create preview", // Start
		"remove preview", "create preview", // SetLocation
		"remove preview", "create impact", // Launch
	}
	if fmt.Sprint(opsOf(cmds)) != fmt.Sprint(wantOps) {
		t.Fatalf("commands = %v, want %v", opsOf(cmds), wantOps)
	}
	impact := cmds[len(cmds)-1]
	wantSize := 2 * lethal * 2
	if math.Abs(impact.Size-wantSize) > 1e-9 {
		t.Fatalf("impact size = %v, want 2*lethal*2 = %v", impact.Size, wantSize)
	}
	if impact.Geo != target {
		t.Fatalf("impact at %v, want %v", impact.Geo, target)
	}
	wantPos, _ := core.Project(target, core.DefaultGlobeRadius)
	if impact.Position.Point != wantPos.Point {
		t.Fatalf("impact position = %+v, want %+v", impact.Position.Point, wantPos.Point)
	}

	f.rec.Reset()
	if err := f.ctrl.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	cmds = f.rec.Commands()
	if fmt.Sprint(opsOf(cmds)) != "[remove impact create preview]" {
		t.Fatalf("reset commands = %v", opsOf(cmds))
	}
	if cmds[1].Geo != target {
		t.Fatalf("preview re-armed at %v, want last point %v", cmds[1].Geo, target)
	}
	if f.ctrl.Mode() != Armed {
		t.Fatalf("mode = %v, want armed", f.ctrl.Mode())
	}

	if f.metrics.launches != 1 || f.metrics.resets != 1 {
		t.Fatalf("metrics launches=%d resets=%d, want 1/1", f.metrics.launches, f.metrics.resets)
	}
	if len(f.presenter.results) != 1 {
		t.Fatalf("presenter got %d results, want 1", len(f.presenter.results))
	}
	if fmt.Sprint(f.presenter.modes) != "[armed launched armed]" {
		t.Fatalf("presenter modes = %v", f.presenter.modes)
	}
}

func TestToggleNoOps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.ctrl.Reset(ctx); err != nil {
		t.Fatalf("Reset while armed: %v", err)
	}
	if got := len(f.rec.Commands()); got != 1 {
		t.Fatalf("reset while armed emitted commands: %v", opsOf(f.rec.Commands()))
	}

	first, err := f.ctrl.Launch(ctx)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	f.rec.Reset()
	second, err := f.ctrl.Launch(ctx)
	if err != nil {
		t.Fatalf("second Launch: %v", err)
	}
	if second != first {
		t.Fatalf("second launch result %+v differs from first %+v", second, first)
	}
	if len(f.rec.Commands()) != 0 {
		t.Fatalf("launch while launched emitted %v", opsOf(f.rec.Commands()))
	}
	if f.metrics.launches != 1 {
		t.Fatalf("launches = %d, want 1", f.metrics.launches)
	}
}

func TestLocationWhileLaunchedOnlyRecordsPoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.ctrl.Launch(ctx); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	f.rec.Reset()

	moved := model.GeoPoint{Lat: -33.9, Lon: 151.2}
	if err := f.ctrl.SetLocation(ctx, moved); err != nil {
		t.Fatalf("SetLocation: %v", err)
	}
	if len(f.rec.Commands()) != 0 {
		t.Fatalf("location change while launched emitted %v", opsOf(f.rec.Commands()))
	}
	if _, ok := f.ctrl.overlays.Current(overlay.Impact); !ok {
		t.Fatalf("impact overlay disappeared")
	}

	if err := f.ctrl.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	ov, ok := f.ctrl.overlays.Current(overlay.Preview)
	if !ok || ov.Geo != moved {
		t.Fatalf("preview after reset = %+v (present %v), want at %v", ov, ok, moved)
	}
}

func TestRejectedActionsLeaveStateUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before := f.ctrl.Snapshot()
	f.rec.Reset()

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"latitude out of range", func() error { return f.ctrl.SetLocation(ctx, model.GeoPoint{Lat: 91}) }, core.ErrInvalidParameter},
		{"longitude nan", func() error { return f.ctrl.SetLocation(ctx, model.GeoPoint{Lon: math.NaN()}) }, core.ErrInvalidParameter},
		{"unknown material", func() error {
			return f.ctrl.SetParameters(ctx, model.ImpactParameters{Material: "unobtainium", DiameterMeters: 1, VelocityKmS: 1})
		}, core.ErrUnknownMaterial},
		{"negative diameter", func() error {
			return f.ctrl.SetParameters(ctx, model.ImpactParameters{Material: "rock", DiameterMeters: -1, VelocityKmS: 1})
		}, core.ErrInvalidParameter},
		{"zero velocity", func() error {
			return f.ctrl.SetParameters(ctx, model.ImpactParameters{Material: "rock", DiameterMeters: 1, VelocityKmS: 0})
		}, core.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}

	after := f.ctrl.Snapshot()
	if after.Mode != before.Mode || after.Location != before.Location || after.Params != before.Params {
		t.Fatalf("state changed after rejected actions: before %+v, after %+v", before, after)
	}
	if after.PreviewHandle != before.PreviewHandle {
		t.Fatalf("preview handle changed from %q to %q", before.PreviewHandle, after.PreviewHandle)
	}
	if len(f.rec.Commands()) != 0 {
		t.Fatalf("rejected actions emitted %v", opsOf(f.rec.Commands()))
	}
	if f.metrics.rejected["set_location/invalid_parameter"] != 2 || f.metrics.rejected["set_parameters/unknown_material"] != 1 {
		t.Fatalf("rejected metrics = %v", f.metrics.rejected)
	}
}

func TestLaunchOverflowRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// Parameters valid on their own but overflowing the energy computation.
	f.ctrl.params = model.ImpactParameters{Material: "osmium", DiameterMeters: 1e200, VelocityKmS: 1e200}
	f.rec.Reset()

	if _, err := f.ctrl.Launch(ctx); !errors.Is(err, core.ErrInvalidParameter) {
		t.Fatalf("Launch error = %v, want ErrInvalidParameter", err)
	}
	if f.ctrl.Mode() != Armed || len(f.rec.Commands()) != 0 {
		t.Fatalf("failed launch changed state: mode %v, commands %v", f.ctrl.Mode(), opsOf(f.rec.Commands()))
	}
}

func TestResetFailureKeepsImpact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.ctrl.Launch(ctx); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	before, _ := f.ctrl.overlays.Current(overlay.Impact)
	modes := len(f.presenter.modes)

	f.ctrl.previewSize = math.Inf(1)
	if err := f.ctrl.Reset(ctx); !errors.Is(err, core.ErrInvalidParameter) {
		t.Fatalf("Reset = %v, want ErrInvalidParameter", err)
	}
	if f.ctrl.Mode() != Launched {
		t.Fatalf("mode = %v, want launched", f.ctrl.Mode())
	}
	after, ok := f.ctrl.overlays.Current(overlay.Impact)
	if !ok || after.Geo != before.Geo || after.Size != before.Size {
		t.Fatalf("impact after failed reset = %+v (present %v), want %+v", after, ok, before)
	}
	if _, ok := f.ctrl.overlays.Current(overlay.Preview); ok {
		t.Fatalf("preview placed by a failed reset")
	}
	if len(f.presenter.modes) != modes {
		t.Fatalf("presenter saw mode changes %v after a failed reset", f.presenter.modes[modes:])
	}
	if f.metrics.rejected["reset/invalid_parameter"] != 1 || f.metrics.resets != 0 {
		t.Fatalf("metrics rejected=%v resets=%d", f.metrics.rejected, f.metrics.resets)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	rec := &overlay.Recorder{}
	mgr, err := overlay.NewManager(rec, core.DefaultGlobeRadius)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	tests := []struct {
		name string
		opts []Option
	}{
		{"bad location", []Option{WithInitialLocation(model.GeoPoint{Lat: 100})}},
		{"bad params", []Option{WithInitialParameters(model.ImpactParameters{Material: "rock"})}},
		{"bad preview size", []Option{WithPreviewSize(0)}},
		{"bad impact scale", []Option{WithImpactScale(math.Inf(1))}},
		{"fetcher without dispatcher", []Option{WithCatalog(&fakeFetcher{}, nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(mgr, tt.opts...); !errors.Is(err, core.ErrInvalidParameter) {
				t.Fatalf("New error = %v, want ErrInvalidParameter", err)
			}
		})
	}
	if _, err := New(nil); !errors.Is(err, core.ErrInvalidParameter) {
		t.Fatalf("New(nil) error = %v, want ErrInvalidParameter", err)
	}
}

func TestSetLocationFromTLE(t *testing.T) {
	const (
		line1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
		line2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
	)
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.ctrl.SetLocationFromTLE(ctx, line1, line2, time.Date(2021, time.October, 2, 15, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("SetLocationFromTLE: %v", err)
	}
	if math.Abs(p.Lat) > 52 {
		t.Fatalf("ISS latitude %v beyond inclination", p.Lat)
	}
	if f.ctrl.Snapshot().Location != p {
		t.Fatalf("location = %v, want %v", f.ctrl.Snapshot().Location, p)
	}

	if _, err := f.ctrl.SetLocationFromTLE(ctx, "bogus", line2, time.Time{}); err == nil {
		t.Fatalf("expected error for malformed TLE")
	}
	if f.ctrl.Snapshot().Location != p {
		t.Fatalf("malformed TLE moved the location")
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{core.ErrUnknownMaterial, "unknown_material"},
		{fmt.Errorf("%w: x", core.ErrInvalidParameter), "invalid_parameter"},
		{core.ErrUnavailableCatalog, "unavailable_catalog"},
		{context.Canceled, "cancelled"},
		{errors.New("other"), "internal"},
	}
	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Fatalf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
