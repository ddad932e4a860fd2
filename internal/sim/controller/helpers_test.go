package controller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/sim/overlay"
	"github.com/signalsfoundry/impact-simulator/model"
)

type recordingPresenter struct {
	results     []model.ImpactResult
	params      []model.ImpactParameters
	modes       []Mode
	catalogs    [][]model.Impactor
	unavailable []error
}

func (p *recordingPresenter) ShowResult(res model.ImpactResult)       { p.results = append(p.results, res) }
func (p *recordingPresenter) ShowParameters(v model.ImpactParameters) { p.params = append(p.params, v) }
func (p *recordingPresenter) ShowMode(m Mode)                         { p.modes = append(p.modes, m) }
func (p *recordingPresenter) ShowCatalog(list []model.Impactor)       { p.catalogs = append(p.catalogs, list) }
func (p *recordingPresenter) ShowCatalogUnavailable(err error)        { p.unavailable = append(p.unavailable, err) }

type fakeMetrics struct {
	launches int
	resets   int
	rejected map[string]int
	fetches  map[string]int
	stale    int
}

func (m *fakeMetrics) RecordLaunch(model.ImpactResult) { m.launches++ }
func (m *fakeMetrics) RecordReset()                    { m.resets++ }
func (m *fakeMetrics) RecordRejected(action, reason string) {
	if m.rejected == nil {
		m.rejected = make(map[string]int)
	}
	m.rejected[action+"/"+reason]++
}
func (m *fakeMetrics) RecordCatalogFetch(outcome string, _ time.Duration) {
	if m.fetches == nil {
		m.fetches = make(map[string]int)
	}
	m.fetches[outcome]++
}
func (m *fakeMetrics) RecordStaleCatalog() { m.stale++ }

// queueDispatcher collects posted closures so tests decide when and in which
// order catalog completions reach the controller.
type queueDispatcher struct {
	ch chan func(*Controller)
}

func newQueueDispatcher() *queueDispatcher {
	return &queueDispatcher{ch: make(chan func(*Controller), 16)}
}

func (d *queueDispatcher) Post(fn func(*Controller)) { d.ch <- fn }

func (d *queueDispatcher) next(t *testing.T) func(*Controller) {
	t.Helper()
	select {
	case fn := <-d.ch:
		return fn
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for catalog completion")
		return nil
	}
}

// fakeFetcher answers per date; requests for unknown dates fail.
type fakeFetcher struct {
	mu    sync.Mutex
	days  map[string][]model.Impactor
	err   error
	calls int
}

func (f *fakeFetcher) FetchDay(_ context.Context, date time.Time) ([]model.Impactor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	list, ok := f.days[date.Format(time.DateOnly)]
	if !ok {
		return nil, fmt.Errorf("%w: no data for %s", core.ErrUnavailableCatalog, date.Format(time.DateOnly))
	}
	return list, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixture struct {
	ctrl      *Controller
	rec       *overlay.Recorder
	presenter *recordingPresenter
	metrics   *fakeMetrics
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	rec := &overlay.Recorder{}
	seq := 0
	mgr, err := overlay.NewManager(rec, core.DefaultGlobeRadius, overlay.WithHandleSource(func() overlay.Handle {
		seq++
		return overlay.Handle(fmt.Sprintf("h%d", seq))
	}))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	f := &fixture{rec: rec, presenter: &recordingPresenter{}, metrics: &fakeMetrics{}}
	opts = append([]Option{WithPresenter(f.presenter), WithMetricsRecorder(f.metrics)}, opts...)
	f.ctrl, err = New(mgr, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return f
}

func opsOf(cmds []overlay.Command) []string {
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.Op.String()+" "+c.Kind.String())
	}
	return out
}
