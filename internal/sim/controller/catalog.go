package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/kb"
	"github.com/signalsfoundry/impact-simulator/model"
	"github.com/signalsfoundry/impact-simulator/timectrl"
)

// Catalog fetch outcomes used as metric labels.
const (
	outcomeOK          = "ok"
	outcomeUnavailable = "unavailable"
	outcomeStale       = "stale"
)

// RequestCatalog starts an asynchronous fetch of the impactors approaching on
// date (today when zero) and returns its sequence number. The result is
// applied through the dispatcher only if no newer request was issued in the
// meantime. Without a configured fetcher the controller switches to manual
// entry and returns core.ErrUnavailableCatalog.
func (c *Controller) RequestCatalog(ctx context.Context, date time.Time) (uint64, error) {
	if date.IsZero() {
		date = timectrl.Today(c.clock)
	}
	date = timectrl.Day(date)

	c.catalogSeq++
	seq := c.catalogSeq

	if c.fetcher == nil {
		err := fmt.Errorf("%w: no catalog source configured", core.ErrUnavailableCatalog)
		c.enterManualEntry(ctx, err)
		return seq, err
	}

	c.log.Debug(ctx, "catalog requested",
		logging.String("date", date.Format(time.DateOnly)),
		logging.Uint64("seq", seq),
	)

	fetcher, dispatcher := c.fetcher, c.dispatcher
	fetchCtx := context.WithoutCancel(ctx)
	go func() {
		start := time.Now()
		impactors, err := fetcher.FetchDay(fetchCtx, date)
		elapsed := time.Since(start)
		dispatcher.Post(func(c *Controller) {
			c.completeCatalog(fetchCtx, seq, date, impactors, err, elapsed)
		})
	}()
	return seq, nil
}

// completeCatalog applies a finished fetch. Responses for anything but the
// latest request are dropped.
func (c *Controller) completeCatalog(ctx context.Context, seq uint64, date time.Time, impactors []model.Impactor, err error, elapsed time.Duration) {
	if seq != c.catalogSeq {
		if c.metrics != nil {
			c.metrics.RecordStaleCatalog()
			c.metrics.RecordCatalogFetch(outcomeStale, elapsed)
		}
		c.log.Debug(ctx, "discarding stale catalog response",
			logging.Uint64("seq", seq),
			logging.Uint64("latest", c.catalogSeq),
		)
		return
	}

	if err == nil {
		err = c.store.ReplaceCatalog(date, seq, impactors)
	}
	if err != nil {
		if !errors.Is(err, core.ErrUnavailableCatalog) {
			err = fmt.Errorf("%w: %v", core.ErrUnavailableCatalog, err)
		}
		if c.metrics != nil {
			c.metrics.RecordCatalogFetch(outcomeUnavailable, elapsed)
		}
		c.enterManualEntry(ctx, err)
		return
	}

	c.manualEntry = false
	if c.metrics != nil {
		c.metrics.RecordCatalogFetch(outcomeOK, elapsed)
	}
	c.presenter.ShowCatalog(c.store.ListImpactors())
	c.log.Info(ctx, "catalog applied",
		logging.String("date", date.Format(time.DateOnly)),
		logging.Uint64("seq", seq),
		logging.Int("impactors", len(impactors)),
	)
}

func (c *Controller) enterManualEntry(ctx context.Context, err error) {
	c.manualEntry = true
	c.presenter.ShowCatalogUnavailable(err)
	c.log.Warn(ctx, "catalog unavailable, manual entry enabled", logging.Err(err))
}

// SelectImpactor copies the diameter (average of the estimated range) and
// relative velocity of a catalog entry into the parameters. The material is
// left unchanged.
func (c *Controller) SelectImpactor(ctx context.Context, id string) (model.ImpactParameters, error) {
	if _, _, ok := c.store.CatalogInfo(); !ok {
		return model.ImpactParameters{}, c.reject(ctx, "select_impactor",
			fmt.Errorf("%w: no catalog loaded", core.ErrUnavailableCatalog))
	}
	imp, err := c.store.GetImpactor(id)
	if err != nil {
		if errors.Is(err, kb.ErrImpactorNotFound) {
			err = fmt.Errorf("%w: impactor %q not in catalog", core.ErrInvalidParameter, id)
		}
		return model.ImpactParameters{}, c.reject(ctx, "select_impactor", err)
	}

	p := model.ImpactParameters{
		Material:       c.params.Material,
		DiameterMeters: imp.AverageDiameterMeters(),
		VelocityKmS:    imp.VelocityKmS,
	}
	if err := c.SetParameters(ctx, p); err != nil {
		return model.ImpactParameters{}, err
	}
	c.log.Info(ctx, "impactor selected",
		logging.String("id", imp.ID),
		logging.String("name", imp.Name),
	)
	return p, nil
}

// Catalog returns the impactor store backing selections.
func (c *Controller) Catalog() *kb.KnowledgeBase { return c.store }
