package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/internal/sim/controller"
	"github.com/signalsfoundry/impact-simulator/kb"
	"github.com/signalsfoundry/impact-simulator/model"
)

const maxRequestBody = 64 << 10

// api exposes the controller over JSON. Every mutation runs on the controller
// loop. A client that disconnects before its task is queued changes nothing;
// once queued the task runs and the response reports its real outcome.
type api struct {
	loop  *controller.Loop
	store *kb.KnowledgeBase
	log   logging.Logger
}

func newAPI(loop *controller.Loop, store *kb.KnowledgeBase, log logging.Logger) *api {
	return &api{loop: loop, store: store, log: log}
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/location", a.handleLocation)
	mux.HandleFunc("POST /api/parameters", a.handleParameters)
	mux.HandleFunc("POST /api/launch", a.handleLaunch)
	mux.HandleFunc("POST /api/reset", a.handleReset)
	mux.HandleFunc("POST /api/select", a.handleSelect)
	mux.HandleFunc("POST /api/catalog/refresh", a.handleRefresh)
	mux.HandleFunc("GET /api/state", a.handleState)
	mux.HandleFunc("GET /api/catalog", a.handleCatalog)
	mux.HandleFunc("GET /api/materials", a.handleMaterials)
}

// locationRequest carries either a point or a TLE pair for a tracked object.
type locationRequest struct {
	Lat  *float64  `json:"lat"`
	Lon  *float64  `json:"lon"`
	TLE1 string    `json:"tle1"`
	TLE2 string    `json:"tle2"`
	At   time.Time `json:"at"`
}

func (a *api) handleLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !decode(w, r, &req) {
		return
	}
	var snap controller.Snapshot
	err := a.loop.Do(r.Context(), func(c *controller.Controller) error {
		switch {
		case req.TLE1 != "" || req.TLE2 != "":
			if _, err := c.SetLocationFromTLE(r.Context(), req.TLE1, req.TLE2, req.At); err != nil {
				return err
			}
		case req.Lat != nil && req.Lon != nil:
			if err := c.SetLocation(r.Context(), model.GeoPoint{Lat: *req.Lat, Lon: *req.Lon}); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: lat and lon (or tle1 and tle2) are required", core.ErrInvalidParameter)
		}
		snap = c.Snapshot()
		return nil
	})
	a.respond(w, r, snap, err)
}

func (a *api) handleParameters(w http.ResponseWriter, r *http.Request) {
	var p model.ImpactParameters
	if !decode(w, r, &p) {
		return
	}
	var snap controller.Snapshot
	err := a.loop.Do(r.Context(), func(c *controller.Controller) error {
		if err := c.SetParameters(r.Context(), p); err != nil {
			return err
		}
		snap = c.Snapshot()
		return nil
	})
	a.respond(w, r, snap, err)
}

func (a *api) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var res model.ImpactResult
	err := a.loop.Do(r.Context(), func(c *controller.Controller) error {
		var err error
		res, err = c.Launch(r.Context())
		return err
	})
	a.respond(w, r, res, err)
}

func (a *api) handleReset(w http.ResponseWriter, r *http.Request) {
	var snap controller.Snapshot
	err := a.loop.Do(r.Context(), func(c *controller.Controller) error {
		if err := c.Reset(r.Context()); err != nil {
			return err
		}
		snap = c.Snapshot()
		return nil
	})
	a.respond(w, r, snap, err)
}

func (a *api) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decode(w, r, &req) {
		return
	}
	var p model.ImpactParameters
	err := a.loop.Do(r.Context(), func(c *controller.Controller) error {
		var err error
		p, err = c.SelectImpactor(r.Context(), req.ID)
		return err
	})
	a.respond(w, r, p, err)
}

func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if r.ContentLength > 0 && !decode(w, r, &req) {
		return
	}
	var date time.Time
	if req.Date != "" {
		d, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			a.respond(w, r, nil, fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", core.ErrInvalidParameter, req.Date))
			return
		}
		date = d
	}
	var seq uint64
	err := a.loop.Do(r.Context(), func(c *controller.Controller) error {
		var err error
		seq, err = c.RequestCatalog(context.WithoutCancel(r.Context()), date)
		return err
	})
	if err != nil {
		a.respond(w, r, nil, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]uint64{"seq": seq})
}

func (a *api) handleState(w http.ResponseWriter, r *http.Request) {
	var snap controller.Snapshot
	err := a.loop.Do(r.Context(), func(c *controller.Controller) error {
		snap = c.Snapshot()
		return nil
	})
	a.respond(w, r, snap, err)
}

type catalogResponse struct {
	Date      string           `json:"date,omitempty"`
	Seq       uint64           `json:"seq"`
	Impactors []model.Impactor `json:"impactors"`
}

// handleCatalog reads the store directly; it is safe for concurrent readers.
func (a *api) handleCatalog(w http.ResponseWriter, r *http.Request) {
	resp := catalogResponse{Impactors: a.store.ListImpactors()}
	if date, seq, ok := a.store.CatalogInfo(); ok {
		resp.Date = date.Format(time.DateOnly)
		resp.Seq = seq
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleMaterials(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.Materials())
}

func (a *api) respond(w http.ResponseWriter, r *http.Request, body any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, body)
		return
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Warn(r.Context(), "request failed", logging.String("path", r.URL.Path), logging.Err(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Reason: controller.Reason(err)})
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownMaterial), errors.Is(err, core.ErrInvalidParameter):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrUnavailableCatalog), errors.Is(err, controller.ErrLoopStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body: " + err.Error(), Reason: "bad_request"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger tags every request with a request_id, taken from the
// X-Request-ID header when present.
func requestLogger(next http.Handler, base logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, id := logging.EnsureRequestID(ctx)
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		base.Debug(ctx, "http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
