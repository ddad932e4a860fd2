// Package catalog fetches near-Earth-object close approaches from the NASA
// NeoWs feed and converts them into impactor candidates.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/internal/observability"
	"github.com/signalsfoundry/impact-simulator/model"
)

const (
	DefaultBaseURL = "https://api.nasa.gov"
	DefaultAPIKey  = "DEMO_KEY"

	feedPath    = "/neo/rest/v1/feed"
	dateLayout  = "2006-01-02"
	fullLayout  = "2006-Jan-02 15:04"
	maxBodySize = 8 << 20
)

// Fetcher returns the impactor candidates making a close approach on date.
type Fetcher interface {
	FetchDay(ctx context.Context, date time.Time) ([]model.Impactor, error)
}

// Client is a Fetcher backed by the NeoWs feed endpoint. Requests are retried
// on transient failures, throttled client-side and deduplicated per date.
type Client struct {
	baseURL *url.URL
	apiKey  string

	http    *retryablehttp.Client
	limiter *rate.Limiter
	group   singleflight.Group
	log     logging.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http.HTTPClient = hc
		}
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.HTTPClient.Timeout = d
		}
	}
}

// WithRetry configures the retry budget and backoff bounds.
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.http.RetryMax = max
		c.http.RetryWaitMin = waitMin
		c.http.RetryWaitMax = waitMax
	}
}

// WithRateLimit throttles outgoing requests to r per second with the given burst.
// A non-positive r disables throttling.
func WithRateLimit(r float64, burst int) Option {
	return func(c *Client) {
		if r <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithLogger attaches a logger. Retry attempts are logged through it too.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient builds a feed client for baseURL (for example
// https://api.nasa.gov) authenticated with apiKey.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: catalog base url %q", core.ErrInvalidParameter, baseURL)
	}
	if apiKey == "" {
		apiKey = DefaultAPIKey
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	rc.RetryMax = 3

	c := &Client{
		baseURL: u,
		apiKey:  apiKey,
		http:    rc,
		limiter: rate.NewLimiter(rate.Limit(0.5), 2),
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	rc.Logger = leveledLogger{log: c.log.With(logging.String("component", "catalog"))}
	return c, nil
}

// FetchDay implements Fetcher. Every failure (transport, status, payload) is
// reported as core.ErrUnavailableCatalog.
func (c *Client) FetchDay(ctx context.Context, date time.Time) ([]model.Impactor, error) {
	day := date.UTC().Format(dateLayout)

	ctx, span := observability.Tracer("catalog").Start(ctx, "catalog.FetchDay")
	span.SetAttributes(attribute.String("catalog.date", day))
	defer span.End()

	v, err, shared := c.group.Do(day, func() (any, error) {
		return c.fetch(ctx, day)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	impactors := v.([]model.Impactor)
	span.SetAttributes(
		attribute.Int("catalog.impactors", len(impactors)),
		attribute.Bool("catalog.shared", shared),
	)

	// Shared results must not alias between callers.
	out := make([]model.Impactor, len(impactors))
	copy(out, impactors)
	return out, nil
}

func (c *Client) fetch(ctx context.Context, day string) ([]model.Impactor, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnavailableCatalog, err)
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + feedPath
	q := url.Values{}
	q.Set("start_date", day)
	q.Set("end_date", day)
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", core.ErrUnavailableCatalog, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnavailableCatalog, redact(err.Error(), c.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: feed returned %s", core.ErrUnavailableCatalog, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", core.ErrUnavailableCatalog, err)
	}
	impactors, skipped, err := parseFeed(body, day)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		c.log.Debug(ctx, "skipped incomplete catalog entries",
			logging.String("date", day),
			logging.Int("skipped", skipped),
		)
	}
	c.log.Info(ctx, "catalog fetched",
		logging.String("date", day),
		logging.Int("impactors", len(impactors)),
	)
	return impactors, nil
}

type feedResponse struct {
	NearEarthObjects map[string][]neo `json:"near_earth_objects"`
}

type neo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	EstimatedDiameter struct {
		Meters struct {
			Min float64 `json:"estimated_diameter_min"`
			Max float64 `json:"estimated_diameter_max"`
		} `json:"meters"`
	} `json:"estimated_diameter"`
	Hazardous         bool            `json:"is_potentially_hazardous_asteroid"`
	CloseApproachData []closeApproach `json:"close_approach_data"`
}

type closeApproach struct {
	Date             string `json:"close_approach_date"`
	DateFull         string `json:"close_approach_date_full"`
	RelativeVelocity struct {
		KilometersPerSecond string `json:"kilometers_per_second"`
	} `json:"relative_velocity"`
}

// parseFeed converts a feed payload into impactors. Entries lacking a usable
// diameter or velocity are skipped and counted.
func parseFeed(body []byte, day string) ([]model.Impactor, int, error) {
	var feed feedResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, 0, fmt.Errorf("%w: decode feed: %v", core.ErrUnavailableCatalog, err)
	}
	if feed.NearEarthObjects == nil {
		return nil, 0, fmt.Errorf("%w: feed has no near_earth_objects", core.ErrUnavailableCatalog)
	}

	var (
		out     []model.Impactor
		skipped int
		seen    = make(map[string]bool)
	)
	for _, objects := range feed.NearEarthObjects {
		for _, o := range objects {
			imp, ok := toImpactor(o, day)
			if !ok || seen[imp.ID] {
				skipped++
				continue
			}
			seen[imp.ID] = true
			out = append(out, imp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CloseApproach.Equal(out[j].CloseApproach) {
			return out[i].CloseApproach.Before(out[j].CloseApproach)
		}
		return out[i].ID < out[j].ID
	})
	return out, skipped, nil
}

func toImpactor(o neo, day string) (model.Impactor, bool) {
	if o.ID == "" || len(o.CloseApproachData) == 0 {
		return model.Impactor{}, false
	}
	approach := o.CloseApproachData[0]
	for _, ca := range o.CloseApproachData {
		if ca.Date == day {
			approach = ca
			break
		}
	}

	velocity, err := strconv.ParseFloat(approach.RelativeVelocity.KilometersPerSecond, 64)
	if err != nil || velocity <= 0 {
		return model.Impactor{}, false
	}
	minD, maxD := o.EstimatedDiameter.Meters.Min, o.EstimatedDiameter.Meters.Max
	if minD <= 0 || maxD < minD {
		return model.Impactor{}, false
	}

	return model.Impactor{
		ID:                o.ID,
		Name:              o.Name,
		MinDiameterMeters: minD,
		MaxDiameterMeters: maxD,
		VelocityKmS:       velocity,
		CloseApproach:     approachTime(approach),
		Hazardous:         o.Hazardous,
	}, true
}

func approachTime(ca closeApproach) time.Time {
	if t, err := time.Parse(fullLayout, ca.DateFull); err == nil {
		return t
	}
	t, _ := time.Parse(dateLayout, ca.Date)
	return t
}

// redact strips the API key from error text that echoes the request URL.
func redact(s, key string) string {
	if key == "" {
		return s
	}
	return strings.ReplaceAll(s, key, "REDACTED")
}
