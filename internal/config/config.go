// Package config loads impact simulator settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/internal/observability"
	"github.com/signalsfoundry/impact-simulator/model"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full service configuration.
type Config struct {
	HTTP     HTTPConfig                  `yaml:"http"`
	Globe    GlobeConfig                 `yaml:"globe"`
	Impact   model.ImpactParameters      `yaml:"impact"`
	Location model.GeoPoint              `yaml:"location"`
	Catalog  CatalogConfig               `yaml:"catalog"`
	Logging  logging.Config              `yaml:"logging"`
	Tracing  observability.TracingConfig `yaml:"tracing"`
}

// HTTPConfig holds listen addresses. An empty MetricsAddr disables the
// metrics listener.
type HTTPConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// GlobeConfig sizes the rendered scene.
type GlobeConfig struct {
	Radius        float64 `yaml:"radius"`
	PreviewHeight float64 `yaml:"preview_height"`
	PreviewRadius float64 `yaml:"preview_radius"`
	ImpactScale   float64 `yaml:"impact_scale"`
}

// CatalogConfig configures the NeoWs client and its refresh schedule.
type CatalogConfig struct {
	Enabled         bool          `yaml:"enabled"`
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout"`
	Retries         int           `yaml:"retries"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
	Burst           int           `yaml:"burst"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:        ":8080",
			MetricsAddr: ":9090",
		},
		Globe: GlobeConfig{
			Radius:        core.DefaultGlobeRadius,
			PreviewHeight: 50,
			PreviewRadius: 1,
			ImpactScale:   2,
		},
		Impact: model.ImpactParameters{
			Material:       "rock",
			DiameterMeters: 50,
			VelocityKmS:    20,
		},
		Catalog: CatalogConfig{
			Enabled:         true,
			BaseURL:         "https://api.nasa.gov",
			APIKey:          "DEMO_KEY",
			Timeout:         10 * time.Second,
			Retries:         3,
			RatePerSecond:   0.5,
			Burst:           2,
			RefreshInterval: time.Hour,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
		},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := decode(f, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	if err := decode(r, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays IMPACT_* variables, LOG_* variables and the tracing
// variables onto cfg.
func ApplyEnv(cfg Config) (Config, error) {
	if v, ok := os.LookupEnv("IMPACT_NEO_API_KEY"); ok {
		cfg.Catalog.APIKey = v
	}
	if v, ok := os.LookupEnv("IMPACT_NEO_BASE_URL"); ok {
		cfg.Catalog.BaseURL = v
	}
	if v, ok := os.LookupEnv("IMPACT_CATALOG_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: IMPACT_CATALOG_ENABLED=%q", ErrInvalidConfig, v)
		}
		cfg.Catalog.Enabled = enabled
	}
	if v, ok := os.LookupEnv("IMPACT_HTTP_ADDR"); ok {
		cfg.HTTP.Addr = v
	}
	if v, ok := os.LookupEnv("IMPACT_METRICS_ADDR"); ok {
		cfg.HTTP.MetricsAddr = v
	}
	cfg.Logging = logging.ConfigFromEnv(cfg.Logging)
	cfg.Tracing = observability.TracingConfigFromEnv(cfg.Tracing)
	return cfg, nil
}

// Validate reports every nonsensical value in cfg.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if strings.TrimSpace(c.HTTP.Addr) == "" {
		bad("http.addr is required")
	}
	if c.HTTP.MetricsAddr != "" && c.HTTP.MetricsAddr == c.HTTP.Addr {
		bad("http.metrics_addr must differ from http.addr")
	}

	for _, f := range []struct {
		name  string
		value float64
	}{
		{"globe.radius", c.Globe.Radius},
		{"globe.preview_height", c.Globe.PreviewHeight},
		{"globe.preview_radius", c.Globe.PreviewRadius},
		{"globe.impact_scale", c.Globe.ImpactScale},
	} {
		if !(f.value > 0) || math.IsInf(f.value, 0) {
			bad("%s must be finite and > 0, got %v", f.name, f.value)
		}
	}

	if err := core.ValidateParameters(c.Impact); err != nil {
		bad("impact: %v", err)
	}
	if err := core.ValidateGeoPoint(c.Location); err != nil {
		bad("location: %v", err)
	}

	if c.Catalog.Enabled {
		if u, err := url.Parse(c.Catalog.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			bad("catalog.base_url %q is not an absolute URL", c.Catalog.BaseURL)
		}
		if c.Catalog.APIKey == "" {
			bad("catalog.api_key is required when the catalog is enabled")
		}
		if c.Catalog.Timeout <= 0 {
			bad("catalog.timeout must be > 0, got %s", c.Catalog.Timeout)
		}
		if c.Catalog.Retries < 0 {
			bad("catalog.retries must be >= 0, got %d", c.Catalog.Retries)
		}
		if c.Catalog.RatePerSecond < 0 || math.IsNaN(c.Catalog.RatePerSecond) {
			bad("catalog.rate_per_second must be >= 0, got %v", c.Catalog.RatePerSecond)
		}
		if c.Catalog.RatePerSecond > 0 && c.Catalog.Burst < 1 {
			bad("catalog.burst must be >= 1 when rate limiting, got %d", c.Catalog.Burst)
		}
		if c.Catalog.RefreshInterval < time.Minute {
			bad("catalog.refresh_interval must be at least 1m, got %s", c.Catalog.RefreshInterval)
		}
	}

	switch strings.ToLower(c.Tracing.Exporter) {
	case "", "stdout", "otlp":
	default:
		bad("tracing.exporter %q must be stdout or otlp", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		bad("tracing.sample_ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}
	return errors.Join(errs...)
}
