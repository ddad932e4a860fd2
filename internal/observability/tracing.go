package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	defaultServiceName  = "impact-simulator"
	defaultOTLPEndpoint = "localhost:4317"
	instrumentationRoot = "github.com/signalsfoundry/impact-simulator/"
)

// TracingConfig governs how tracing is initialised. Spans are exported to
// stdout or to an OTLP collector over gRPC.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"` // stdout | otlp
	Endpoint    string  `yaml:"endpoint"` // otlp only
	Insecure    bool    `yaml:"insecure"` // otlp without TLS
	SampleRatio float64 `yaml:"sample_ratio"`

	// Output receives stdout spans; nil means os.Stdout.
	Output io.Writer `yaml:"-"`
}

// DefaultTracingConfig has tracing off, with the stdout exporter selected
// for when it is switched on.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: defaultServiceName,
		Exporter:    "stdout",
		Insecure:    true,
		SampleRatio: 1.0,
	}
}

// TracingConfigFromEnv overlays the IMPACT_TRACING_* and IMPACT_OTLP_*
// variables onto base. Unparseable values are ignored.
func TracingConfigFromEnv(base TracingConfig) TracingConfig {
	if b, ok := envBool("IMPACT_TRACING_ENABLED"); ok {
		base.Enabled = b
	}
	if v := os.Getenv("IMPACT_TRACING_EXPORTER"); v != "" {
		base.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("IMPACT_TRACING_SERVICE_NAME"); v != "" {
		base.ServiceName = v
	}
	if v := os.Getenv("IMPACT_OTLP_ENDPOINT"); v != "" {
		base.Endpoint = v
	}
	if b, ok := envBool("IMPACT_OTLP_INSECURE"); ok {
		base.Insecure = b
	}
	if v := os.Getenv("IMPACT_TRACING_SAMPLE_RATIO"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r >= 0 && r <= 1 {
			base.SampleRatio = r
		}
	}
	if base.Exporter == "" {
		base.Exporter = "stdout"
	}
	if base.ServiceName == "" {
		base.ServiceName = defaultServiceName
	}
	return base
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	b, err := strconv.ParseBool(raw)
	return b, err == nil
}

// Tracer returns the tracer for one simulator component, such as "catalog"
// or "controller". It follows whatever provider InitTracing installed.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(instrumentationRoot + component)
}

// InitTracing installs the global tracer provider and propagators described
// by cfg. The returned function flushes and stops the provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "impact"),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float64("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithoutTimestamps())
	case "otlp":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		creds := insecure.NewCredentials()
		if !cfg.Insecure {
			creds = credentials.NewClientTLSFromCert(nil, "")
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(creds)),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes tracing within five seconds and logs, rather
// than returns, any failure.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
