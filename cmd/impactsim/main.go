package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/impact-simulator/internal/catalog"
	"github.com/signalsfoundry/impact-simulator/internal/config"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/internal/observability"
	"github.com/signalsfoundry/impact-simulator/internal/render"
	"github.com/signalsfoundry/impact-simulator/internal/sim/controller"
	"github.com/signalsfoundry/impact-simulator/internal/sim/overlay"
	"github.com/signalsfoundry/impact-simulator/kb"
	"github.com/signalsfoundry/impact-simulator/timectrl"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	addr := flag.String("addr", "", "HTTP address for the globe page and API (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	noCatalog := flag.Bool("no-catalog", false, "Disable the remote impactor catalog and use manual entry only")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "impactsim: %v\n", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *metricsAddr != "" {
		cfg.HTTP.MetricsAddr = *metricsAddr
	}
	if *noCatalog {
		cfg.Catalog.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "impactsim: %v\n", err)
		os.Exit(2)
	}

	log := logging.New(cfg.Logging)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		log.Error(ctx, "failed to listen", logging.String("addr", cfg.HTTP.Addr), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "impact simulator exited", logging.Err(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	return config.ApplyEnv(cfg)
}

// run wires the simulator and serves until ctx is cancelled or a server
// fails.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	collector, err := observability.NewSimulationCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}

	hub := render.NewHub(
		render.WithLogger(log),
		render.WithGlobeRadius(cfg.Globe.Radius),
		render.WithPreviewRadius(cfg.Globe.PreviewRadius),
	)
	overlays, err := overlay.NewManager(hub, cfg.Globe.Radius,
		overlay.WithLogger(log),
		overlay.WithCommandRecorder(collector),
	)
	if err != nil {
		return fmt.Errorf("overlay manager: %w", err)
	}

	loop := controller.NewLoop(64)
	store := kb.NewKnowledgeBase()
	defer store.Subscribe(catalogGauge(collector))()
	clock := timectrl.SystemClock{}
	opts := []controller.Option{
		controller.WithLogger(log),
		controller.WithPresenter(hub),
		controller.WithMetricsRecorder(collector),
		controller.WithStore(store),
		controller.WithClock(clock),
		controller.WithInitialLocation(cfg.Location),
		controller.WithInitialParameters(cfg.Impact),
		controller.WithPreviewSize(cfg.Globe.PreviewHeight),
		controller.WithImpactScale(cfg.Globe.ImpactScale),
	}
	if cfg.Catalog.Enabled {
		client, err := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.APIKey,
			catalog.WithTimeout(cfg.Catalog.Timeout),
			catalog.WithRetry(cfg.Catalog.Retries, 500*time.Millisecond, 5*time.Second),
			catalog.WithRateLimit(cfg.Catalog.RatePerSecond, cfg.Catalog.Burst),
			catalog.WithLogger(log),
		)
		if err != nil {
			return fmt.Errorf("catalog client: %w", err)
		}
		opts = append(opts, controller.WithCatalog(client, loop))
	}
	ctrl, err := controller.New(overlays, opts...)
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	// Start runs before the loop so the controller still has a single owner.
	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("start controller: %w", err)
	}

	mux := http.NewServeMux()
	newAPI(loop, store, log).register(mux)
	mux.Handle("GET /{$}", hub.Page())
	mux.Handle("/ws", hub)
	srv := &http.Server{
		Handler:           requestLogger(mux, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx, ctrl)
	})
	g.Go(func() error {
		log.Info(gctx, "serving globe and API", logging.String("addr", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var metricsSrv *http.Server
	if cfg.HTTP.MetricsAddr != "" {
		metricsSrv = metricsServer(cfg.HTTP.MetricsAddr, collector)
		g.Go(func() error {
			log.Info(gctx, "serving Prometheus metrics", logging.String("addr", cfg.HTTP.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if cfg.Catalog.Enabled {
		scheduleCatalog(gctx, g, loop, clock, cfg.Catalog.RefreshInterval, log)
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down impact simulator")
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}

// scheduleCatalog fetches today's catalog now and again whenever the date
// rolls over.
func scheduleCatalog(ctx context.Context, g *errgroup.Group, loop *controller.Loop, clock timectrl.Clock, interval time.Duration, log logging.Logger) {
	request := func(day time.Time) {
		loop.Post(func(c *controller.Controller) {
			if _, err := c.RequestCatalog(ctx, day); err != nil {
				log.Warn(ctx, "catalog request failed", logging.Err(err))
			}
		})
	}

	now := clock.Now()
	tc := timectrl.NewTimeController(now, interval, timectrl.RealTime)
	tc.AddListener(timectrl.OnDayChange(now, request))

	g.Go(func() error {
		request(timectrl.Day(now))
		<-tc.Start(ctx, 0)
		return nil
	})
}

// catalogGauge keeps catalog_impactors in step with the stored catalog.
func catalogGauge(collector *observability.SimulationCollector) func(kb.Event) {
	return func(ev kb.Event) {
		if ev.Type == kb.EventCatalogReplaced {
			collector.SetCatalogSize(ev.Count)
		}
	}
}

func metricsServer(addr string, collector *observability.SimulationCollector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
