package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/photonfoundry/beamroute/core"
	"github.com/photonfoundry/beamroute/internal/bus"
	"github.com/photonfoundry/beamroute/internal/config"
	"github.com/photonfoundry/beamroute/internal/logging"
	"github.com/photonfoundry/beamroute/internal/observability"
	"github.com/photonfoundry/beamroute/internal/presentation"
	"github.com/photonfoundry/beamroute/internal/refresh"
	"github.com/photonfoundry/beamroute/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to the engine YAML config (defaults apply when empty)")
	topologyPath := flag.String("topology", "", "Path to the topology YAML (overrides the config file)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logging.NewFromEnv().Error(context.Background(), "failed to load config",
				logging.String("path", *configPath), logging.Err(err))
			os.Exit(1)
		}
		cfg = loaded
	}
	if *topologyPath != "" {
		cfg.TopologyPath = *topologyPath
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewEngineCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}

	// A broken topology is fatal. A partial validity engine that silently
	// skips routes is worse than one that refuses to start.
	topo, err := core.LoadTopologyFile(cfg.TopologyPath)
	if err != nil {
		log.Error(ctx, "failed to load topology",
			logging.String("path", cfg.TopologyPath), logging.Err(err))
		os.Exit(1)
	}

	engine, err := core.NewEngine(topo)
	if err != nil {
		log.Error(ctx, "failed to build engine", logging.Err(err))
		os.Exit(1)
	}
	collector.SetTopologyCounts(len(topo.Devices()), topo.EdgeCount(), len(topo.Pairs()))
	log.Info(ctx, "topology loaded",
		logging.String("path", cfg.TopologyPath),
		logging.Int("devices", len(topo.Devices())),
		logging.Int("edges", topo.EdgeCount()),
		logging.Int("routes", len(topo.Pairs())))

	publisher := presentation.NewPublisher(log)
	publisher.Publish(engine.Resolver.Last())

	propBus := bus.New(engine, bus.Config{
		QueueSize: cfg.Bus.QueueSize,
		Logger:    log,
		Collector: collector,
		Publish:   func(set *core.VerdictSet) { publisher.Publish(set) },
	})

	source, err := telemetry.NewSource(telemetry.Config{
		Addr:   cfg.Telemetry.Addr,
		Topic:  cfg.Telemetry.Topic,
		Dial:   cfg.Telemetry.Dial,
		Logger: log,
	}, propBus.Submit)
	if err != nil {
		log.Error(ctx, "failed to open telemetry source", logging.Err(err))
		os.Exit(1)
	}

	reconciler := refresh.NewTicker(cfg.Refresh.Interval, func(context.Context) {
		publisher.Publish(engine.Resolver.RecomputeAll())
	})

	httpSrv := serveHTTP(cfg.HTTP.Addr, collector, publisher, log)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go propBus.Run(runCtx)
	go reconciler.Run(runCtx)
	go func() {
		if err := source.Run(runCtx); err != nil {
			log.Error(runCtx, "telemetry source exited", logging.Err(err))
			stop()
		}
	}()

	log.Info(ctx, "engine running",
		logging.String("telemetry_addr", cfg.Telemetry.Addr),
		logging.String("http_addr", cfg.HTTP.Addr))

	<-runCtx.Done()
	log.Info(ctx, "shutting down")

	// Drain whatever arrived before the source stopped so the last
	// published set reflects everything received.
	propBus.ProcessPending(context.Background())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if httpSrv != nil {
		_ = httpSrv.Shutdown(shutdownCtx)
	}
}

func serveHTTP(addr string, collector *observability.EngineCollector, publisher *presentation.Publisher, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.Handle("/verdicts", publisher.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "http server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving http", logging.String("addr", addr))
	return srv
}
