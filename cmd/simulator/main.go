package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/orbitalfoundry/debris-simulator/core"
	"github.com/orbitalfoundry/debris-simulator/internal/config"
	"github.com/orbitalfoundry/debris-simulator/internal/logging"
	"github.com/orbitalfoundry/debris-simulator/internal/observability"
	"github.com/orbitalfoundry/debris-simulator/internal/server"
	"github.com/orbitalfoundry/debris-simulator/timectrl"
)

func main() {
	configDir := flag.String("config-dir", "configs", "directory containing "+config.FileName)
	listenAddr := flag.String("listen", "", "override the configured HTTP listen address")
	populate := flag.Int("populate", 0, "seed this many objects at startup using the default class distribution")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Load(*configDir); err != nil {
		log.Error(ctx, "config load failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	log = logging.New(logging.Config{
		Level:  config.GetString("logLevel"),
		Format: config.GetString("logFormat"),
	})

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "tracing init failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	metrics, err := observability.NewEngineCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.Error(ctx, "metrics init failed", logging.String("error", err.Error()))
		os.Exit(1)
	}

	engineCfg, err := config.EngineConfig()
	if err != nil {
		log.Error(ctx, "engine config invalid", logging.String("error", err.Error()))
		os.Exit(1)
	}
	engine, err := core.New(engineCfg, core.WithLogger(log), core.WithMetrics(metrics))
	if err != nil {
		log.Error(ctx, "engine initialization failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info(ctx, "engine ready",
		logging.String("backend", engine.Backend().String()),
		logging.Int("capacity", engine.Capacity()))

	if *populate > 0 {
		seeded, err := engine.Populate(*populate, core.DefaultClassDistribution())
		if err != nil {
			log.Error(ctx, "startup population failed", logging.String("error", err.Error()))
			os.Exit(1)
		}
		log.Info(ctx, "population seeded", logging.Int("seeded", seeded))
	}

	api := server.New(engine, log, metrics.Middleware)

	interval := time.Duration(config.GetInt("server.tickIntervalMs")) * time.Millisecond
	runner := timectrl.NewRunner(engine, interval)
	runner.AddListener(api.PublishTick)
	runnerDone := runner.Start(ctx)

	addr := config.GetString("server.listenAddr")
	if *listenAddr != "" {
		addr = *listenAddr
	}
	mux := http.NewServeMux()
	mux.Handle("/", api.Handler())
	mux.Handle("/metrics", metrics.Handler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	httpDone := make(chan error, 1)
	go func() {
		log.Info(ctx, "control API listening", logging.String("addr", addr))
		httpDone <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down")
	case err := <-httpDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http server failed", logging.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	api.Hub().Close()
	<-runnerDone
}
