// Package app wires the server together: config, logging, world, timeline,
// step loop and HTTP surface.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"rewind/server/internal/delta"
	servernet "rewind/server/internal/net"
	"rewind/server/internal/telemetry"
	"rewind/server/internal/timeline"
	"rewind/server/internal/world"
	"rewind/server/logging"
	loggingSinks "rewind/server/logging/sinks"
)

// Run starts the server and blocks until ctx is cancelled or the listener
// fails.
func Run(ctx context.Context, cfg Config) error {
	logger := log.Default()

	if raw := os.Getenv("REWIND_ADDR"); raw != "" {
		cfg.Addr = raw
	}
	if raw := os.Getenv("REWIND_MEMORY_CEILING_MIB"); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cfg.Timeline.MemoryCeilingMiB = value
		} else {
			logger.Printf("invalid REWIND_MEMORY_CEILING_MIB=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("REWIND_MAX_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			cfg.Timeline.MaxRewindSeconds = value
		} else {
			logger.Printf("invalid REWIND_MAX_SECONDS=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("REWIND_ENABLE_PPROF"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.Observability.EnablePprof = value
		} else {
			logger.Printf("invalid REWIND_ENABLE_PPROF=%q: %v", raw, err)
		}
	}

	logConfig := logging.DefaultConfig()
	logConfig.MinimumSeverity = cfg.minSeverity()
	namedSinks := []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console)},
	}
	if cfg.Logging.JSONPath != "" {
		jsonCfg := logConfig.JSON
		jsonCfg.FilePath = cfg.Logging.JSONPath
		jsonSink, err := loggingSinks.NewJSONSink(jsonCfg)
		if err != nil {
			return fmt.Errorf("open json sink: %w", err)
		}
		namedSinks = append(namedSinks, logging.NamedSink{Name: "json", Sink: jsonSink})
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logConfig, namedSinks)
	if err != nil {
		return fmt.Errorf("construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	metrics := logging.NewMetrics()

	store := world.New(world.Config{DefaultState: delta.StateID(cfg.World.DefaultState)})
	for _, region := range cfg.World.Regions {
		store.AddRegion(delta.RegionID(region))
	}

	ctrl := timeline.New(cfg.timelineConfig(), store, timeline.Deps{
		Publisher: router,
		Metrics:   telemetry.WrapMetrics(metrics),
		Clock:     logging.SystemClock{},
	})
	store.SetObserver(ctrl.Recorder())
	defer ctrl.Shutdown(context.Background())

	hub := servernet.NewHub()
	defer hub.CloseAll()

	stop := make(chan struct{})
	go runStepLoop(ctx, ctrl, hub, cfg, stop)
	defer close(stop)

	handler := servernet.NewHTTPHandler(ctrl, hub, servernet.HTTPHandlerConfig{
		Logger:        logger,
		Observability: cfg.Observability,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: handler}
	logger.Printf("server listening on %s", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}

// runStepLoop drives the timeline at the configured step rate. Every step
// brackets whatever mutations arrive between BeginStep and EndStep into one
// frame.
func runStepLoop(ctx context.Context, ctrl *timeline.Controller, hub *servernet.Hub, cfg Config, stop <-chan struct{}) {
	stepsPerSecond := ctrl.Config().StepsPerSecond
	interval := time.Second / time.Duration(stepsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var step uint64
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			step++
			ctrl.BeginStep(ctx, step)
			ctrl.EndStep(ctx)
			if cfg.StatusBroadcastSteps > 0 && step%uint64(cfg.StatusBroadcastSteps) == 0 {
				hub.BroadcastStatus(ctrl.Status())
			}
		}
	}
}
