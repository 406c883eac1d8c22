// Command chunksim runs a randomized allocation workload against a chunk allocator backed by host
// memory, defragments it, and reports how much fragmentation was recovered. Allocator statistics
// are exported for Prometheus while it runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vkngwrapper/chunkmem/chunkalloc"
	"golang.org/x/exp/slog"
)

func main() {
	var (
		configFile  string
		metricsAddr string
		linger      time.Duration
		detailed    bool
		verbose     bool
	)

	flag.StringVar(&configFile, "config", "", "configuration file name")
	flag.StringVar(&metricsAddr, "metrics", "", "address to serve /metrics on, e.g. :8891")
	flag.DurationVar(&linger, "linger", 0, "keep serving metrics for this long after the run")
	flag.BoolVar(&detailed, "detailed", false, "print the detailed chunk map after the run")
	flag.BoolVar(&verbose, "v", false, "verbose output")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	err := run(logger, configFile, metricsAddr, linger, detailed)
	if err != nil {
		logger.Error("chunksim failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configFile, metricsAddr string, linger time.Duration, detailed bool) error {
	config, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	sim, err := newSimulator(logger, config)
	if err != nil {
		return err
	}

	collector := chunkalloc.NewStatsCollector()
	collector.AddAllocator("chunksim", sim.allocator)
	collector.AddDefragger("chunksim", sim.defragger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	if metricsAddr != "" {
		server := serveMetrics(logger, registry, metricsAddr)
		defer server.Close()
	}

	logger.Info("running workload",
		slog.Int64("seed", config.Workload.Seed),
		slog.Int("operations", config.Workload.Operations),
		slog.String("strategy", config.Allocator.Strategy.String()),
	)

	r, err := sim.run(ctx)
	if err != nil {
		return multierror.Append(err, sim.close()).ErrorOrNil()
	}

	fmt.Println(sim.allocator.BuildStatsString(detailed))
	logger.Info("workload complete",
		slog.Int("allocations", r.Allocations),
		slog.Int("frees", r.Frees),
		slog.Int("failures", r.Failures),
		slog.Int("fragmentedBefore", r.Before.Fragmented),
		slog.Int("fragmentedAfter", r.After.Fragmented),
		slog.Int("allocationsMoved", r.Defrag.AllocationsMoved),
		slog.Int("bytesMoved", r.Defrag.BytesMoved),
		slog.Int("cycles", r.Defrag.Cycles),
	)

	if r.Corrupted > 0 {
		return multierror.Append(errors.Newf("%d locations were corrupted by relocation", r.Corrupted), sim.close()).ErrorOrNil()
	}

	if metricsAddr != "" && linger > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(linger):
		}
	}

	collector.Remove("chunksim")
	return sim.close()
}

func serveMetrics(logger *slog.Logger, registry *prometheus.Registry, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(logger.Handler(), slog.LevelError),
		ErrorHandling: promhttp.ContinueOnError,
	}))

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	return server
}
