// Command quadrant runs one rank of a distributed Monte Carlo pi
// estimation, or an entire run in-process with the local transport.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/arloliu/quadrant"
	"github.com/arloliu/quadrant/comm"
	"github.com/arloliu/quadrant/internal/logging"
	"github.com/arloliu/quadrant/internal/metrics"
)

type flags struct {
	configPath  string
	runID       string
	totalTrials uint64
	batchSize   uint64
	workers     int
	transport   string
	natsURL     string
	rank        int
	worldSize   int
	logLevel    string
	metricsAddr string

	telemetryEnabled  bool
	telemetryDir      string
	telemetryInterval time.Duration
	agentPath         string
	agentRuntime      string
}

func main() {
	var f flags

	cmd := &cobra.Command{
		Use:           "quadrant",
		Short:         "Distributed Monte Carlo pi estimation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), &f)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "", "YAML configuration file (flags override)")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run identifier shared by all ranks")
	cmd.Flags().Uint64Var(&f.totalTrials, "total-trials", 0, "total trials across all ranks")
	cmd.Flags().Uint64Var(&f.batchSize, "batch-size", 0, "max trials per worker batch")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "local worker count (0 = auto-detect)")
	cmd.Flags().StringVar(&f.transport, "transport", "local", "rank transport: local or nats")
	cmd.Flags().StringVar(&f.natsURL, "nats-url", nats.DefaultURL, "NATS server URL (nats transport)")
	cmd.Flags().IntVar(&f.rank, "rank", 0, "this process's rank (nats transport)")
	cmd.Flags().IntVar(&f.worldSize, "world-size", 1, "number of ranks in the run")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVar(&f.telemetryEnabled, "enable-telemetry", false, "launch the telemetry agent on host leaders")
	cmd.Flags().StringVar(&f.telemetryDir, "telemetry-dir", "", "directory for telemetry output files")
	cmd.Flags().DurationVar(&f.telemetryInterval, "telemetry-interval", 0, "telemetry sampling interval")
	cmd.Flags().StringVar(&f.agentPath, "agent-path", "", "telemetry agent executable")
	cmd.Flags().StringVar(&f.agentRuntime, "agent-runtime", "", "interpreter for the telemetry agent")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f *flags) error {
	cfg, err := buildConfig(f)
	if err != nil {
		return err
	}

	logger := logging.NewSlogLevel(parseLevel(f.logLevel))

	collector := quadrant.MetricsCollector(metrics.NewNop())
	if f.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector = metrics.NewPrometheus(reg, "quadrant")
		go serveMetrics(f.metricsAddr, reg, logger)
	}

	opts := []quadrant.Option{
		quadrant.WithLogger(logger),
		quadrant.WithMetrics(collector),
	}

	switch f.transport {
	case "local":
		return runLocal(ctx, cfg, f.worldSize, opts)
	case "nats":
		return runNATS(ctx, cfg, f, opts)
	default:
		return fmt.Errorf("unknown transport %q (want local or nats)", f.transport)
	}
}

// runLocal executes every rank of the run inside this process, one
// goroutine per rank.
func runLocal(ctx context.Context, cfg quadrant.Config, worldSize int, opts []quadrant.Option) error {
	comms, err := comm.NewLocalGroup(worldSize)
	if err != nil {
		return err
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		report *quadrant.Report
		first  error
	)

	for rank := range comms {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			defer comms[rank].Close()

			runner, err := quadrant.New(cfg, comms[rank], opts...)
			if err == nil {
				var rep *quadrant.Report
				rep, err = runner.Run(ctx)
				if rep != nil {
					mu.Lock()
					report = rep
					mu.Unlock()
				}
			}
			if err != nil {
				mu.Lock()
				if first == nil {
					first = fmt.Errorf("rank %d: %w", rank, err)
				}
				mu.Unlock()
			}
		}(rank)
	}
	wg.Wait()

	if first != nil {
		return first
	}
	fmt.Println(report)

	return nil
}

// runNATS executes this process's single rank against a NATS rendezvous.
func runNATS(ctx context.Context, cfg quadrant.Config, f *flags, opts []quadrant.Option) error {
	nc, err := nats.Connect(f.natsURL, nats.Name(fmt.Sprintf("quadrant-%s-rank-%d", cfg.RunID, f.rank)))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", f.natsURL, err)
	}
	defer nc.Close()

	c, err := comm.NewNATS(nc, cfg.RunID, f.rank, f.worldSize)
	if err != nil {
		return err
	}
	defer c.Close()

	runner, err := quadrant.New(cfg, c, opts...)
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	if report != nil {
		fmt.Println(report)
	}

	return nil
}

func buildConfig(f *flags) (quadrant.Config, error) {
	cfg := quadrant.DefaultConfig()
	if f.configPath != "" {
		loaded, err := quadrant.LoadConfig(f.configPath)
		if err != nil {
			return quadrant.Config{}, err
		}
		cfg = loaded
	}

	if f.runID != "" {
		cfg.RunID = f.runID
	}
	if f.totalTrials != 0 {
		cfg.TotalTrials = f.totalTrials
	}
	if f.batchSize != 0 {
		cfg.MaxBatchSize = f.batchSize
	}
	if f.workers != 0 {
		cfg.Workers = f.workers
	}
	if f.telemetryEnabled {
		cfg.Telemetry.Enabled = true
	}
	if f.telemetryDir != "" {
		cfg.Telemetry.OutputDir = f.telemetryDir
	}
	if f.telemetryInterval != 0 {
		cfg.Telemetry.Interval = f.telemetryInterval
	}
	if f.agentPath != "" {
		cfg.Telemetry.AgentPath = f.agentPath
	}
	if f.agentRuntime != "" {
		cfg.Telemetry.AgentRuntime = f.agentRuntime
	}

	if f.worldSize < 1 {
		return quadrant.Config{}, fmt.Errorf("world-size must be >= 1, got %d", f.worldSize)
	}
	if f.rank < 0 || f.rank >= f.worldSize {
		return quadrant.Config{}, fmt.Errorf("rank must be in [0, %d), got %d", f.worldSize, f.rank)
	}

	return cfg, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger quadrant.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	logger.Info("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err.Error())
	}
}
