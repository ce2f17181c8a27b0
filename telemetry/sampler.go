// Package telemetry implements the per-host metrics agent: a sampling loop
// over OS resource counters, persisted as one CSV row per interval.
//
// The driver never links this package into its computation path; it launches
// the agent binary as a supervised subprocess and treats the CSV as an
// opaque side effect.
package telemetry

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"

	"github.com/arloliu/quadrant/internal/logging"
	"github.com/arloliu/quadrant/types"
)

// Header is the CSV column set, one row per sampling interval. Disk and
// network columns are deltas over the interval; memory columns are the state
// at the end of the interval.
var Header = []string{
	"timestamp",
	"cpu_percent",
	"memory_total_gb",
	"memory_available_gb",
	"memory_percent",
	"disk_read_mb_interval",
	"disk_write_mb_interval",
	"disk_read_count_interval",
	"disk_write_count_interval",
	"net_sent_mb_interval",
	"net_recv_mb_interval",
}

// Sampler writes system resource counters to a CSV file at a fixed cadence.
type Sampler struct {
	output   string
	interval time.Duration
	logger   types.Logger
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithLogger sets the sampler's logger.
func WithLogger(logger types.Logger) Option {
	return func(s *Sampler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a sampler writing to output every interval.
//
// Parameters:
//   - output: CSV destination path (parent directory is created if missing)
//   - interval: Sampling cadence (values < 1s are clamped to 1s)
//   - opts: Optional settings
//
// Returns:
//   - *Sampler: Configured sampler
func New(output string, interval time.Duration, opts ...Option) *Sampler {
	if interval < time.Second {
		interval = time.Second
	}

	s := &Sampler{
		output:   output,
		interval: interval,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ioSnapshot holds the cumulative counters a delta row is computed against.
type ioSnapshot struct {
	diskReadBytes  uint64
	diskWriteBytes uint64
	diskReadCount  uint64
	diskWriteCount uint64
	netSentBytes   uint64
	netRecvBytes   uint64
}

// Run samples until the context is cancelled.
//
// The CSV header is written immediately, then one row per interval, flushed
// after every row so the file is useful even when the agent is killed. The
// sampling loop is the agent's whole life; the supervisor ends it with an
// interrupt, which the CLI wires to context cancellation.
//
// Parameters:
//   - ctx: Cancellation ends the loop cleanly
//
// Returns:
//   - error: File creation or write error; nil on cancellation
func (s *Sampler) Run(ctx context.Context) error {
	if dir := filepath.Dir(s.output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(s.output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	writer.Flush()

	s.logger.Info("system metrics sampling started",
		"output", s.output, "interval", s.interval)

	// Prime the counters; the deltas of the first row are measured from here.
	// cpu.Percent with a zero interval also measures since its previous call.
	before := s.snapshot()
	_, _ = cpu.PercentWithContext(ctx, 0, false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("system metrics sampling stopped", "output", s.output)
			return nil
		case <-ticker.C:
			row, after := s.sampleRow(ctx, before)
			before = after

			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
			writer.Flush()
			if err := writer.Error(); err != nil {
				return fmt.Errorf("failed to flush row: %w", err)
			}
		}
	}
}

// sampleRow builds one CSV row of current utilization and interval deltas.
func (s *Sampler) sampleRow(ctx context.Context, before ioSnapshot) ([]string, ioSnapshot) {
	const (
		mb = 1 << 20
		gb = 1 << 30
	)

	var cpuPercent float64
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	} else if err != nil {
		s.logger.Warn("cpu sampling failed", "error", err)
	}

	var memTotal, memAvailable, memPercent float64
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		memTotal = float64(vm.Total) / gb
		memAvailable = float64(vm.Available) / gb
		memPercent = vm.UsedPercent
	} else {
		s.logger.Warn("memory sampling failed", "error", err)
	}

	after := s.snapshot()

	row := []string{
		time.Now().Format(time.RFC3339),
		formatFloat(cpuPercent),
		formatFloat(memTotal),
		formatFloat(memAvailable),
		formatFloat(memPercent),
		formatFloat(float64(delta(after.diskReadBytes, before.diskReadBytes)) / mb),
		formatFloat(float64(delta(after.diskWriteBytes, before.diskWriteBytes)) / mb),
		strconv.FormatUint(delta(after.diskReadCount, before.diskReadCount), 10),
		strconv.FormatUint(delta(after.diskWriteCount, before.diskWriteCount), 10),
		formatFloat(float64(delta(after.netSentBytes, before.netSentBytes)) / mb),
		formatFloat(float64(delta(after.netRecvBytes, before.netRecvBytes)) / mb),
	}

	return row, after
}

// delta returns after-before, clamped at zero so a failed counter read or a
// counter reset never produces a wrapped value.
func delta(after, before uint64) uint64 {
	if after < before {
		return 0
	}

	return after - before
}

// snapshot reads the cumulative disk and network counters, summed across
// devices. Read failures leave the affected counters at zero.
func (s *Sampler) snapshot() ioSnapshot {
	var snap ioSnapshot

	if counters, err := disk.IOCounters(); err == nil {
		for _, c := range counters {
			snap.diskReadBytes += c.ReadBytes
			snap.diskWriteBytes += c.WriteBytes
			snap.diskReadCount += c.ReadCount
			snap.diskWriteCount += c.WriteCount
		}
	} else {
		s.logger.Warn("disk counter read failed", "error", err)
	}

	if counters, err := gnet.IOCounters(false); err == nil && len(counters) > 0 {
		snap.netSentBytes = counters[0].BytesSent
		snap.netRecvBytes = counters[0].BytesRecv
	} else if err != nil {
		s.logger.Warn("network counter read failed", "error", err)
	}

	return snap
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
