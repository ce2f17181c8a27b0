// Command quadrant-agent samples host-level system metrics to a CSV file
// until interrupted. It is the built-in telemetry agent launched by run
// leaders, and can also run standalone.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/quadrant/internal/logging"
	"github.com/arloliu/quadrant/telemetry"
)

func main() {
	var (
		output   string
		interval float64
	)

	cmd := &cobra.Command{
		Use:           "quadrant-agent",
		Short:         "Host system-metrics sampler",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sampler := telemetry.New(output, time.Duration(interval*float64(time.Second)),
				telemetry.WithLogger(logging.NewSlogDefault()))

			return sampler.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "CSV output file path")
	cmd.Flags().Float64Var(&interval, "interval", 3, "sampling interval in seconds")
	_ = cmd.MarkFlagRequired("output")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
