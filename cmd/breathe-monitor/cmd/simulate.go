package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/breathe-tracking/internal/service/monitor"
)

var (
	simulateOptions monitor.SimulateOptions

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Publish simulated sensor readings to Kafka.",
		Long: `Publishes a slowly drifting random walk of readings for the configured sensor.
Useful to exercise a monitor without hardware. A fixed seed repeats the same walk.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			simulateOptions.ConfigPath = configPath
			simulateOptions.SensorID = sensorID

			return monitor.Simulate(ctx, &simulateOptions)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	simulateCmd.Flags().DurationVar(&simulateOptions.Interval, "interval", monitor.DefaultSimulateInterval, "pause between samples")
	simulateCmd.Flags().IntVar(&simulateOptions.Count, "count", 0, "number of samples, 0 runs until interrupted")
	simulateCmd.Flags().Uint64Var(&simulateOptions.Seed, "seed", 0, "random seed, 0 picks one")
}
