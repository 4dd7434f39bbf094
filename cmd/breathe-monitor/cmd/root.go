package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/breathe-tracking/internal/config"
	"github.com/oshokin/breathe-tracking/internal/service/monitor"
	"github.com/oshokin/breathe-tracking/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// sensorID overrides the configured sensor.
	sensorID string
	// httpAddress overrides the configured HTTP listen address.
	httpAddress string

	// rootCmd represents the base command for monitoring one sensor.
	rootCmd = &cobra.Command{
		Use:   "breathe-monitor [server-address]",
		Short: "Monitor a sensor's readings, alerts and incidents.",
		Long: `Consumes the sensor's readings from Kafka, evaluates them against the configured limits
and keeps a bounded alert history. Reports filed through the HTTP API are stored on the
incident server and watched until an administrator resolves them.

The session state, health and Prometheus metrics are served over HTTP.
Server address can be provided as argument or loaded from configuration file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var serverAddress string
			if len(args) > 0 {
				serverAddress = args[0]
			}

			return monitor.Run(ctx, &monitor.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				SensorID:      sensorID,
				HTTPAddress:   httpAddress,
			})
		},
	}
)

// Execute runs the breathe-monitor CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(simulateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&sensorID, "sensor", "", "sensor id, overrides the configuration")
	rootCmd.Flags().StringVar(&httpAddress, "http-addr", "", "HTTP listen address, overrides the configuration")
}
