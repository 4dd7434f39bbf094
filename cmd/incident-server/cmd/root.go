package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/breathe-tracking/internal/config"
	"github.com/oshokin/breathe-tracking/internal/service/server"
	"github.com/oshokin/breathe-tracking/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// stateFile where incidents are persisted without a database.
	stateFile string
	// databaseURL selects the PostgreSQL repository.
	databaseURL string
	// metricsAddress serves health and Prometheus metrics when set.
	metricsAddress string

	// rootCmd represents the base command for running the incident store.
	rootCmd = &cobra.Command{
		Use:   "incident-server [listen-address]",
		Short: "Run the incident store gRPC server.",
		Long: `Starts the gRPC incident store used by breathe-monitor and incident-report.

Incidents are created PENDING, resolved by an administrator and pushed to every
subscriber of the incident or of its sensor. Only the port from ServerAddress config
is used for listening unless a listen address is given (e.g., :9090, 0.0.0.0:7001).
Incidents are persisted to PostgreSQL when a database URL is configured, otherwise to a JSON file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			return server.Run(ctx, &server.Options{
				ConfigPath:     configPath,
				ListenAddress:  listenAddress,
				StateFile:      stateFile,
				DatabaseURL:    databaseURL,
				MetricsAddress: metricsAddress,
			})
		},
	}
)

// Execute runs the incident-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&stateFile, "state-file", "s", "", "path to persist incidents without a database")
	rootCmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	rootCmd.Flags().StringVar(&metricsAddress, "metrics-addr", "", "address of the health and metrics endpoint")
}
