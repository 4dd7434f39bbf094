package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/breathe-tracking/internal/config"
	"github.com/oshokin/breathe-tracking/internal/service/reporter"
	"github.com/oshokin/breathe-tracking/internal/version"
)

var (
	// shared holds the flags shared by every subcommand.
	shared reporter.Options

	submitOptions reporter.SubmitOptions
	listOptions   reporter.ListOptions

	// rootCmd groups the incident report operations.
	rootCmd = &cobra.Command{
		Use:   "incident-report",
		Short: "File, resolve and list sensor incidents.",
		Long: `Talks to the incident server to file problem reports for a sensor,
resolve them as an administrator and list the incidents of a sensor.`,
	}

	submitCmd = &cobra.Command{
		Use:   "submit",
		Short: "File an incident report.",
		Long: `Files a PENDING incident signed with the current user and host.
With --wait the command blocks until an administrator resolves the incident.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			submitOptions.Options = shared

			return reporter.Submit(ctx, &submitOptions)
		},
	}

	resolveCmd = &cobra.Command{
		Use:   "resolve <incident-id>",
		Short: "Mark an incident as resolved.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return reporter.Resolve(ctx, &reporter.ResolveOptions{Options: shared, ID: args[0]})
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List the incidents of a sensor, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			listOptions.Options = shared

			return reporter.List(ctx, &listOptions)
		},
	}
)

// Execute runs the incident-report CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(submitCmd, resolveCmd, listCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&shared.ConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVarP(&shared.ServerAddress, "server", "s", "", "incident server address, overrides the configuration")

	submitCmd.Flags().StringVar(&submitOptions.SensorID, "sensor", "", "sensor id, defaults to the configured sensor")
	submitCmd.Flags().StringVar(&submitOptions.Location, "location", "", "sensor location, defaults to the configured one")
	submitCmd.Flags().StringVarP(&submitOptions.Title, "title", "t", "", "report title")
	submitCmd.Flags().StringVarP(&submitOptions.Message, "message", "m", "", "report message")
	submitCmd.Flags().BoolVar(&submitOptions.Disconnected, "disconnected", false, "prefill a sensor disconnection report")
	submitCmd.Flags().StringVar(&submitOptions.LastReading, "last-reading", "", "last reading quoted in a disconnection report")
	submitCmd.Flags().BoolVarP(&submitOptions.Wait, "wait", "w", false, "wait until the incident is resolved")

	listCmd.Flags().StringVar(&listOptions.SensorID, "sensor", "", "sensor id, defaults to the configured sensor")
	listCmd.Flags().IntVarP(&listOptions.Limit, "limit", "n", 0, "maximum number of incidents, defaults to the configured list limit")
	listCmd.Flags().BoolVar(&listOptions.PendingOnly, "pending", false, "hide resolved incidents")
}
