package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	api "github.com/oshokin/breathe-tracking/internal/api/grpc/incident"
	httpapi "github.com/oshokin/breathe-tracking/internal/api/http"
	"github.com/oshokin/breathe-tracking/internal/config"
	"github.com/oshokin/breathe-tracking/internal/logger"
	"github.com/oshokin/breathe-tracking/internal/observability/metrics"
	repository "github.com/oshokin/breathe-tracking/internal/repository/incident"
	"github.com/oshokin/breathe-tracking/internal/service/incidents"
	"github.com/oshokin/breathe-tracking/internal/version"
)

// Options controls the incident-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// StateFile overrides the JSON file of the incident store.
	StateFile string
	// DatabaseURL overrides the PostgreSQL connection string.
	DatabaseURL string
	// MetricsAddress enables the health and metrics HTTP endpoint when set.
	MetricsAddress string
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// shutdownTimeout bounds the HTTP drain on exit.
const shutdownTimeout = 5 * time.Second

// Run starts the gRPC server and blocks until context is canceled or server stops.
// Loads configuration first, then determines listen address from config or override.
//
//nolint:funlen // Linear start-up sequence reads best in one place.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "incident-server")
	ctx = logger.WithKV(ctx, version.Fields()...)

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	applyLogLevel(settings.LogLevel)

	if opts.StateFile != "" {
		settings.StateFile = opts.StateFile
	}

	if opts.DatabaseURL != "" {
		settings.DatabaseURL = opts.DatabaseURL
	}

	listenAddress, err := resolveListenAddress(settings.ServerAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	repo, err := openRepository(ctx, settings)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Repository close failed", "error", closeErr)
		}
	}()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	store := incidents.NewService(repo)

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(api.UnaryServerInterceptor(m)),
		grpc.ChainStreamInterceptor(api.StreamServerInterceptor(m)),
	)
	api.RegisterIncidentServiceServer(grpcServer, api.NewServer(store))

	var httpServer *httpapi.Server

	if opts.MetricsAddress != "" {
		httpServer = httpapi.NewServer(opts.MetricsAddress, httpapi.Deps{Gatherer: registry})

		go func() {
			if serveErr := httpServer.Start(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				logger.ErrorKV(ctx, "Metrics endpoint failed", "error", serveErr)
			}
		}()
	}

	logger.InfoKV(ctx, "Incident server listening",
		"listen_address", listenAddress,
		"storage", storageName(settings))

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")

		// Watch streams only end with their clients, so stop them after a grace period.
		timer := time.AfterFunc(shutdownTimeout, grpcServer.Stop)
		grpcServer.GracefulStop()
		timer.Stop()

		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			_ = httpServer.Shutdown(shutdownCtx)
		}

		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// openRepository picks PostgreSQL when a database URL is set and the JSON file otherwise.
func openRepository(ctx context.Context, settings *config.Config) (repository.Repository, error) {
	if settings.DatabaseURL == "" {
		return repository.NewFileRepository(settings.StateFile), nil
	}

	repo, err := repository.OpenPostgres(ctx, settings.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return repo, nil
}

func storageName(settings *config.Config) string {
	if settings.DatabaseURL != "" {
		return "postgres"
	}

	return settings.StateFile
}

func applyLogLevel(level string) {
	if parsed, ok := logger.ParseLogLevel(level); ok {
		logger.SetLevel(parsed)
	}
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
// Returns appropriate listen address (e.g., ":8080" for port-only binding).
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	return ":" + port, nil
}
