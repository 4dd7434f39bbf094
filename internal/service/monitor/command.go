package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/oshokin/breathe-tracking/internal/alerts"
	httpapi "github.com/oshokin/breathe-tracking/internal/api/http"
	"github.com/oshokin/breathe-tracking/internal/config"
	"github.com/oshokin/breathe-tracking/internal/dashboard"
	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/feed/kafka"
	"github.com/oshokin/breathe-tracking/internal/logger"
	"github.com/oshokin/breathe-tracking/internal/notify"
	"github.com/oshokin/breathe-tracking/internal/observability/metrics"
	"github.com/oshokin/breathe-tracking/internal/service/common"
	"github.com/oshokin/breathe-tracking/internal/session"
	"github.com/oshokin/breathe-tracking/internal/threshold"
	"github.com/oshokin/breathe-tracking/internal/version"
)

// Options controls the monitor process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional incident server address override.
	ServerAddress string
	// SensorID overrides the configured sensor.
	SensorID string
	// HTTPAddress overrides the configured HTTP listen address.
	HTTPAddress string
}

// shutdownTimeout bounds the teardown of the session and the HTTP server.
const shutdownTimeout = 5 * time.Second

var errNoSensor = errors.New("no sensor id configured")

// Run monitors one sensor until ctx is canceled.
//
//nolint:funlen // Linear start-up and teardown sequence reads best in one place.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "breathe-monitor")
	ctx = logger.WithKV(ctx, version.Fields()...)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	applyOverrides(cfg, opts)

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}

	if cfg.Sensor.ID == "" {
		return errNoSensor
	}

	ctx = logger.WithKV(ctx, "sensor_id", cfg.Sensor.ID)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	client, err := common.Dial(ctx, cfg.ServerAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("dial incident server: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	notifier, err := buildNotifier(cfg, m)
	if err != nil {
		return err
	}

	defer notifier.Wait()

	sessionStore := session.New()

	engine, err := newEngine(cfg, client, sessionStore, notifier, m)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	// The engine outlives ctx so Close can still tear the session down.
	engineCtx, stopEngine := context.WithCancel(context.WithoutCancel(ctx))
	defer stopEngine()

	wg.Go(func() {
		if runErr := engine.Run(engineCtx); runErr != nil {
			logger.ErrorKV(ctx, "Dashboard stopped", "error", runErr)
		}
	})

	if err = engine.WatchSensorIncidents(ctx); err != nil {
		// The feed stays usable without the list; the error is on the errors channel.
		logger.WarnKV(ctx, "Sensor incident list unavailable", "error", err)
	}

	reader, err := startFeed(ctx, cfg, engine, m, &wg)
	if err != nil {
		return err
	}

	httpServer := httpapi.NewServer(cfg.HTTPAddress, httpapi.Deps{
		Reporter: engine,
		Session:  sessionStore,
		Gatherer: registry,
	})

	httpDone := make(chan error, 1)

	wg.Go(func() {
		if serveErr := httpServer.Start(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpDone <- serveErr
		}
	})

	logger.InfoKV(ctx, "Monitoring sensor",
		"server_address", cfg.ServerAddress,
		"http_address", cfg.HTTPAddress,
		"policy", cfg.Alerts.Policy)

	var runErr error

	select {
	case <-ctx.Done():
	case runErr = <-httpDone:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if reader != nil {
		_ = reader.Close()
	}

	if err = engine.Close(shutdownCtx); err != nil {
		logger.WarnKV(ctx, "Session teardown incomplete", "error", err)
	}

	stopEngine()

	_ = httpServer.Shutdown(shutdownCtx)

	wg.Wait()

	logger.Info(ctx, "Monitor stopped")

	return runErr
}

func applyOverrides(cfg *config.Config, opts *Options) {
	if opts.ServerAddress != "" {
		cfg.ServerAddress = opts.ServerAddress
	}

	if opts.SensorID != "" {
		cfg.Sensor.ID = opts.SensorID
	}

	if opts.HTTPAddress != "" {
		cfg.HTTPAddress = opts.HTTPAddress
	}
}

// newEngine wires the threshold table, the alert policy and the incident store into a session.
func newEngine(
	cfg *config.Config,
	store incident.Store,
	sessionStore *session.Store,
	notifier notify.Notifier,
	m *metrics.Metrics,
) (*dashboard.Engine, error) {
	table, err := cfg.ThresholdTable()
	if err != nil {
		return nil, err
	}

	aggregator, err := alerts.New(alerts.Options{
		Policy:   cfg.AlertPolicy(),
		Cap:      cfg.Alerts.HistoryCap,
		Notifier: alertNotifier(notifier),
	})
	if err != nil {
		return nil, fmt.Errorf("create alert history: %w", err)
	}

	engine, err := dashboard.New(dashboard.Deps{
		Store:      store,
		Session:    sessionStore,
		Evaluator:  threshold.NewEvaluator(table),
		Aggregator: aggregator,
		Notifier:   notifier,
		Metrics:    m,
	}, dashboard.Options{
		SensorID:         cfg.Sensor.ID,
		Location:         cfg.Sensor.Location,
		AdminEmail:       cfg.Notifications.AdminEmail,
		ListLimit:        cfg.Incidents.ListLimit,
		PendingDisplay:   cfg.Incidents.PendingDisplay,
		SubmittedHistory: cfg.Incidents.SubmittedHistory,
	})
	if err != nil {
		return nil, fmt.Errorf("create dashboard: %w", err)
	}

	return engine, nil
}

// alertNotifier raises a local notification for every new alert.
func alertNotifier(n notify.Notifier) alerts.Notifier {
	return alerts.NotifierFunc(func(ctx context.Context, message string) {
		n.Notify(ctx, notify.Message{Channel: notify.Local, Title: "Air quality alert", Body: message})
	})
}

// buildNotifier routes LOCAL to the log and EMAIL to the mail relay, off the caller's goroutine.
func buildNotifier(cfg *config.Config, m *metrics.Metrics) (*notify.Async, error) {
	router := notify.NewRouter(func(channel notify.Channel, err error) {
		m.ObserveNotification(string(channel), err)
	})
	router.Register(notify.Local, notify.LocalSink{})

	if cfg.Notifications.MailRelayURL != "" {
		sink, err := notify.NewWebhookSink(cfg.Notifications.MailRelayURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create mail relay sink: %w", err)
		}

		router.Register(notify.Email, sink)
	}

	return notify.NewAsync(router, cfg.Timeout), nil
}

// startFeed starts the Kafka reader when brokers are configured.
func startFeed(
	ctx context.Context,
	cfg *config.Config,
	engine *dashboard.Engine,
	m *metrics.Metrics,
	wg *sync.WaitGroup,
) (*kafka.Reader, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Warn(ctx, "No Kafka brokers configured, the sensor feed is disabled")

		return nil, nil //nolint:nilnil // No feed is a valid configuration.
	}

	reader, err := kafka.NewReader(kafka.Config{
		Brokers:         cfg.Kafka.Brokers,
		Topic:           cfg.Kafka.Topic,
		GroupID:         cfg.Kafka.GroupID,
		SensorID:        cfg.Sensor.ID,
		DisconnectAfter: cfg.Kafka.DisconnectAfter,
	}, engine, kafka.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("create sensor feed: %w", err)
	}

	wg.Go(func() {
		if runErr := reader.Run(ctx); runErr != nil {
			logger.ErrorKV(ctx, "Sensor feed stopped", "error", runErr)
		}
	})

	return reader, nil
}
