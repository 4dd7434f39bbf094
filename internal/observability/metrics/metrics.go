// Package metrics holds the Prometheus instruments of breathe-tracking processes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "breathe"

// Metrics holds the Prometheus counters and gauges of a monitor or server process.
type Metrics struct {
	// Sensor feed.
	ReadingsConsumed prometheus.Counter
	FeedErrors       prometheus.Counter
	SensorConnected  prometheus.Gauge

	// Alert aggregation.
	AlertsIngested   prometheus.Counter
	AlertsNew        prometheus.Counter
	AlertHistorySize prometheus.Gauge

	// Incident tracking.
	WatchesStarted     prometheus.Counter
	Resolutions        prometheus.Counter
	SubscriptionErrors *prometheus.CounterVec // labels: scope={incident,sensor}
	IncidentsReported  prometheus.Counter

	// Notifications.
	Notifications *prometheus.CounterVec // labels: channel={LOCAL,EMAIL}, outcome={sent,failed}

	// Incident store server.
	StoreRequests *prometheus.CounterVec // labels: method, code
}

// NewMetrics creates all instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()

	reg.MustRegister(
		m.ReadingsConsumed,
		m.FeedErrors,
		m.SensorConnected,
		m.AlertsIngested,
		m.AlertsNew,
		m.AlertHistorySize,
		m.WatchesStarted,
		m.Resolutions,
		m.SubscriptionErrors,
		m.IncidentsReported,
		m.Notifications,
		m.StoreRequests,
	)

	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// ObserveNotification counts one delivery attempt.
func (m *Metrics) ObserveNotification(channel string, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}

	m.Notifications.WithLabelValues(channel, outcome).Inc()
}

// SetConnected flips the connection gauge.
func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.SensorConnected.Set(1)

		return
	}

	m.SensorConnected.Set(0)
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_consumed_total",
			Help:      "Total sensor readings read from the feed.",
		}),
		FeedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_errors_total",
			Help:      "Total feed messages that could not be read or decoded.",
		}),
		SensorConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_connected",
			Help:      "1 while the sensor keeps reporting, 0 after the disconnect timeout.",
		}),
		AlertsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_ingested_total",
			Help:      "Total alert messages handed to the aggregator.",
		}),
		AlertsNew: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_new_total",
			Help:      "Alert messages that were not in the history yet.",
		}),
		AlertHistorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_history_size",
			Help:      "Current number of entries in the alert history.",
		}),
		WatchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incident_watches_started_total",
			Help:      "Total incident document watches started.",
		}),
		Resolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incident_resolutions_total",
			Help:      "Incident resolutions handled, each counted once.",
		}),
		SubscriptionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_errors_total",
			Help:      "Remote subscription failures by scope.",
		}, []string{"scope"}),
		IncidentsReported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_reported_total",
			Help:      "Incident reports submitted from this session.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		StoreRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_requests_total",
			Help:      "Incident store gRPC requests by method and status code.",
		}, []string{"method", "code"}),
	}
}
