package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/domain/reading"
	"github.com/oshokin/breathe-tracking/internal/logger"
	"github.com/oshokin/breathe-tracking/internal/session"
	"github.com/oshokin/breathe-tracking/internal/threshold"
)

// Connection states published on the connection status channel.
const (
	Connected    = "CONNECTED"
	Disconnected = "DISCONNECTED"
)

// Gauge is the published value of one metric channel.
type Gauge struct {
	Kind       reading.MetricKind `json:"kind"`
	Value      float64            `json:"value"`
	Unit       string             `json:"unit"`
	Level      string             `json:"level"`
	ObservedAt time.Time          `json:"observed_at"`
	// SignalBars is set for SIGNAL readings.
	SignalBars int `json:"signal_bars,omitempty"`
	// Low is set for a BATTERY reading at or below the low mark.
	Low bool `json:"low,omitempty"`
}

// HandleReadings classifies a batch of readings, publishes them and folds
// the resulting alerts into the history. An empty batch changes nothing.
func (e *Engine) HandleReadings(ctx context.Context, batch []reading.Reading) error {
	if len(batch) == 0 {
		return nil
	}

	var handleErr error

	err := e.do(ctx, func() {
		handleErr = e.handleReadings(ctx, batch)
	})
	if err != nil {
		return err
	}

	return handleErr
}

func (e *Engine) handleReadings(ctx context.Context, batch []reading.Reading) error {
	e.deps.Metrics.ReadingsConsumed.Add(float64(len(batch)))

	// Classify everything first so an unknown metric rejects the whole batch.
	classified := make([]threshold.Classification, len(batch))

	var messages []string

	for i, r := range batch {
		c, err := e.deps.Evaluator.Classify(r.Kind, r.Value)
		if err != nil {
			return fmt.Errorf("failed to classify %s: %w", r.Kind, err)
		}

		classified[i] = c

		if c.Message != "" {
			messages = append(messages, c.Message)
		}
	}

	for i, r := range batch {
		e.latest[r.Kind] = r
		e.record(r.Kind, r.Value)
		e.publish(r.Kind.Channel(), e.gauge(r, classified[i]))
	}

	e.publishExposure()

	if len(messages) == 0 {
		return nil
	}

	fresh := e.deps.Aggregator.Ingest(ctx, messages)
	history := e.deps.Aggregator.History()

	e.deps.Metrics.AlertsIngested.Add(float64(len(messages)))
	e.deps.Metrics.AlertsNew.Add(float64(len(fresh)))
	e.deps.Metrics.AlertHistorySize.Set(float64(len(history)))

	e.publish(session.ChannelAlerts, history)

	return nil
}

func (e *Engine) gauge(r reading.Reading, c threshold.Classification) Gauge {
	g := Gauge{
		Kind:       r.Kind,
		Value:      r.Value,
		Level:      c.Level.String(),
		ObservedAt: r.ObservedAt,
	}

	if l, err := e.deps.Evaluator.Limits(r.Kind); err == nil {
		g.Unit = l.Unit
	}

	switch r.Kind {
	case reading.Signal:
		g.SignalBars = threshold.SignalBars(r.Value)
	case reading.Battery:
		g.Low = threshold.BatteryLow(r.Value)
	}

	return g
}

// record appends value to the series of kind, keeping the latest exposureWindow values.
func (e *Engine) record(kind reading.MetricKind, value float64) {
	series := append(e.series[kind], value)
	if len(series) > exposureWindow {
		series = series[len(series)-exposureWindow:]
	}

	e.series[kind] = series
}

func (e *Engine) publishExposure() {
	summaries := make(map[reading.MetricKind]threshold.ExposureSummary, len(e.series))

	for kind, values := range e.series {
		s, err := e.deps.Evaluator.SummarizeSeries(kind, values)
		if err != nil {
			continue
		}

		summaries[kind] = s
	}

	e.publish(session.ChannelExposure, summaries)
}

// SetConnection publishes the connection state of the sensor.
// Losing the connection raises the disconnection overlay; regaining it lowers it.
func (e *Engine) SetConnection(ctx context.Context, connected bool, lastSeen time.Time) error {
	return e.do(ctx, func() {
		changed := connected != e.connected
		e.connected = connected

		e.deps.Metrics.SetConnected(connected)

		status := Disconnected
		if connected {
			status = Connected
		}

		e.publish(session.ChannelConnectionStatus, status)

		if !lastSeen.IsZero() {
			e.publish(session.ChannelLastSeen, lastSeen)
		}

		if e.lock.Overlay != !connected {
			e.lock.Overlay = !connected
			e.publish(session.ChannelIncidentStatus, e.lock)
		}

		if changed {
			logger.InfoKV(ctx, "Sensor connection changed",
				"sensor_id", e.opts.SensorID,
				"status", status)
		}
	})
}

// DisconnectionDraft prefills a report about the sensor going silent,
// naming the latest known readings.
func (e *Engine) DisconnectionDraft(ctx context.Context) (incident.Draft, error) {
	var draft incident.Draft

	err := e.do(ctx, func() {
		draft = incident.DisconnectionDraft(e.opts.SensorID, e.opts.Location, e.lastReadings())
	})

	return draft, err
}

// lastReadings renders the latest reading of every metric in a stable order.
func (e *Engine) lastReadings() string {
	parts := make([]string, 0, len(e.latest))

	for _, kind := range reading.Kinds() {
		r, ok := e.latest[kind]
		if !ok {
			continue
		}

		unit := ""
		if l, err := e.deps.Evaluator.Limits(kind); err == nil {
			unit = " " + l.Unit
		}

		parts = append(parts, fmt.Sprintf("%s %g%s", kind.DisplayName(), r.Value, unit))
	}

	return strings.Join(parts, ", ")
}
