package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/oshokin/breathe-tracking/internal/domain/reading"
	"github.com/oshokin/breathe-tracking/internal/logger"
	"github.com/oshokin/breathe-tracking/internal/observability/metrics"
)

// Sink receives the readings and the connection state of the sensor.
type Sink interface {
	HandleReadings(ctx context.Context, batch []reading.Reading) error
	SetConnection(ctx context.Context, connected bool, lastSeen time.Time) error
}

// messageReader is the part of kafka-go's Reader the feed uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Reader.
type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	SensorID string
	// DisconnectAfter is the silence after which the sensor counts as disconnected.
	DisconnectAfter time.Duration
}

var (
	errNoBrokers = errors.New("kafka brokers are required")
	errNoSensor  = errors.New("sensor id is required")
)

// Option configures a Reader.
type Option func(*Reader)

// WithClock sets the clock of the disconnect watchdog.
func WithClock(c clockwork.Clock) Option {
	return func(r *Reader) {
		r.clock = c
	}
}

// WithMetrics sets the metrics the reader reports to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reader) {
		r.metrics = m
	}
}

// Reader consumes sensor samples and feeds them to a Sink.
type Reader struct {
	reader          messageReader
	sink            Sink
	sensorID        string
	disconnectAfter time.Duration
	clock           clockwork.Clock
	metrics         *metrics.Metrics
}

// NewReader creates a consumer-group reader for cfg.
func NewReader(cfg Config, sink Sink, opts ...Option) (*Reader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errNoBrokers
	}

	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafkago.LastOffset,
	})

	return newReader(r, cfg, sink, opts...)
}

func newReader(mr messageReader, cfg Config, sink Sink, opts ...Option) (*Reader, error) {
	if cfg.SensorID == "" {
		return nil, errNoSensor
	}

	r := &Reader{
		reader:          mr,
		sink:            sink,
		sensorID:        cfg.SensorID,
		disconnectAfter: cfg.DisconnectAfter,
		clock:           clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.metrics == nil {
		r.metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}

	return r, nil
}

// Close closes the underlying Kafka reader.
func (r *Reader) Close() error {
	return r.reader.Close()
}

// Run consumes messages until ctx is done or the reader is closed.
func (r *Reader) Run(ctx context.Context) error {
	ctx = logger.WithKV(ctx, "sensor_id", r.sensorID)

	seen := make(chan time.Time, 1)
	watchdogDone := make(chan struct{})

	watchCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		<-watchdogDone
	}()

	go func() {
		defer close(watchdogDone)

		r.watchdog(watchCtx, seen)
	}()

	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}

			r.metrics.FeedErrors.Inc()

			return fmt.Errorf("failed to fetch sensor message: %w", err)
		}

		r.handle(ctx, msg, seen)

		if err = r.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			logger.WarnKV(ctx, "Commit failed", "offset", msg.Offset, "error", err)
		}
	}
}

func (r *Reader) handle(ctx context.Context, msg kafkago.Message, seen chan time.Time) {
	sample, err := decodeMessage(msg)
	if err != nil {
		r.metrics.FeedErrors.Inc()
		logger.WarnKV(ctx, "Sensor message skipped", "error", err)

		return
	}

	if sample.SensorID != r.sensorID {
		return
	}

	readings := sample.Readings(r.clock.Now())

	if err = r.sink.HandleReadings(ctx, readings); err != nil {
		r.metrics.FeedErrors.Inc()
		logger.WarnKV(ctx, "Sensor readings rejected", "offset", msg.Offset, "error", err)

		return
	}

	observedAt := sample.ObservedAt
	if observedAt.IsZero() {
		observedAt = r.clock.Now()
	}

	// Keep only the latest timestamp when the watchdog lags behind.
	select {
	case <-seen:
	default:
	}

	seen <- observedAt
}

// watchdog reports the connection state: connected on every sample,
// disconnected after disconnectAfter without one.
func (r *Reader) watchdog(ctx context.Context, seen <-chan time.Time) {
	if r.disconnectAfter <= 0 {
		return
	}

	timer := r.clock.NewTimer(r.disconnectAfter)
	defer timer.Stop()

	var (
		lastSeen     time.Time
		disconnected bool
	)

	for {
		select {
		case <-ctx.Done():
			return
		case at := <-seen:
			lastSeen = at
			disconnected = false

			timer.Reset(r.disconnectAfter)

			r.setConnection(ctx, true, at)
		case <-timer.Chan():
			if disconnected {
				continue
			}

			disconnected = true

			logger.WarnKV(ctx, "Sensor went silent", "after", r.disconnectAfter)
			r.setConnection(ctx, false, lastSeen)
		}
	}
}

func (r *Reader) setConnection(ctx context.Context, connected bool, lastSeen time.Time) {
	if err := r.sink.SetConnection(ctx, connected, lastSeen); err != nil && ctx.Err() == nil {
		logger.WarnKV(ctx, "Connection state not published", "error", err)
	}
}
