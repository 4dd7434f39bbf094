package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oshokin/breathe-tracking/internal/alerts"
	"github.com/oshokin/breathe-tracking/internal/dispatch"
	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/domain/reading"
	"github.com/oshokin/breathe-tracking/internal/logger"
	"github.com/oshokin/breathe-tracking/internal/notify"
	"github.com/oshokin/breathe-tracking/internal/observability/metrics"
	"github.com/oshokin/breathe-tracking/internal/session"
	"github.com/oshokin/breathe-tracking/internal/threshold"
	"github.com/oshokin/breathe-tracking/internal/tracker"
)

const (
	// writerName owns every channel the engine publishes.
	writerName = "dashboard"

	// exposureWindow is the number of recent values summarized per metric.
	exposureWindow = 10

	defaultListLimit        = 30
	defaultPendingDisplay   = 4
	defaultSubmittedHistory = 4
)

var (
	errNilStore      = errors.New("incident store is required")
	errNilSession    = errors.New("session store is required")
	errNilEvaluator  = errors.New("threshold evaluator is required")
	errNilAggregator = errors.New("alert aggregator is required")
	errEmptySensorID = errors.New("sensor id is required")
)

// Deps are the collaborators of an Engine.
type Deps struct {
	Store      incident.Store
	Session    *session.Store
	Evaluator  *threshold.Evaluator
	Aggregator *alerts.Aggregator
	// Notifier delivers report and resolution notifications. Optional.
	Notifier notify.Notifier
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Clock is optional and defaults to the real clock.
	Clock clockwork.Clock
}

// Options configure an Engine.
type Options struct {
	SensorID string
	Location string
	// AdminEmail receives report and resolution emails; empty disables them.
	AdminEmail string
	// ListLimit bounds the sensor incident subscription.
	ListLimit int
	// PendingDisplay bounds the published pending incident summaries.
	PendingDisplay int
	// SubmittedHistory bounds the locally submitted incident history.
	SubmittedHistory int
}

// Engine is the session state machine of one sensor.
type Engine struct {
	deps  Deps
	opts  Options
	queue *dispatch.Queue

	// Owned by the Run goroutine.
	writers     map[string]*session.Writer
	resolutions *tracker.Resolutions
	tracker     *tracker.Tracker
	feed        *tracker.Feed
	feedSub     incident.Subscription
	lock        Lock
	connected   bool
	submitted   []incident.Summary
	latest      map[reading.MetricKind]reading.Reading
	series      map[reading.MetricKind][]float64
}

// New creates an engine. Call Run to start processing.
func New(deps Deps, opts Options) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, errNilStore
	case deps.Session == nil:
		return nil, errNilSession
	case deps.Evaluator == nil:
		return nil, errNilEvaluator
	case deps.Aggregator == nil:
		return nil, errNilAggregator
	case opts.SensorID == "":
		return nil, errEmptySensorID
	}

	if deps.Notifier == nil {
		deps.Notifier = notify.Multi(nil)
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}

	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	if opts.ListLimit <= 0 {
		opts.ListLimit = defaultListLimit
	}

	if opts.PendingDisplay <= 0 {
		opts.PendingDisplay = defaultPendingDisplay
	}

	if opts.SubmittedHistory <= 0 {
		opts.SubmittedHistory = defaultSubmittedHistory
	}

	e := &Engine{
		deps:   deps,
		opts:   opts,
		queue:  dispatch.New(),
		latest: make(map[reading.MetricKind]reading.Reading),
		series: make(map[reading.MetricKind][]float64),
	}

	if err := e.claim(); err != nil {
		return nil, err
	}

	e.resolutions = tracker.NewResolutions(e)
	e.tracker = tracker.New(deps.Store, e.resolutions,
		tracker.WithPoster(e.queue),
		tracker.WithErrorHandler(e.onSubscriptionError))

	return e, nil
}

// claim takes the writer of every channel the engine publishes.
func (e *Engine) claim() error {
	names := []string{
		session.ChannelAlerts,
		session.ChannelConnectionStatus,
		session.ChannelLastSeen,
		session.ChannelIncidentSummaries,
		session.ChannelIncidentStatus,
		session.ChannelSubmittedIncidents,
		session.ChannelExposure,
		session.ChannelErrors,
	}

	for _, kind := range reading.Kinds() {
		names = append(names, kind.Channel())
	}

	writers := make(map[string]*session.Writer, len(names))

	for _, name := range names {
		w, err := e.deps.Session.Claim(name, writerName)
		if err != nil {
			return fmt.Errorf("failed to claim %s: %w", name, err)
		}

		writers[name] = w
	}

	e.writers = writers

	return nil
}

func (e *Engine) publish(channel string, data any) {
	if w, ok := e.writers[channel]; ok {
		w.Publish(data)
	}
}

// Run processes events until ctx is done or the engine is closed.
func (e *Engine) Run(ctx context.Context) error {
	err := e.queue.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// Close cancels every subscription and stops the engine.
// No callback runs on engine state after Close returns without error.
// Run must be active, otherwise Close waits for ctx.
func (e *Engine) Close(ctx context.Context) error {
	err := e.queue.Do(ctx, func() {
		e.teardown(ctx)
	})

	e.queue.Close()

	if err != nil && !errors.Is(err, dispatch.ErrClosed) {
		return fmt.Errorf("failed to close dashboard: %w", err)
	}

	return nil
}

// Reset ends the session: subscriptions are cancelled and every channel is cleared.
// The engine stays usable for a new session.
func (e *Engine) Reset(ctx context.Context) error {
	var claimErr error

	err := e.queue.Do(ctx, func() {
		e.teardown(ctx)

		e.deps.Session.Reset()
		e.deps.Aggregator.Reset()

		e.lock = Lock{}
		e.connected = false
		e.submitted = nil
		clear(e.latest)
		clear(e.series)

		claimErr = e.claim()

		logger.InfoKV(ctx, "Session reset", "sensor_id", e.opts.SensorID)
	})
	if err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}

	return claimErr
}

func (e *Engine) teardown(ctx context.Context) {
	e.tracker.CancelWatch(ctx)

	if e.feed != nil {
		e.feed.Close()
		e.feed = nil
	}

	if e.feedSub != nil {
		e.feedSub.Cancel()
		e.feedSub = nil
	}
}

// do runs fn on the owner goroutine and waits for it.
func (e *Engine) do(ctx context.Context, fn func()) error {
	if err := e.queue.Do(ctx, fn); err != nil {
		return fmt.Errorf("dashboard is not running: %w", err)
	}

	return nil
}
