package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/logger"
	"github.com/oshokin/breathe-tracking/internal/notify"
	"github.com/oshokin/breathe-tracking/internal/session"
	"github.com/oshokin/breathe-tracking/internal/tracker"
)

// Lock is the published state of the disconnection overlay.
type Lock struct {
	// Overlay is raised while the sensor is disconnected.
	Overlay bool `json:"overlay"`
	// Reported is set once a report was submitted and stays until it is resolved.
	Reported bool `json:"reported"`
	// IncidentID is the reported incident.
	IncidentID string `json:"incident_id,omitempty"`
}

// ReportIncident submits draft to the incident store and starts watching the new incident.
// Blank sensor and location are filled from the engine options.
func (e *Engine) ReportIncident(ctx context.Context, draft incident.Draft) (*incident.Incident, error) {
	if strings.TrimSpace(draft.SensorID) == "" {
		draft.SensorID = e.opts.SensorID
	}

	if strings.TrimSpace(draft.Location) == "" {
		draft.Location = e.opts.Location
	}

	if err := draft.Validate(); err != nil {
		return nil, err
	}

	ctx = logger.WithKV(ctx, "sensor_id", draft.SensorID)

	if e.opts.AdminEmail != "" {
		msg, err := notify.ReportEmail(e.opts.AdminEmail, draft)
		if err != nil {
			logger.WarnKV(ctx, "Report email skipped", "error", err)
		} else {
			e.deps.Notifier.Notify(ctx, msg)
		}
	}

	// The store call may block on I/O, so it stays off the owner goroutine.
	created, err := e.deps.Store.Create(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to create incident: %w", err)
	}

	e.deps.Metrics.IncidentsReported.Inc()

	logger.InfoKV(ctx, "Incident reported", "incident_id", created.ID, "title", created.Title)

	var watchErr error

	err = e.do(ctx, func() {
		e.submitted = append([]incident.Summary{{
			ID:        created.ID,
			Title:     created.Title,
			CreatedAt: created.CreatedAt,
		}}, e.submitted...)
		if len(e.submitted) > e.opts.SubmittedHistory {
			e.submitted = e.submitted[:e.opts.SubmittedHistory]
		}

		e.publish(session.ChannelSubmittedIncidents, incident.Lines(e.submitted))

		e.lock.Reported = true
		e.lock.IncidentID = created.ID
		e.publish(session.ChannelIncidentStatus, e.lock)

		watchErr = e.startWatch(ctx, created.ID)
	})
	if err != nil {
		return created, err
	}

	return created, watchErr
}

func (e *Engine) startWatch(ctx context.Context, id string) error {
	err := e.tracker.StartWatch(ctx, id)
	if err != nil {
		var subErr *tracker.SubscriptionError
		if errors.As(err, &subErr) {
			e.onSubscriptionError(ctx, subErr)
		}

		return err
	}

	e.deps.Metrics.WatchesStarted.Inc()

	return nil
}

// WatchIncident starts watching one incident, replacing the current watch.
func (e *Engine) WatchIncident(ctx context.Context, id string) error {
	var watchErr error

	err := e.do(ctx, func() {
		watchErr = e.startWatch(ctx, id)
	})
	if err != nil {
		return err
	}

	return watchErr
}

// CancelWatch stops watching the current incident without any effect.
func (e *Engine) CancelWatch(ctx context.Context) error {
	return e.do(ctx, func() {
		e.tracker.CancelWatch(ctx)
	})
}

// TrackerState returns the state of the incident watch.
func (e *Engine) TrackerState(ctx context.Context) (tracker.State, error) {
	var state tracker.State

	err := e.do(ctx, func() {
		state = e.tracker.State()
	})

	return state, err
}

// WatchSensorIncidents subscribes to the incident list of the sensor.
// Pending incidents are published as summaries, and a pending incident that
// later shows up resolved has its resolution handled once.
// Calling it again while subscribed does nothing.
func (e *Engine) WatchSensorIncidents(ctx context.Context) error {
	var watchErr error

	err := e.do(ctx, func() {
		if e.feedSub != nil {
			return
		}

		ctx := logger.WithKV(ctx, "sensor_id", e.opts.SensorID)

		feed := tracker.NewFeed(e.opts.SensorID, e.resolutions,
			tracker.WithPoster(e.queue),
			tracker.WithErrorHandler(e.onSubscriptionError))
		e.feed = feed

		sub, err := e.deps.Store.WatchSensor(ctx, e.opts.SensorID, e.opts.ListLimit,
			feed.Deliver(ctx, e.publishSummaries))
		if err != nil {
			feed.Close()
			e.feed = nil

			subErr := &tracker.SubscriptionError{SensorID: e.opts.SensorID, Err: err}
			e.onSubscriptionError(ctx, subErr)
			watchErr = subErr

			return
		}

		e.feedSub = sub

		logger.InfoKV(ctx, "Sensor incidents watched", "limit", e.opts.ListLimit)
	})
	if err != nil {
		return err
	}

	return watchErr
}

func (e *Engine) publishSummaries(list []*incident.Incident) {
	summaries := incident.PendingSummaries(list, e.opts.PendingDisplay)
	e.publish(session.ChannelIncidentSummaries, incident.Lines(summaries))
}

// Unlock implements tracker.Effects.
func (e *Engine) Unlock(ctx context.Context, inc *incident.Incident) {
	if e.lock.Reported && e.lock.IncidentID != inc.ID {
		logger.DebugKV(ctx, "Resolution of another incident keeps the report lock",
			"incident_id", inc.ID,
			"reported_id", e.lock.IncidentID)

		return
	}

	e.lock = Lock{}
	e.publish(session.ChannelIncidentStatus, e.lock)
}

// NotifyResolution implements tracker.Effects.
func (e *Engine) NotifyResolution(ctx context.Context, inc *incident.Incident) {
	e.deps.Metrics.Resolutions.Inc()

	messages, err := notify.ResolutionMessages(e.opts.AdminEmail, inc)
	if err != nil {
		logger.WarnKV(ctx, "Resolution notification skipped", "incident_id", inc.ID, "error", err)

		return
	}

	for _, msg := range messages {
		e.deps.Notifier.Notify(ctx, msg)
	}
}

// onSubscriptionError publishes the failure and leaves every other channel untouched.
func (e *Engine) onSubscriptionError(_ context.Context, err *tracker.SubscriptionError) {
	scope := "incident"
	if err.SensorID != "" {
		scope = "sensor"
	}

	e.deps.Metrics.SubscriptionErrors.WithLabelValues(scope).Inc()
	e.publish(session.ChannelErrors, err.Error())
}
