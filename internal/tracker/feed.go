package tracker

import (
	"context"

	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/logger"
)

// Feed follows the incidents of a sensor list.
// An incident first seen PENDING is watched until the list shows it RESOLVED.
type Feed struct {
	resolutions *Resolutions
	sensorID    string
	opts        options

	pending map[string]struct{}
	closed  bool
}

// NewFeed creates a feed for the incident list of sensorID.
func NewFeed(sensorID string, resolutions *Resolutions, opts ...Option) *Feed {
	return &Feed{
		resolutions: resolutions,
		sensorID:    sensorID,
		opts:        newOptions(opts),
		pending:     make(map[string]struct{}),
	}
}

// Deliver returns a push callback that hands list updates to Observe through the poster.
func (f *Feed) Deliver(ctx context.Context, fn func([]*incident.Incident)) func(incident.ListUpdate) {
	return func(u incident.ListUpdate) {
		f.opts.poster.Post(func() {
			if f.closed {
				return
			}

			if u.Err != nil {
				logger.WarnKV(ctx, "Incident list subscription failed", "sensor_id", f.sensorID, "error", u.Err)
				f.opts.onError(ctx, &SubscriptionError{SensorID: f.sensorID, Err: u.Err})

				return
			}

			f.Observe(ctx, u.Incidents)

			if fn != nil {
				fn(u.Incidents)
			}
		})
	}
}

// Observe processes one snapshot of the list and returns the incidents whose resolution it handled.
func (f *Feed) Observe(ctx context.Context, list []*incident.Incident) []*incident.Incident {
	if f.closed {
		return nil
	}

	var resolved []*incident.Incident

	for _, inc := range list {
		if inc == nil {
			continue
		}

		if !inc.Resolved() {
			if _, ok := f.pending[inc.ID]; !ok && !f.resolutions.Handled(inc.ID) {
				f.pending[inc.ID] = struct{}{}
				logger.DebugKV(ctx, "Pending incident tracked", "incident_id", inc.ID, "sensor_id", f.sensorID)
			}

			continue
		}

		if _, ok := f.pending[inc.ID]; !ok {
			continue
		}

		delete(f.pending, inc.ID)

		if f.resolutions.Resolve(ctx, inc) {
			resolved = append(resolved, inc)
		}
	}

	return resolved
}

// Pending returns the number of incidents the feed waits on.
func (f *Feed) Pending() int {
	return len(f.pending)
}

// Close drops every pending incident; later deliveries are ignored.
func (f *Feed) Close() {
	f.closed = true
	clear(f.pending)
}
