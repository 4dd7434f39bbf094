package tracker

import (
	"context"

	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/logger"
)

// State is the state of the tracker's single watch.
type State int

const (
	// Unwatched means no incident is being watched.
	Unwatched State = iota
	// Watching means a subscription is live and the incident is not resolved yet.
	Watching
	// ResolvedHandled is terminal for the watched incident.
	ResolvedHandled
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Unwatched:
		return "UNWATCHED"
	case Watching:
		return "WATCHING"
	case ResolvedHandled:
		return "RESOLVED_HANDLED"
	default:
		return "UNKNOWN"
	}
}

// Poster hands a function over to the owner goroutine.
type Poster interface {
	Post(fn func()) bool
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(fn func()) bool

// Post implements Poster.
func (f PosterFunc) Post(fn func()) bool {
	return f(fn)
}

// ErrorHandler receives recoverable subscription errors on the owner goroutine.
type ErrorHandler func(ctx context.Context, err *SubscriptionError)

type options struct {
	poster  Poster
	onError ErrorHandler
}

// Option configures a Tracker or a Feed.
type Option func(*options)

// WithPoster sets how push deliveries reach the owner goroutine.
// Without it deliveries run on the store's goroutine.
func WithPoster(p Poster) Option {
	return func(o *options) {
		o.poster = p
	}
}

// WithErrorHandler sets the receiver of subscription errors.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) {
		o.onError = h
	}
}

func newOptions(opts []Option) options {
	o := options{
		poster: PosterFunc(func(fn func()) bool {
			fn()

			return true
		}),
		onError: func(context.Context, *SubscriptionError) {},
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// Tracker watches one incident document at a time.
type Tracker struct {
	source      incident.Watcher
	resolutions *Resolutions
	opts        options

	incidentID string
	state      State
	sub        incident.Subscription
	// generation changes on every start and cancel; deliveries from older generations are dropped.
	generation uint64
}

// New creates a tracker in the Unwatched state.
func New(source incident.Watcher, resolutions *Resolutions, opts ...Option) *Tracker {
	return &Tracker{
		source:      source,
		resolutions: resolutions,
		opts:        newOptions(opts),
	}
}

// State returns the current state.
func (t *Tracker) State() State {
	return t.state
}

// IncidentID returns the id of the current or last watched incident.
func (t *Tracker) IncidentID() string {
	return t.incidentID
}

// StartWatch begins watching id, cancelling any watch of another incident first.
// Watching an incident whose resolution was already handled goes straight to ResolvedHandled.
func (t *Tracker) StartWatch(ctx context.Context, id string) error {
	if t.state == Watching && t.incidentID == id {
		return nil
	}

	t.CancelWatch(ctx)

	t.incidentID = id

	if t.resolutions.Handled(id) {
		t.state = ResolvedHandled

		return nil
	}

	t.generation++
	generation := t.generation
	t.state = Watching

	ctx = logger.WithKV(ctx, "incident_id", id)

	sub, err := t.source.WatchIncident(ctx, id, func(u incident.Update) {
		t.opts.poster.Post(func() {
			t.deliver(ctx, generation, u)
		})
	})
	if err != nil {
		t.generation++
		t.state = Unwatched

		return &SubscriptionError{IncidentID: id, Err: err}
	}

	// A synchronous delivery may already have resolved or cancelled the watch.
	if t.generation != generation || t.state != Watching {
		sub.Cancel()

		return nil
	}

	t.sub = sub

	logger.InfoKV(ctx, "Watch started")

	return nil
}

// CancelWatch stops an active watch without emitting any effect.
func (t *Tracker) CancelWatch(ctx context.Context) {
	if t.state != Watching {
		return
	}

	t.release()
	t.state = Unwatched

	logger.InfoKV(ctx, "Watch cancelled", "incident_id", t.incidentID)
}

func (t *Tracker) release() {
	t.generation++

	if t.sub != nil {
		t.sub.Cancel()
		t.sub = nil
	}
}

func (t *Tracker) deliver(ctx context.Context, generation uint64, u incident.Update) {
	if generation != t.generation || t.state != Watching {
		logger.DebugKV(ctx, "Stale incident update dropped")

		return
	}

	if u.Err != nil {
		subErr := &SubscriptionError{IncidentID: t.incidentID, Err: u.Err}

		logger.WarnKV(ctx, "Incident subscription failed", "error", u.Err)
		t.opts.onError(ctx, subErr)

		return
	}

	if u.Incident == nil || u.Incident.ID != t.incidentID || !u.Incident.Resolved() {
		return
	}

	t.state = ResolvedHandled
	t.resolutions.Resolve(ctx, u.Incident)
	t.release()
}
