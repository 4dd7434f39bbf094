package incident

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an incident id is unknown to the store.
var ErrNotFound = errors.New("incident not found")

// Subscription is a live push subscription. Cancel releases it and may be called more than once.
type Subscription interface {
	Cancel()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

// Cancel implements Subscription.
func (f SubscriptionFunc) Cancel() {
	f()
}

// Watcher subscribes to a single incident document.
// WatchIncident must not block on I/O: it registers fn and returns.
// fn may run on any goroutine, in the order the store emits changes.
type Watcher interface {
	WatchIncident(ctx context.Context, id string, fn func(Update)) (Subscription, error)
}

// SensorWatcher subscribes to the incidents of one sensor, newest first, at most limit of them.
type SensorWatcher interface {
	WatchSensor(ctx context.Context, sensorID string, limit int, fn func(ListUpdate)) (Subscription, error)
}

// Store is the remote incident store capability.
type Store interface {
	Watcher
	SensorWatcher

	// Create stores a new PENDING incident stamped with the store's time.
	Create(ctx context.Context, draft Draft) (*Incident, error)
	// Get returns one incident or ErrNotFound.
	Get(ctx context.Context, id string) (*Incident, error)
	// List returns the incidents of a sensor ordered by creation time, newest first.
	List(ctx context.Context, sensorID string, limit int) ([]*Incident, error)
	// Resolve moves an incident to RESOLVED. Resolving twice is not an error.
	Resolve(ctx context.Context, id string) (*Incident, error)
}
