package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oshokin/breathe-tracking/internal/logger"
)

// Record is one entry of the alert history.
// Two records are the same alert when their messages are equal.
type Record struct {
	Message     string
	GeneratedAt time.Time
}

// Notifier receives every previously unseen message under PolicyInsertNewOnly.
type Notifier interface {
	NotifyAlert(ctx context.Context, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, message string)

// NotifyAlert implements Notifier.
func (f NotifierFunc) NotifyAlert(ctx context.Context, message string) {
	f(ctx, message)
}

// Options configure an Aggregator.
type Options struct {
	// Policy defaults to PolicyReplaceMerge.
	Policy Policy
	// Cap defaults to Policy.DefaultCap().
	Cap int
	// Clock stamps GeneratedAt; defaults to the real clock.
	Clock clockwork.Clock
	// Notifier is used by PolicyInsertNewOnly and ignored otherwise.
	Notifier Notifier
}

var errInvalidCap = errors.New("alert history cap must be positive")

// Aggregator owns the alert history.
// Readers always observe a complete snapshot; writers are serialized.
type Aggregator struct {
	policy   Policy
	cap      int
	clock    clockwork.Clock
	notifier Notifier

	mu      sync.Mutex
	history atomic.Pointer[[]Record]
}

// New creates an Aggregator with an empty history.
func New(opts Options) (*Aggregator, error) {
	policy, err := ParsePolicy(string(opts.Policy))
	if err != nil {
		return nil, err
	}

	capacity := opts.Cap
	if capacity == 0 {
		capacity = policy.DefaultCap()
	}

	if capacity < 0 {
		return nil, fmt.Errorf("%w: got %d", errInvalidCap, capacity)
	}

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	a := &Aggregator{
		policy:   policy,
		cap:      capacity,
		clock:    clock,
		notifier: opts.Notifier,
	}
	a.history.Store(&[]Record{})

	return a, nil
}

// Policy returns the configured policy.
func (a *Aggregator) Policy() Policy {
	return a.policy
}

// Cap returns the configured history cap.
func (a *Aggregator) Cap() int {
	return a.cap
}

// Ingest folds a batch of freshly generated alerts into the history and
// returns the messages that were not in the history before, in batch order.
// An empty batch leaves the history untouched.
func (a *Aggregator) Ingest(ctx context.Context, batch []string) []string {
	if len(batch) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	current := *a.history.Load()
	now := a.clock.Now()

	var (
		next  []Record
		fresh []string
	)

	switch a.policy {
	case PolicyInsertNewOnly:
		next, fresh = insertNewOnly(current, batch, now, a.cap)
	default:
		next, fresh = replaceMerge(current, batch, now, a.cap)
	}

	mustHold(next, a.cap)
	a.history.Store(&next)

	logger.DebugKV(ctx, "Alerts ingested",
		"policy", a.policy,
		"batch", len(batch),
		"new", len(fresh),
		"history", len(next))

	if a.policy == PolicyInsertNewOnly && a.notifier != nil {
		for _, msg := range fresh {
			a.notifier.NotifyAlert(ctx, msg)
		}
	}

	return fresh
}

// History returns the messages of the current snapshot, most recent first.
func (a *Aggregator) History() []string {
	records := *a.history.Load()

	messages := make([]string, len(records))
	for i, r := range records {
		messages[i] = r.Message
	}

	return messages
}

// Records returns a copy of the current snapshot.
func (a *Aggregator) Records() []Record {
	records := *a.history.Load()

	return append([]Record(nil), records...)
}

// Reset clears the history.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history.Store(&[]Record{})
}

// replaceMerge puts the unique batch messages first, then the old history, and truncates.
func replaceMerge(current []Record, batch []string, now time.Time, capacity int) ([]Record, []string) {
	known := make(map[string]struct{}, len(current))
	for _, r := range current {
		known[r.Message] = struct{}{}
	}

	seen := make(map[string]struct{}, len(batch)+len(current))
	next := make([]Record, 0, min(capacity, len(batch)+len(current)))

	var fresh []string

	for _, msg := range batch {
		if _, dup := seen[msg]; dup {
			continue
		}

		seen[msg] = struct{}{}

		if _, ok := known[msg]; !ok {
			fresh = append(fresh, msg)
		}

		if len(next) < capacity {
			next = append(next, Record{Message: msg, GeneratedAt: now})
		}
	}

	for _, r := range current {
		if len(next) == capacity {
			break
		}

		if _, dup := seen[r.Message]; dup {
			continue
		}

		seen[r.Message] = struct{}{}
		next = append(next, r)
	}

	return next, fresh
}

// insertNewOnly pushes each unseen message to the front, in batch order, and truncates.
func insertNewOnly(current []Record, batch []string, now time.Time, capacity int) ([]Record, []string) {
	seen := make(map[string]struct{}, len(current)+len(batch))
	for _, r := range current {
		seen[r.Message] = struct{}{}
	}

	var fresh []string

	for _, msg := range batch {
		if _, ok := seen[msg]; ok {
			continue
		}

		seen[msg] = struct{}{}
		fresh = append(fresh, msg)
	}

	next := make([]Record, 0, min(capacity, len(fresh)+len(current)))
	for i := len(fresh) - 1; i >= 0 && len(next) < capacity; i-- {
		next = append(next, Record{Message: fresh[i], GeneratedAt: now})
	}

	for _, r := range current {
		if len(next) == capacity {
			break
		}

		next = append(next, r)
	}

	return next, fresh
}
