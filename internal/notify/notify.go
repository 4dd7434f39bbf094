// Package notify delivers local and email notifications.
//
// Delivery is fire-and-forget for callers: Notify never returns an error.
// Failures are logged here and counted through the result hook.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/breathe-tracking/internal/logger"
)

// Channel is the delivery channel of a message.
type Channel string

const (
	// Local is a notification shown on the monitoring host.
	Local Channel = "LOCAL"
	// Email is an outbound mail sent through the relay.
	Email Channel = "EMAIL"
)

// ParseChannel converts a string into a Channel.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToUpper(strings.TrimSpace(s))); c {
	case Local, Email:
		return c, nil
	default:
		return "", fmt.Errorf("unknown notification channel %q", s)
	}
}

// Message is one notification.
type Message struct {
	Channel Channel
	// Recipient is the email address; empty for local notifications.
	Recipient string
	Title     string
	Body      string
}

// Sink delivers messages of one channel.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier accepts messages without reporting delivery errors.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// ResultHook observes the outcome of every delivery attempt.
type ResultHook func(channel Channel, err error)

// Router sends each message to the sink registered for its channel.
type Router struct {
	mu     sync.RWMutex
	sinks  map[Channel]Sink
	result ResultHook
}

// NewRouter creates a router without sinks. hook may be nil.
func NewRouter(hook ResultHook) *Router {
	if hook == nil {
		hook = func(Channel, error) {}
	}

	return &Router{
		sinks:  make(map[Channel]Sink),
		result: hook,
	}
}

// Register sets the sink of channel, replacing any previous one.
func (r *Router) Register(channel Channel, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sinks[channel] = sink
}

// Notify delivers msg synchronously and logs failures.
func (r *Router) Notify(ctx context.Context, msg Message) {
	r.mu.RLock()
	sink, ok := r.sinks[msg.Channel]
	r.mu.RUnlock()

	if !ok {
		err := fmt.Errorf("no sink for channel %s", msg.Channel)
		logger.WarnKV(ctx, "Notification dropped", "channel", msg.Channel, "title", msg.Title, "error", err)
		r.result(msg.Channel, err)

		return
	}

	err := sink.Send(ctx, msg)
	if err != nil {
		logger.ErrorKV(ctx, "Notification failed",
			"channel", msg.Channel,
			"recipient", msg.Recipient,
			"title", msg.Title,
			"error", err)
	}

	r.result(msg.Channel, err)
}

// Multi forwards every message to all notifiers.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, msg Message) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, msg)
		}
	}
}

// Async runs deliveries on background goroutines so callers never wait on I/O.
type Async struct {
	next    Notifier
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsync wraps next. Each delivery is bounded by timeout when it is positive.
func NewAsync(next Notifier, timeout time.Duration) *Async {
	return &Async{next: next, timeout: timeout}
}

// Notify starts the delivery and returns immediately.
// The delivery outlives ctx cancellation but keeps its values.
func (a *Async) Notify(ctx context.Context, msg Message) {
	detached := context.WithoutCancel(ctx)

	a.wg.Go(func() {
		deliveryCtx := detached

		if a.timeout > 0 {
			var cancel context.CancelFunc

			deliveryCtx, cancel = context.WithTimeout(detached, a.timeout)
			defer cancel()
		}

		a.next.Notify(deliveryCtx, msg)
	})
}

// Wait blocks until every started delivery finished.
func (a *Async) Wait() {
	a.wg.Wait()
}
