package reporter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oshokin/breathe-tracking/internal/dispatch"
	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/logger"
	"github.com/oshokin/breathe-tracking/internal/tracker"
)

func submit(ctx context.Context, store incident.Store, draft incident.Draft, wait bool, out io.Writer) error {
	created, err := store.Create(ctx, draft)
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}

	logger.InfoKV(ctx, "Incident reported", "incident_id", created.ID, "sensor_id", created.SensorID)

	_, _ = fmt.Fprintln(out, renderIncident(created))

	if !wait {
		return nil
	}

	resolved, err := awaitResolution(ctx, store, created.ID)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(out, renderIncident(resolved))

	return nil
}

func resolve(ctx context.Context, store incident.Store, id string, out io.Writer) error {
	resolved, err := store.Resolve(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve incident %s: %w", id, err)
	}

	_, _ = fmt.Fprintln(out, renderIncident(resolved))

	return nil
}

func list(ctx context.Context, store incident.Store, sensorID string, limit int, pendingOnly bool, out io.Writer) error {
	all, err := store.List(ctx, sensorID, limit)
	if err != nil {
		return fmt.Errorf("list incidents of %s: %w", sensorID, err)
	}

	shown := make([]*incident.Incident, 0, len(all))

	for _, inc := range all {
		if pendingOnly && inc.Resolved() {
			continue
		}

		shown = append(shown, inc)
	}

	_, _ = fmt.Fprintln(out, renderTable(sensorID, shown))

	return nil
}

// waiter receives the single resolution effect of the watched incident.
type waiter struct {
	resolved chan *incident.Incident
	failed   chan error
}

// Unlock implements tracker.Effects.
func (*waiter) Unlock(context.Context, *incident.Incident) {}

// NotifyResolution implements tracker.Effects.
func (w *waiter) NotifyResolution(_ context.Context, inc *incident.Incident) {
	w.resolved <- inc
}

func (w *waiter) onError(_ context.Context, err *tracker.SubscriptionError) {
	select {
	case w.failed <- err:
	default:
	}
}

// awaitResolution watches id until it is resolved, the subscription fails or ctx is done.
func awaitResolution(ctx context.Context, store incident.Watcher, id string) (*incident.Incident, error) {
	w := &waiter{
		resolved: make(chan *incident.Incident, 1),
		failed:   make(chan error, 1),
	}

	queue := dispatch.New()
	watch := tracker.New(store, tracker.NewResolutions(w),
		tracker.WithPoster(queue),
		tracker.WithErrorHandler(w.onError))

	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()

	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = queue.Run(runCtx)
	}()

	defer func() {
		_ = queue.Do(runCtx, func() {
			watch.CancelWatch(ctx)
		})

		queue.Close()
		<-done
	}()

	var startErr error
	if err := queue.Do(ctx, func() {
		startErr = watch.StartWatch(ctx, id)
	}); err != nil {
		return nil, err
	}

	if startErr != nil {
		return nil, startErr
	}

	logger.InfoKV(ctx, "Waiting for resolution", "incident_id", id)

	select {
	case inc := <-w.resolved:
		return inc, nil
	case err := <-w.failed:
		return nil, err
	case <-ctx.Done():
		return nil, errors.Join(errors.New("stopped waiting for resolution"), ctx.Err())
	}
}
