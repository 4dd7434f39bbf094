package tracker

import (
	"context"

	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/logger"
)

// Effects are the side effects of an observed resolution.
type Effects interface {
	// Unlock releases the UI lock held while the incident was pending.
	Unlock(ctx context.Context, inc *incident.Incident)
	// NotifyResolution announces the resolution.
	NotifyResolution(ctx context.Context, inc *incident.Incident)
}

// Resolutions remembers which incidents already had their resolution handled.
type Resolutions struct {
	effects Effects
	handled map[string]struct{}
}

// NewResolutions creates an empty ledger emitting effects.
func NewResolutions(effects Effects) *Resolutions {
	return &Resolutions{
		effects: effects,
		handled: make(map[string]struct{}),
	}
}

// Handled reports whether the resolution of id was already handled.
func (r *Resolutions) Handled(id string) bool {
	_, ok := r.handled[id]

	return ok
}

// Resolve emits the effects for inc unless they were emitted before.
// It reports whether effects were emitted.
func (r *Resolutions) Resolve(ctx context.Context, inc *incident.Incident) bool {
	if inc == nil || !inc.Resolved() || r.Handled(inc.ID) {
		return false
	}

	r.handled[inc.ID] = struct{}{}

	logger.InfoKV(ctx, "Incident resolved",
		"incident_id", inc.ID,
		"sensor_id", inc.SensorID,
		"title", inc.Title)

	r.effects.Unlock(ctx, inc)
	r.effects.NotifyResolution(ctx, inc)

	return true
}
