package incident

import (
	"context"

	domain "github.com/oshokin/breathe-tracking/internal/domain/incident"
)

// Repository defines persistence operations for incidents.
type Repository interface {
	// Insert stores a new incident; the id must be unique.
	Insert(ctx context.Context, inc *domain.Incident) error
	// Get returns an incident or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Incident, error)
	// ListBySensor returns the incidents of a sensor, newest first; limit <= 0 means all.
	ListBySensor(ctx context.Context, sensorID string, limit int) ([]*domain.Incident, error)
	// Update replaces a stored incident or returns domain.ErrNotFound.
	Update(ctx context.Context, inc *domain.Incident) error
	// Close releases the underlying resources.
	Close() error
}
