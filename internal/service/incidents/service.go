package incidents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/logger"
	repository "github.com/oshokin/breathe-tracking/internal/repository/incident"
)

// ErrEmptyID is returned for requests without an incident id.
var ErrEmptyID = errors.New("incident id is empty")

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock stamping creation and resolution times.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithIDGenerator sets the generator of new incident ids.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		s.newID = gen
	}
}

type documentWatcher struct {
	id string
	fn func(incident.Update)
}

type sensorWatcher struct {
	sensorID string
	limit    int
	fn       func(incident.ListUpdate)
}

// Service is the incident store.
type Service struct {
	repo  repository.Repository
	clock clockwork.Clock
	newID func() string

	// mu serializes mutations with their fan-out.
	mu sync.Mutex

	watchersMu sync.RWMutex
	documents  map[uint64]documentWatcher
	sensors    map[uint64]sensorWatcher
	nextID     uint64
}

var _ incident.Store = (*Service)(nil)

// NewService creates a store over repo.
func NewService(repo repository.Repository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		clock:     clockwork.NewRealClock(),
		newID:     uuid.NewString,
		documents: make(map[uint64]documentWatcher),
		sensors:   make(map[uint64]sensorWatcher),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Create implements incident.Store.
func (s *Service) Create(ctx context.Context, draft incident.Draft) (*incident.Incident, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inc := &incident.Incident{
		ID:        s.newID(),
		SensorID:  strings.TrimSpace(draft.SensorID),
		Title:     strings.TrimSpace(draft.Title),
		Message:   strings.TrimSpace(draft.Message),
		Location:  strings.TrimSpace(draft.Location),
		Status:    incident.StatusPending,
		CreatedAt: s.clock.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, inc); err != nil {
		return nil, fmt.Errorf("failed to store incident: %w", err)
	}

	logger.InfoKV(ctx, "Incident created",
		"incident_id", inc.ID,
		"sensor_id", inc.SensorID,
		"title", inc.Title)

	s.publish(ctx, inc)

	return inc.Clone(), nil
}

// Get implements incident.Store.
func (s *Service) Get(ctx context.Context, id string) (*incident.Incident, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	inc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load incident %s: %w", id, err)
	}

	return inc, nil
}

// List implements incident.Store.
func (s *Service) List(ctx context.Context, sensorID string, limit int) ([]*incident.Incident, error) {
	list, err := s.repo.ListBySensor(ctx, sensorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents of %s: %w", sensorID, err)
	}

	return list, nil
}

// Resolve implements incident.Store.
func (s *Service) Resolve(ctx context.Context, id string) (*incident.Incident, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load incident %s: %w", id, err)
	}

	if inc.Resolved() {
		return inc, nil
	}

	inc.Status = incident.StatusResolved
	inc.ResolvedAt = s.clock.Now().UTC()

	if err = s.repo.Update(ctx, inc); err != nil {
		return nil, fmt.Errorf("failed to store incident %s: %w", id, err)
	}

	logger.InfoKV(ctx, "Incident resolved",
		"incident_id", inc.ID,
		"sensor_id", inc.SensorID)

	s.publish(ctx, inc)

	return inc.Clone(), nil
}

// WatchIncident implements incident.Watcher.
// The current state is delivered before WatchIncident returns.
// fn runs under the service's write lock and must not call Create or Resolve.
func (s *Service) WatchIncident(ctx context.Context, id string, fn func(incident.Update)) (incident.Subscription, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	// Holding mu keeps a concurrent mutation from slipping between the read and the registration.
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load incident %s: %w", id, err)
	}

	key := s.register(func(key uint64) {
		s.documents[key] = documentWatcher{id: id, fn: fn}
	})

	fn(incident.Update{Incident: inc})

	return s.subscription(key), nil
}

// WatchSensor implements incident.SensorWatcher.
// The current list is delivered before WatchSensor returns.
// fn runs under the service's write lock and must not call Create or Resolve.
func (s *Service) WatchSensor(
	ctx context.Context,
	sensorID string,
	limit int,
	fn func(incident.ListUpdate),
) (incident.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.repo.ListBySensor(ctx, sensorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents of %s: %w", sensorID, err)
	}

	key := s.register(func(key uint64) {
		s.sensors[key] = sensorWatcher{sensorID: sensorID, limit: limit, fn: fn}
	})

	fn(incident.ListUpdate{Incidents: list})

	return s.subscription(key), nil
}

// Watchers returns the number of live document and sensor watchers.
func (s *Service) Watchers() (int, int) {
	s.watchersMu.RLock()
	defer s.watchersMu.RUnlock()

	return len(s.documents), len(s.sensors)
}

func (s *Service) register(add func(key uint64)) uint64 {
	s.watchersMu.Lock()
	defer s.watchersMu.Unlock()

	s.nextID++
	add(s.nextID)

	return s.nextID
}

func (s *Service) subscription(key uint64) incident.Subscription {
	var once sync.Once

	return incident.SubscriptionFunc(func() {
		once.Do(func() {
			s.watchersMu.Lock()
			defer s.watchersMu.Unlock()

			delete(s.documents, key)
			delete(s.sensors, key)
		})
	})
}

// publish fans a changed incident out to its watchers. Callers hold mu.
func (s *Service) publish(ctx context.Context, changed *incident.Incident) {
	s.watchersMu.RLock()

	documents := make([]documentWatcher, 0, len(s.documents))
	for _, w := range s.documents {
		if w.id == changed.ID {
			documents = append(documents, w)
		}
	}

	sensors := make([]sensorWatcher, 0, len(s.sensors))
	for _, w := range s.sensors {
		if w.sensorID == changed.SensorID {
			sensors = append(sensors, w)
		}
	}

	s.watchersMu.RUnlock()

	for _, w := range documents {
		w.fn(incident.Update{Incident: changed.Clone()})
	}

	for _, w := range sensors {
		list, err := s.repo.ListBySensor(ctx, w.sensorID, w.limit)
		if err != nil {
			logger.WarnKV(ctx, "Failed to refresh sensor watcher", "sensor_id", w.sensorID, "error", err)
			w.fn(incident.ListUpdate{Err: err})

			continue
		}

		w.fn(incident.ListUpdate{Incidents: list})
	}
}
