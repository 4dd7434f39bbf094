package incident

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle status of an incident.
type Status string

const (
	// StatusPending is the status of a freshly created incident.
	StatusPending Status = "PENDING"
	// StatusResolved is the terminal status set by an administrator.
	StatusResolved Status = "RESOLVED"
)

// ParseStatus converts a wire string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusResolved:
		return StatusResolved, nil
	default:
		return "", fmt.Errorf("unknown incident status %q", s)
	}
}

// ErrIncompleteReport is returned when a report draft lacks a title or a message.
var ErrIncompleteReport = errors.New("incident report requires a title and a message")

// Incident is a problem report tracked through a resolution lifecycle.
type Incident struct {
	// ID is assigned by the store on creation.
	ID string
	// SensorID is the sensor the incident concerns.
	SensorID string
	// Title is the short subject shown in lists and notifications.
	Title string
	// Message is the free-form description.
	Message string
	// Location is where the sensor is installed.
	Location string
	// Status only ever moves from PENDING to RESOLVED.
	Status Status
	// CreatedAt is the store's server time at creation; zero when unknown.
	CreatedAt time.Time
	// ResolvedAt is set together with the RESOLVED status.
	ResolvedAt time.Time
}

// Resolved reports whether the incident reached its terminal status.
func (i *Incident) Resolved() bool {
	return i.Status == StatusResolved
}

// Clone returns a copy of the incident to avoid leaking internal references.
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}

	cloned := *i

	return &cloned
}

// Draft is the user-facing report form before submission.
type Draft struct {
	SensorID string
	Title    string
	Message  string
	Location string
}

// Validate rejects drafts with a blank title or message.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Message) == "" {
		return ErrIncompleteReport
	}

	if strings.TrimSpace(d.SensorID) == "" {
		return errors.New("incident report requires a sensor id")
	}

	return nil
}

// DisconnectionDraft prefills a report for a sensor that stopped sending readings.
// lastReading may be empty when nothing was ever received.
func DisconnectionDraft(sensorID, location, lastReading string) Draft {
	if lastReading == "" {
		lastReading = "no readings received"
	}

	return Draft{
		SensorID: sensorID,
		Title:    fmt.Sprintf("ALERT: Sensor %s disconnected", sensorID),
		Message: fmt.Sprintf(
			"Sensor %s at %s stopped reporting. Last reading: %s.",
			sensorID, location, lastReading,
		),
		Location: location,
	}
}

// Update is a single push delivered by a document subscription.
// Exactly one of Incident and Err is set.
type Update struct {
	Incident *Incident
	Err      error
}

// ListUpdate is a single push delivered by a sensor list subscription.
type ListUpdate struct {
	Incidents []*Incident
	Err       error
}
