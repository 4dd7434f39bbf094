package tracker

import "fmt"

// SubscriptionError reports a failure to establish or keep a remote watch.
// It is recoverable: the tracker keeps its state and does not retry.
type SubscriptionError struct {
	// IncidentID is set for document watches.
	IncidentID string
	// SensorID is set for sensor list watches.
	SensorID string
	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *SubscriptionError) Error() string {
	if e.IncidentID != "" {
		return fmt.Sprintf("watch incident %s: %v", e.IncidentID, e.Err)
	}

	return fmt.Sprintf("watch incidents of sensor %s: %v", e.SensorID, e.Err)
}

// Unwrap returns the cause.
func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
