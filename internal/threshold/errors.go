package threshold

import (
	"fmt"

	"github.com/oshokin/breathe-tracking/internal/domain/reading"
)

// ConfigurationError reports an invalid limits table or an unknown metric.
// It is meant to stop a process at startup.
type ConfigurationError struct {
	// Metric is the offending metric, empty when the error concerns the whole table.
	Metric reading.MetricKind
	// Reason describes what is wrong.
	Reason string
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	if e.Metric == "" {
		return "threshold configuration: " + e.Reason
	}

	return fmt.Sprintf("threshold configuration for %s: %s", e.Metric, e.Reason)
}
