package reading

import (
	"fmt"
	"strings"
	"time"
)

// MetricKind identifies what a sensor reading measures.
type MetricKind string

// Known metric kinds.
const (
	Ozone          MetricKind = "OZONE"
	CarbonDioxide  MetricKind = "CO2"
	CarbonMonoxide MetricKind = "CO"
	NitrogenOxide  MetricKind = "NO2"
	SulfurDioxide  MetricKind = "SO2"
	Temperature    MetricKind = "TEMPERATURE"
	Battery        MetricKind = "BATTERY"
	Signal         MetricKind = "SIGNAL"
)

// Kinds lists every known metric in display order.
func Kinds() []MetricKind {
	return []MetricKind{
		Ozone,
		CarbonDioxide,
		CarbonMonoxide,
		NitrogenOxide,
		SulfurDioxide,
		Temperature,
		Battery,
		Signal,
	}
}

// ParseMetricKind converts a case-insensitive name into a MetricKind.
func ParseMetricKind(s string) (MetricKind, error) {
	kind := MetricKind(strings.ToUpper(strings.TrimSpace(s)))
	for _, k := range Kinds() {
		if k == kind {
			return k, nil
		}
	}

	return "", fmt.Errorf("unknown metric kind %q", s)
}

// DisplayName returns the human readable metric name used in alert messages.
func (k MetricKind) DisplayName() string {
	switch k {
	case Ozone:
		return "Ozone"
	case CarbonDioxide:
		return "CO2"
	case CarbonMonoxide:
		return "CO"
	case NitrogenOxide:
		return "NO2"
	case SulfurDioxide:
		return "SO2"
	case Temperature:
		return "Temperature"
	case Battery:
		return "Battery"
	case Signal:
		return "Signal"
	default:
		return string(k)
	}
}

// Channel returns the session channel name carrying the latest value of this metric.
func (k MetricKind) Channel() string {
	return "reading." + strings.ToLower(string(k))
}

// Reading is a single observation delivered by the sensor feed.
type Reading struct {
	// Kind is the measured metric.
	Kind MetricKind
	// Value is the raw measured value in the metric's unit.
	Value float64
	// ObservedAt is when the sensor took the measurement.
	ObservedAt time.Time
}

// Direction tells which side of a threshold is the unsafe one.
type Direction string

const (
	// Above means values greater than the threshold violate it.
	Above Direction = "above"
	// Below means values lower than the threshold violate it (battery, signal).
	Below Direction = "below"
)

// Limits are the static thresholds of one metric.
type Limits struct {
	// Safe is the threshold past which a value becomes RISK.
	Safe float64
	// Danger is the threshold past which a value becomes DANGER.
	Danger float64
	// Unit is appended to values in alert messages.
	Unit string
	// Direction defaults to Above when empty.
	Direction Direction
}

// Level is the classification of a single value.
type Level int

// Classification levels, ordered by severity.
const (
	Safe Level = iota
	Risk
	Danger
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case Safe:
		return "SAFE"
	case Risk:
		return "RISK"
	case Danger:
		return "DANGER"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}
