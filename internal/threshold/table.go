package threshold

import (
	"maps"
	"math"

	"github.com/oshokin/breathe-tracking/internal/domain/reading"
)

// Table is an immutable set of limits keyed by metric.
type Table struct {
	limits map[reading.MetricKind]reading.Limits
}

// DefaultLimits returns a fresh copy of the built-in limits.
func DefaultLimits() map[reading.MetricKind]reading.Limits {
	return map[reading.MetricKind]reading.Limits{
		reading.Ozone:          {Safe: 0.6, Danger: 0.9, Unit: "ppm", Direction: reading.Above},
		reading.CarbonDioxide:  {Safe: 800, Danger: 1200, Unit: "ppm", Direction: reading.Above},
		reading.CarbonMonoxide: {Safe: 10, Danger: 30, Unit: "mg/m³", Direction: reading.Above},
		reading.NitrogenOxide:  {Safe: 200, Danger: 400, Unit: "µg/m³", Direction: reading.Above},
		reading.SulfurDioxide:  {Safe: 350, Danger: 500, Unit: "µg/m³", Direction: reading.Above},
		reading.Temperature:    {Safe: 20, Danger: 28, Unit: "°C", Direction: reading.Above},
		reading.Battery:        {Safe: 20, Danger: 10, Unit: "%", Direction: reading.Below},
		reading.Signal:         {Safe: -80, Danger: -90, Unit: "dBm", Direction: reading.Below},
	}
}

// DefaultTable returns the table built from DefaultLimits.
func DefaultTable() *Table {
	t, err := NewTable(DefaultLimits())
	if err != nil {
		panic(err) // The built-in limits are valid.
	}

	return t
}

// NewTable validates limits and returns an immutable table.
// An empty Direction is treated as Above. Use Merge to layer overrides on DefaultLimits.
func NewTable(limits map[reading.MetricKind]reading.Limits) (*Table, error) {
	if len(limits) == 0 {
		return nil, &ConfigurationError{Reason: "limits table is empty"}
	}

	known := make(map[reading.MetricKind]struct{}, len(reading.Kinds()))
	for _, k := range reading.Kinds() {
		known[k] = struct{}{}
	}

	normalized := make(map[reading.MetricKind]reading.Limits, len(limits))

	for kind, l := range limits {
		if _, ok := known[kind]; !ok {
			return nil, &ConfigurationError{Metric: kind, Reason: "unknown metric"}
		}

		if err := validateLimits(kind, &l); err != nil {
			return nil, err
		}

		normalized[kind] = l
	}

	return &Table{limits: normalized}, nil
}

// Merge returns base with every entry of overrides replacing the base entry.
func Merge(base, overrides map[reading.MetricKind]reading.Limits) map[reading.MetricKind]reading.Limits {
	merged := maps.Clone(base)
	if merged == nil {
		merged = make(map[reading.MetricKind]reading.Limits, len(overrides))
	}

	maps.Copy(merged, overrides)

	return merged
}

// Limits returns the limits of kind.
func (t *Table) Limits(kind reading.MetricKind) (reading.Limits, error) {
	l, ok := t.limits[kind]
	if !ok {
		return reading.Limits{}, &ConfigurationError{Metric: kind, Reason: "no limits configured"}
	}

	return l, nil
}

func validateLimits(kind reading.MetricKind, l *reading.Limits) error {
	if math.IsNaN(l.Safe) || math.IsNaN(l.Danger) || math.IsInf(l.Safe, 0) || math.IsInf(l.Danger, 0) {
		return &ConfigurationError{Metric: kind, Reason: "thresholds must be finite numbers"}
	}

	switch l.Direction {
	case "":
		l.Direction = reading.Above

		fallthrough
	case reading.Above:
		if l.Danger < l.Safe {
			return &ConfigurationError{Metric: kind, Reason: "danger threshold is below the safe threshold"}
		}
	case reading.Below:
		if l.Danger > l.Safe {
			return &ConfigurationError{Metric: kind, Reason: "danger threshold is above the safe threshold"}
		}
	default:
		return &ConfigurationError{Metric: kind, Reason: "unknown direction " + string(l.Direction)}
	}

	return nil
}
