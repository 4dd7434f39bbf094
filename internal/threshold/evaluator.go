package threshold

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oshokin/breathe-tracking/internal/domain/reading"
)

// Classification is the outcome of classifying one value.
type Classification struct {
	Kind  reading.MetricKind
	Value float64
	Level reading.Level
	// Message is empty when Level is Safe.
	Message string
}

// Evaluator classifies values against a Table.
type Evaluator struct {
	table *Table
}

// NewEvaluator creates an evaluator over table.
func NewEvaluator(table *Table) *Evaluator {
	return &Evaluator{table: table}
}

// Classify maps a value of kind to a level and, unless SAFE, an alert message.
func (e *Evaluator) Classify(kind reading.MetricKind, value float64) (Classification, error) {
	limits, err := e.table.Limits(kind)
	if err != nil {
		return Classification{}, err
	}

	result := Classification{
		Kind:  kind,
		Value: value,
		Level: levelOf(limits, value),
	}

	if result.Level != reading.Safe {
		result.Message = message(kind, limits, value, result.Level)
	}

	return result, nil
}

// Alerts classifies every reading and returns the messages of non-safe ones in input order.
func (e *Evaluator) Alerts(readings []reading.Reading) ([]string, error) {
	var alerts []string

	for _, r := range readings {
		c, err := e.Classify(r.Kind, r.Value)
		if err != nil {
			return nil, err
		}

		if c.Message != "" {
			alerts = append(alerts, c.Message)
		}
	}

	return alerts, nil
}

func levelOf(l reading.Limits, value float64) reading.Level {
	if l.Direction == reading.Below {
		switch {
		case value < l.Danger:
			return reading.Danger
		case value < l.Safe:
			return reading.Risk
		default:
			return reading.Safe
		}
	}

	switch {
	case value > l.Danger:
		return reading.Danger
	case value > l.Safe:
		return reading.Risk
	default:
		return reading.Safe
	}
}

func message(kind reading.MetricKind, l reading.Limits, value float64, level reading.Level) string {
	verb := "exceeds"
	if l.Direction == reading.Below {
		verb = "falls below"
	}

	v := strconv.FormatFloat(value, 'f', -1, 64)
	if l.Unit != "" {
		v += " " + l.Unit
	}

	return fmt.Sprintf("%s: %s %s %s threshold", kind.DisplayName(), v, verb, strings.ToLower(level.String()))
}

// Limits returns the limits used for kind.
func (e *Evaluator) Limits(kind reading.MetricKind) (reading.Limits, error) {
	return e.table.Limits(kind)
}
