package threshold

import "github.com/oshokin/breathe-tracking/internal/domain/reading"

// cautionRiskCount is the number of RISK entries a series may hold before it turns CAUTION.
const cautionRiskCount = 3

// Exposure is the overall status of a series of classified values.
type Exposure string

// Exposure values.
const (
	ExposureSafe      Exposure = "SAFE"
	ExposureCaution   Exposure = "CAUTION"
	ExposureDangerous Exposure = "DANGEROUS"
)

// ExposureSummary is the aggregate of one chart series.
type ExposureSummary struct {
	Exposure Exposure
	Risk     int
	Danger   int
}

// Summarize folds levels into an exposure: any DANGER wins, then more than three RISK.
func Summarize(levels []reading.Level) ExposureSummary {
	var s ExposureSummary

	for _, l := range levels {
		switch l {
		case reading.Danger:
			s.Danger++
		case reading.Risk:
			s.Risk++
		case reading.Safe:
		}
	}

	switch {
	case s.Danger > 0:
		s.Exposure = ExposureDangerous
	case s.Risk > cautionRiskCount:
		s.Exposure = ExposureCaution
	default:
		s.Exposure = ExposureSafe
	}

	return s
}

// SummarizeSeries classifies values of one metric and summarizes them.
func (e *Evaluator) SummarizeSeries(kind reading.MetricKind, values []float64) (ExposureSummary, error) {
	levels := make([]reading.Level, 0, len(values))

	for _, v := range values {
		c, err := e.Classify(kind, v)
		if err != nil {
			return ExposureSummary{}, err
		}

		levels = append(levels, c.Level)
	}

	return Summarize(levels), nil
}
