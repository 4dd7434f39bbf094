package incident

import "time"

const (
	// summaryTimeLayout renders as "dd/MM HH:mm".
	summaryTimeLayout = "02/01 15:04"
	// unknownTime replaces the timestamp of incidents without a creation time.
	unknownTime = "--/--"
)

// Summary is the one-line rendering of a pending incident.
type Summary struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

// String renders the summary as "dd/MM HH:mm - title".
func (s Summary) String() string {
	ts := unknownTime
	if !s.CreatedAt.IsZero() {
		ts = s.CreatedAt.Local().Format(summaryTimeLayout)
	}

	return ts + " - " + s.Title
}

// PendingSummaries keeps the unresolved incidents of list in order, at most limit of them.
// A non-positive limit means no limit.
func PendingSummaries(list []*Incident, limit int) []Summary {
	result := make([]Summary, 0, len(list))

	for _, inc := range list {
		if inc == nil || inc.Resolved() {
			continue
		}

		if limit > 0 && len(result) == limit {
			break
		}

		result = append(result, Summary{
			ID:        inc.ID,
			Title:     inc.Title,
			CreatedAt: inc.CreatedAt,
		})
	}

	return result
}

// Lines renders every summary with String.
func Lines(summaries []Summary) []string {
	lines := make([]string, len(summaries))
	for i, s := range summaries {
		lines[i] = s.String()
	}

	return lines
}
