package alerts

import "fmt"

// InvariantViolation is the panic value raised when a history breaks its cap or uniqueness.
// It signals a bug in this package, never a runtime condition.
type InvariantViolation struct {
	Reason string
}

// Error implements error.
func (v *InvariantViolation) Error() string {
	return "alert history invariant violated: " + v.Reason
}

func mustHold(history []Record, capacity int) {
	if len(history) > capacity {
		panic(&InvariantViolation{Reason: fmt.Sprintf("%d entries exceed cap %d", len(history), capacity)})
	}

	seen := make(map[string]struct{}, len(history))
	for _, r := range history {
		if _, dup := seen[r.Message]; dup {
			panic(&InvariantViolation{Reason: fmt.Sprintf("duplicate entry %q", r.Message)})
		}

		seen[r.Message] = struct{}{}
	}
}
