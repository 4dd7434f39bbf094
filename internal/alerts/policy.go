package alerts

import (
	"fmt"
	"strings"
)

// Policy selects how a batch of alerts is folded into the history.
type Policy string

const (
	// PolicyReplaceMerge merges the batch in front of the history and reorders duplicates.
	PolicyReplaceMerge Policy = "replace-merge"
	// PolicyInsertNewOnly inserts unseen messages at the front and notifies once per message.
	PolicyInsertNewOnly Policy = "insert-new-only"
)

const (
	// DefaultReplaceMergeCap is the history cap used with replace-merge when none is configured.
	DefaultReplaceMergeCap = 6
	// DefaultInsertNewOnlyCap is the history cap used with insert-new-only when none is configured.
	DefaultInsertNewOnlyCap = 4
)

// ParsePolicy converts a configuration string into a Policy.
// An empty string selects PolicyReplaceMerge.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyReplaceMerge, nil
	case PolicyReplaceMerge, PolicyInsertNewOnly:
		return p, nil
	default:
		return "", fmt.Errorf("unknown alert aggregation policy %q", s)
	}
}

// DefaultCap returns the history cap historically paired with the policy.
func (p Policy) DefaultCap() int {
	if p == PolicyInsertNewOnly {
		return DefaultInsertNewOnlyCap
	}

	return DefaultReplaceMergeCap
}
