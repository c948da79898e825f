package permission

import (
	"fmt"
	"strings"
)

// PreconditionError is returned when a grant or revoke cannot proceed:
// unknown principal, missing role, or missing schema. No mutation has
// happened when it is returned.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s", e.Reason)
}

// StepFailure records one failed statement of a multi-step operation.
type StepFailure struct {
	Step   string `json:"step"`
	Reason string `json:"reason"`
}

// PartialFailureError is returned when some steps of a multi-statement
// operation failed while others succeeded. The remaining steps were
// still attempted; nothing is silently swallowed.
type PartialFailureError struct {
	Steps []StepFailure
}

func (e *PartialFailureError) Error() string {
	names := make([]string, len(e.Steps))
	for i, step := range e.Steps {
		names[i] = step.Step
	}
	return fmt.Sprintf("%d of the operation's steps failed: %s", len(e.Steps), strings.Join(names, ", "))
}
