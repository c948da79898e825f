package roledef

import (
	"fmt"
	"strings"
)

// InvalidIdentifierError is returned when a name cannot be used as an
// unquoted PostgreSQL identifier.
type InvalidIdentifierError struct {
	Field  string
	Name   string
	Reason string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("%s %q is invalid: %s", e.Field, e.Name, e.Reason)
}

// ValidationError is returned when a role definition fails validation.
type ValidationError struct {
	Role    string
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("role definition %q is invalid: %s", e.Role, strings.Join(e.Details, "; "))
}

// CycleError is returned when the inheritance graph over a candidate
// set contains a cycle.
type CycleError struct {
	Roles []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic role inheritance involving: %s", strings.Join(e.Roles, ", "))
}

// ConflictError is returned when two plugins emit a role definition
// with the same name and the registry is configured to reject
// collisions.
type ConflictError struct {
	Role    string
	Plugins []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("role %q defined by multiple plugins: %s", e.Role, strings.Join(e.Plugins, ", "))
}
