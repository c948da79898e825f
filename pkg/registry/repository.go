package registry

import (
	"context"
	"errors"
)

// ErrRecordNotFound is returned when no registry record exists for a
// scope.
var ErrRecordNotFound = errors.New("registry record not found")

// RegistryRepository defines the persistence interface for registry
// records. Implementations only need get/put-by-key semantics with
// read-after-write consistency for a single key.
type RegistryRepository interface {
	// Get returns the record for a scope, or ErrRecordNotFound.
	Get(ctx context.Context, scope Scope) (*Record, error)

	// Put atomically replaces the record for a scope,
	// last-writer-wins at the document level.
	Put(ctx context.Context, scope Scope, record *Record) error

	// Touch updates the state of a single role in place, creating the
	// record if it does not exist.
	Touch(ctx context.Context, scope Scope, roleName string, state RoleState) error

	// AppendHistory appends an action entry to the record's history,
	// creating the record if it does not exist.
	AppendHistory(ctx context.Context, scope Scope, entry HistoryEntry) error
}
