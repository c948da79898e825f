package registry

import (
	"context"
	"sync"
	"time"
)

// InMemRegistryRepository implements RegistryRepository with an
// in-process map. Intended for tests and single-process deployments.
type InMemRegistryRepository struct {
	mutex   sync.RWMutex
	records map[string]*Record
}

// NewInMemRegistryRepository creates an empty in-memory repository.
func NewInMemRegistryRepository() *InMemRegistryRepository {
	return &InMemRegistryRepository{
		records: make(map[string]*Record),
	}
}

func cloneRecord(record *Record) *Record {
	out := *record
	out.Roles = make(map[string]RoleState, len(record.Roles))
	for name, state := range record.Roles {
		out.Roles[name] = state
	}
	out.History = make([]HistoryEntry, len(record.History))
	copy(out.History, record.History)
	return &out
}

// Get returns the record for a scope, or ErrRecordNotFound.
func (r *InMemRegistryRepository) Get(ctx context.Context, scope Scope) (*Record, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	record, ok := r.records[scope.DocumentID()]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(record), nil
}

// Put replaces the record for a scope.
func (r *InMemRegistryRepository) Put(ctx context.Context, scope Scope, record *Record) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.records[scope.DocumentID()] = cloneRecord(record)
	return nil
}

// Touch updates a single role's state, creating the record if needed.
func (r *InMemRegistryRepository) Touch(ctx context.Context, scope Scope, roleName string, state RoleState) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	record, ok := r.records[scope.DocumentID()]
	if !ok {
		record = NewRecord(scope)
		r.records[scope.DocumentID()] = record
	}
	record.Roles[roleName] = state
	record.LastUpdated = time.Now().UTC()
	return nil
}

// AppendHistory appends an action entry, creating the record if needed.
func (r *InMemRegistryRepository) AppendHistory(ctx context.Context, scope Scope, entry HistoryEntry) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	record, ok := r.records[scope.DocumentID()]
	if !ok {
		record = NewRecord(scope)
		r.records[scope.DocumentID()] = record
	}
	record.History = append(record.History, entry)
	record.LastUpdated = time.Now().UTC()
	return nil
}
