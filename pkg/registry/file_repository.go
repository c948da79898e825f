package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileRegistryRepository implements RegistryRepository using one JSON
// document per scope under a data directory. Writes go through a
// temp-file rename so a document is replaced atomically.
type FileRegistryRepository struct {
	dataDir string
	mutex   sync.Mutex
}

// NewFileRegistryRepository creates a file-based repository rooted at
// dataDir, creating the directory if it does not exist.
func NewFileRegistryRepository(dataDir string) (*FileRegistryRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileRegistryRepository{dataDir: dataDir}, nil
}

func (r *FileRegistryRepository) path(scope Scope) string {
	return filepath.Join(r.dataDir, scope.DocumentID()+".json")
}

func (r *FileRegistryRepository) load(scope Scope) (*Record, error) {
	data, err := os.ReadFile(r.path(scope))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read registry document: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode registry document: %w", err)
	}
	if record.Roles == nil {
		record.Roles = make(map[string]RoleState)
	}
	return &record, nil
}

func (r *FileRegistryRepository) save(scope Scope, record *Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry document: %w", err)
	}
	tmp := r.path(scope) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry document: %w", err)
	}
	if err := os.Rename(tmp, r.path(scope)); err != nil {
		return fmt.Errorf("failed to replace registry document: %w", err)
	}
	return nil
}

// Get returns the record for a scope, or ErrRecordNotFound.
func (r *FileRegistryRepository) Get(ctx context.Context, scope Scope) (*Record, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.load(scope)
}

// Put replaces the record for a scope.
func (r *FileRegistryRepository) Put(ctx context.Context, scope Scope, record *Record) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.save(scope, record)
}

// Touch updates a single role's state, creating the record if needed.
func (r *FileRegistryRepository) Touch(ctx context.Context, scope Scope, roleName string, state RoleState) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	record, err := r.load(scope)
	if err != nil {
		if err != ErrRecordNotFound {
			return err
		}
		record = NewRecord(scope)
	}
	record.Roles[roleName] = state
	record.LastUpdated = time.Now().UTC()
	return r.save(scope, record)
}

// AppendHistory appends an action entry, creating the record if needed.
func (r *FileRegistryRepository) AppendHistory(ctx context.Context, scope Scope, entry HistoryEntry) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	record, err := r.load(scope)
	if err != nil {
		if err != ErrRecordNotFound {
			return err
		}
		record = NewRecord(scope)
	}
	record.History = append(record.History, entry)
	record.LastUpdated = time.Now().UTC()
	return r.save(scope, record)
}
