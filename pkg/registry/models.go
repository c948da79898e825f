package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/pg-role-manager/pkg/roledef"
)

// Scope identifies the registry document for one managed database.
// Two databases on the same instance have distinct scopes.
type Scope struct {
	ProjectID    string `json:"project_id"`
	InstanceName string `json:"instance_name"`
	DatabaseName string `json:"database_name"`
}

// DocumentID renders the stable document key for this scope.
func (s Scope) DocumentID() string {
	return fmt.Sprintf("%s-%s-%s", s.ProjectID, s.InstanceName, s.DatabaseName)
}

// RoleState is the last-applied state of a single role.
type RoleState struct {
	Version   string         `json:"version"`
	Checksum  string         `json:"checksum"`
	Status    roledef.Status `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// HistoryEntry records one convergence or permission action against a
// scope.
type HistoryEntry struct {
	ID            uuid.UUID `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	RolesAffected []string  `json:"roles_affected,omitempty"`
	Success       bool      `json:"success"`
	Detail        string    `json:"detail,omitempty"`
}

// Record is the persisted registry document for one scope: a mapping
// from role name to last-applied state plus an action history.
type Record struct {
	ProjectID    string               `json:"project_id"`
	InstanceName string               `json:"instance_name"`
	DatabaseName string               `json:"database_name"`
	Roles        map[string]RoleState `json:"roles"`
	History      []HistoryEntry       `json:"history,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	LastUpdated  time.Time            `json:"last_updated"`
}

// NewRecord creates an empty record for a scope. An absent record is
// treated as a scope with zero existing roles.
func NewRecord(scope Scope) *Record {
	now := time.Now().UTC()
	return &Record{
		ProjectID:    scope.ProjectID,
		InstanceName: scope.InstanceName,
		DatabaseName: scope.DatabaseName,
		Roles:        make(map[string]RoleState),
		CreatedAt:    now,
		LastUpdated:  now,
	}
}

// Scope returns the scope this record belongs to.
func (r *Record) Scope() Scope {
	return Scope{
		ProjectID:    r.ProjectID,
		InstanceName: r.InstanceName,
		DatabaseName: r.DatabaseName,
	}
}

// NewHistoryEntry builds a history entry with a fresh ID and timestamp.
func NewHistoryEntry(action string, rolesAffected []string, success bool, detail string) HistoryEntry {
	return HistoryEntry{
		ID:            uuid.New(),
		Timestamp:     time.Now().UTC(),
		Action:        action,
		RolesAffected: rolesAffected,
		Success:       success,
		Detail:        detail,
	}
}
