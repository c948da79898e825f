package rolemgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/pg-role-manager/pkg/connpool"
	"github.com/tendant/pg-role-manager/pkg/dbcheck"
	"github.com/tendant/pg-role-manager/pkg/registry"
	"github.com/tendant/pg-role-manager/pkg/roledef"
)

// RoleFailure records why a single role could not be converged.
type RoleFailure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ConvergenceResult is the create/update/skip/fail partition of one
// Initialize pass.
type ConvergenceResult struct {
	Created []string      `json:"created"`
	Updated []string      `json:"updated"`
	Skipped []string      `json:"skipped"`
	Failed  []RoleFailure `json:"failed"`
}

// RegistryStatus summarizes the persisted state of a scope.
type RegistryStatus struct {
	TotalRoles     int       `json:"total_roles"`
	ActiveRoles    int       `json:"active_roles"`
	HistoryEntries int       `json:"history_entries"`
	CreatedAt      time.Time `json:"created_at"`
	LastUpdated    time.Time `json:"last_updated"`
}

// RoleService is the convergence engine: it gathers candidate
// definitions from the plugin registry, diffs them against the registry
// store, applies SQL through the pool manager, and writes back the
// applied state.
type RoleService struct {
	plugins *roledef.Registry
	repo    registry.RegistryRepository
	pools   *connpool.Manager
}

// NewRoleService creates a role service.
func NewRoleService(plugins *roledef.Registry, repo registry.RegistryRepository, pools *connpool.Manager) *RoleService {
	return &RoleService{
		plugins: plugins,
		repo:    repo,
		pools:   pools,
	}
}

func registryScope(key connpool.PoolKey) registry.Scope {
	return registry.Scope{
		ProjectID:    key.ProjectID,
		InstanceName: key.InstanceName,
		DatabaseName: key.DatabaseName,
	}
}

// Initialize converges the roles of one database scope.
//
// Candidate definitions are validated and cycle-checked before any SQL
// runs; a cyclic candidate set fails the whole pass with no partial
// application. Each role's commands then execute in their own
// transaction in inheritance order, so one role's failure does not roll
// back independent roles; the failure is recorded in the result and the
// registry write reflects only roles that actually succeeded.
//
// Concurrent Initialize calls for the same scope are tolerated
// (last-writer-wins at the document level) but not linearized; callers
// that need strict ordering should serialize per scope.
func (s *RoleService) Initialize(ctx context.Context, key connpool.PoolKey, schemaName string, forceUpdate bool) (*ConvergenceResult, error) {
	start := time.Now()
	slog.Info("starting role initialization",
		"scope", key.String(), "schema", schemaName, "force_update", forceUpdate)

	candidates, err := s.plugins.DefinitionsFor(key.DatabaseName, schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to gather role definitions: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no role definitions produced for %s.%s", key.DatabaseName, schemaName)
	}

	scope := registryScope(key)
	record, err := s.repo.Get(ctx, scope)
	if err != nil {
		if !errors.Is(err, registry.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to read role registry: %w", err)
		}
		record = registry.NewRecord(scope)
	}

	plan := Diff(candidates, record.Roles, forceUpdate)

	// Ordering only matters between pending roles; skipped roles
	// already exist in the database.
	ordered, err := roledef.TopoSort(plan.Pending())
	if err != nil {
		return nil, err
	}

	updating := make(map[string]bool, len(plan.Update))
	for _, def := range plan.Update {
		updating[def.Name] = true
	}

	result := &ConvergenceResult{
		Created: []string{},
		Updated: []string{},
		Skipped: []string{},
		Failed:  []RoleFailure{},
	}
	for _, def := range plan.Skip {
		result.Skipped = append(result.Skipped, def.Name)
	}

	now := time.Now().UTC()
	for _, def := range ordered {
		if err := s.applyRole(ctx, key, def); err != nil {
			slog.Error("failed to converge role", "scope", key.String(), "role", def.Name, "err", err)
			result.Failed = append(result.Failed, RoleFailure{Name: def.Name, Reason: err.Error()})
			continue
		}

		createdAt := now
		if prev, ok := record.Roles[def.Name]; ok {
			createdAt = prev.CreatedAt
		}
		record.Roles[def.Name] = registry.RoleState{
			Version:   def.Version,
			Checksum:  def.Checksum,
			Status:    roledef.StatusActive,
			CreatedAt: createdAt,
		}

		if updating[def.Name] {
			result.Updated = append(result.Updated, def.Name)
		} else {
			result.Created = append(result.Created, def.Name)
		}
	}

	record.LastUpdated = time.Now().UTC()
	if err := s.repo.Put(ctx, scope, record); err != nil {
		// Roles were applied; a failed registry write must not hide that.
		slog.Error("failed to persist role registry", "scope", key.String(), "err", err)
		return result, fmt.Errorf("roles applied but registry write failed: %w", err)
	}

	affected := append(append([]string{}, result.Created...), result.Updated...)
	entry := registry.NewHistoryEntry("role_initialization", affected, len(result.Failed) == 0,
		fmt.Sprintf("created=%d updated=%d skipped=%d failed=%d",
			len(result.Created), len(result.Updated), len(result.Skipped), len(result.Failed)))
	if err := s.repo.AppendHistory(ctx, scope, entry); err != nil {
		slog.Warn("failed to append registry history", "scope", key.String(), "err", err)
	}

	slog.Info("role initialization completed",
		"scope", key.String(),
		"created", len(result.Created), "updated", len(result.Updated),
		"skipped", len(result.Skipped), "failed", len(result.Failed),
		"duration", time.Since(start))
	return result, nil
}

// applyRole executes one role's command sequence in a single
// transaction.
func (s *RoleService) applyRole(ctx context.Context, key connpool.PoolKey, def roledef.RoleDefinition) error {
	return s.pools.WithTx(ctx, key, func(tx pgx.Tx) error {
		for _, command := range def.SQLCommands {
			slog.Debug("executing role command", "role", def.Name, "sql", command)
			if _, err := tx.Exec(ctx, command); err != nil {
				return fmt.Errorf("command failed: %w", err)
			}
		}
		return nil
	})
}

// RoleSummary describes one managed role visible in the database.
type RoleSummary struct {
	Name     string `json:"name"`
	CanLogin bool   `json:"can_login"`
}

// ListRoles returns the non-system roles present in the live database.
func (s *RoleService) ListRoles(ctx context.Context, key connpool.PoolKey) ([]RoleSummary, error) {
	var roles []RoleSummary
	err := s.pools.WithConn(ctx, key, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT rolname, rolcanlogin FROM pg_roles
			WHERE rolname <> ALL($1)
			AND rolname NOT LIKE 'pg\_%'
			AND rolname NOT LIKE 'cloudsql%'
			ORDER BY rolname`,
			dbcheck.SystemRoles())
		if err != nil {
			return fmt.Errorf("failed to query roles: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var summary RoleSummary
			if err := rows.Scan(&summary.Name, &summary.CanLogin); err != nil {
				return fmt.Errorf("failed to scan role row: %w", err)
			}
			roles = append(roles, summary)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	slog.Info("listed roles", "scope", key.String(), "count", len(roles))
	return roles, nil
}

// Status returns a summary of the persisted registry state for a scope.
func (s *RoleService) Status(ctx context.Context, key connpool.PoolKey) (*RegistryStatus, error) {
	record, err := s.repo.Get(ctx, registryScope(key))
	if err != nil {
		return nil, err
	}

	status := &RegistryStatus{
		TotalRoles:     len(record.Roles),
		HistoryEntries: len(record.History),
		CreatedAt:      record.CreatedAt,
		LastUpdated:    record.LastUpdated,
	}
	for _, state := range record.Roles {
		if state.Status == roledef.StatusActive {
			status.ActiveRoles++
		}
	}
	return status, nil
}

// Deprecate marks a role's registry state as deprecated without
// touching the database. Subsequent convergence passes keep skipping
// the role while its checksum matches.
func (s *RoleService) Deprecate(ctx context.Context, key connpool.PoolKey, roleName string) error {
	scope := registryScope(key)
	record, err := s.repo.Get(ctx, scope)
	if err != nil {
		return err
	}
	state, ok := record.Roles[roleName]
	if !ok {
		return fmt.Errorf("role %q not found in registry for %s", roleName, scope.DocumentID())
	}
	state.Status = roledef.StatusDeprecated
	return s.repo.Touch(ctx, scope, roleName, state)
}
