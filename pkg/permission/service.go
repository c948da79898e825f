package permission

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/pg-role-manager/pkg/connpool"
	"github.com/tendant/pg-role-manager/pkg/dbcheck"
	"github.com/tendant/pg-role-manager/pkg/roledef"
)

// PrincipalGrant is the unit of work for role assignment and
// revocation. It is ephemeral: nothing about it is persisted.
type PrincipalGrant struct {
	Username   string `json:"username"`
	RoleName   string `json:"role_name"`
	SchemaName string `json:"schema_name,omitempty"`
	// RevokeObjectPermissions additionally strips object-level
	// privileges scoped to SchemaName on revoke.
	RevokeObjectPermissions bool `json:"revoke_object_permissions,omitempty"`
}

// Result reports the outcome of a grant or revoke.
type Result struct {
	Success        bool          `json:"success"`
	Message        string        `json:"message"`
	Username       string        `json:"username"`
	RoleName       string        `json:"role_name"`
	AlreadyApplied bool          `json:"already_applied,omitempty"`
	FailedSteps    []StepFailure `json:"failed_steps,omitempty"`
}

// PermissionService assigns and revokes role membership for
// principals, executing exclusively through the pool manager.
type PermissionService struct {
	pools    *connpool.Manager
	identity IdentityValidator
}

// NewPermissionService creates a permission service.
func NewPermissionService(pools *connpool.Manager, identity IdentityValidator) *PermissionService {
	return &PermissionService{
		pools:    pools,
		identity: identity,
	}
}

// quoteIdent renders a safely quoted SQL identifier. Identifiers cannot
// be parameterized, so everything embedded in statement text goes
// through here.
func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Assign grants the role in the grant to its principal.
//
// Preconditions are checked against the live database: the principal
// must be recognized, the schema (when named) must exist, and the role
// must exist even if created out of band. Granting an already-held role
// succeeds without executing SQL.
func (s *PermissionService) Assign(ctx context.Context, key connpool.PoolKey, grant PrincipalGrant) (*Result, error) {
	if err := roledef.ValidateIdentifier(grant.RoleName, "role name"); err != nil {
		return nil, err
	}

	username := s.identity.NormalizePrincipalName(grant.Username)
	result := &Result{Username: username, RoleName: grant.RoleName}

	err := s.pools.WithConn(ctx, key, func(conn *pgxpool.Conn) error {
		if err := s.checkPreconditions(ctx, conn, username, grant); err != nil {
			return err
		}

		held, err := dbcheck.HasRole(ctx, conn, username, grant.RoleName)
		if err != nil {
			return err
		}
		if held {
			result.Success = true
			result.AlreadyApplied = true
			result.Message = fmt.Sprintf("user %s already has role %s", username, grant.RoleName)
			return nil
		}

		grantSQL := fmt.Sprintf("GRANT %s TO %s", quoteIdent(grant.RoleName), quoteIdent(username))
		if _, err := conn.Exec(ctx, grantSQL); err != nil {
			return fmt.Errorf("failed to grant role %s to %s: %w", grant.RoleName, username, err)
		}

		result.Success = true
		result.Message = fmt.Sprintf("role %s assigned to user %s", grant.RoleName, username)
		slog.Info("assigned role", "scope", key.String(), "role", grant.RoleName, "user", username)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PermissionService) checkPreconditions(ctx context.Context, q dbcheck.Querier, username string, grant PrincipalGrant) error {
	recognized, reason, err := s.identity.IsRecognizedPrincipal(ctx, q, username)
	if err != nil {
		return err
	}
	if !recognized {
		return &PreconditionError{Reason: reason}
	}

	if grant.SchemaName != "" {
		if err := roledef.ValidateSchemaName(grant.SchemaName); err != nil {
			return err
		}
		exists, err := dbcheck.SchemaExists(ctx, q, grant.SchemaName)
		if err != nil {
			return err
		}
		if !exists {
			return &PreconditionError{Reason: fmt.Sprintf("schema %q does not exist", grant.SchemaName)}
		}
	}

	exists, err := dbcheck.RoleExists(ctx, q, grant.RoleName)
	if err != nil {
		return err
	}
	if !exists {
		return &PreconditionError{Reason: fmt.Sprintf("role %q does not exist", grant.RoleName)}
	}
	return nil
}

// objectRevokeStatements strips object-level privileges for existing
// objects in the schema, plus the default-privilege entries so future
// objects are unaffected by the departing grant.
func objectRevokeStatements(schema, username string) []string {
	qs, qu := quoteIdent(schema), quoteIdent(username)
	return []string{
		fmt.Sprintf("REVOKE ALL PRIVILEGES ON ALL TABLES IN SCHEMA %s FROM %s", qs, qu),
		fmt.Sprintf("REVOKE ALL PRIVILEGES ON ALL SEQUENCES IN SCHEMA %s FROM %s", qs, qu),
		fmt.Sprintf("REVOKE ALL PRIVILEGES ON ALL ROUTINES IN SCHEMA %s FROM %s", qs, qu),
		fmt.Sprintf("REVOKE ALL PRIVILEGES ON SCHEMA %s FROM %s", qs, qu),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s REVOKE ALL PRIVILEGES ON TABLES FROM %s", qs, qu),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s REVOKE ALL PRIVILEGES ON SEQUENCES FROM %s", qs, qu),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s REVOKE ALL PRIVILEGES ON ROUTINES FROM %s", qs, qu),
	}
}

// Revoke removes the principal's role membership. Revoking an unheld
// role is a success, not an error. When RevokeObjectPermissions is set,
// object-level and default privileges for the schema are stripped as
// well; each of those statements is best-effort, and failures are
// collected into a *PartialFailureError alongside the partial Result.
func (s *PermissionService) Revoke(ctx context.Context, key connpool.PoolKey, grant PrincipalGrant) (*Result, error) {
	if err := roledef.ValidateIdentifier(grant.RoleName, "role name"); err != nil {
		return nil, err
	}
	if grant.RevokeObjectPermissions {
		if grant.SchemaName == "" {
			return nil, &PreconditionError{Reason: "schema_name is required to revoke object permissions"}
		}
		if err := roledef.ValidateSchemaName(grant.SchemaName); err != nil {
			return nil, err
		}
	}

	username := s.identity.NormalizePrincipalName(grant.Username)
	result := &Result{Username: username, RoleName: grant.RoleName}
	var failed []StepFailure

	err := s.pools.WithConn(ctx, key, func(conn *pgxpool.Conn) error {
		exists, err := dbcheck.RoleExists(ctx, conn, grant.RoleName)
		if err != nil {
			return err
		}
		if !exists {
			return &PreconditionError{Reason: fmt.Sprintf("role %q does not exist", grant.RoleName)}
		}

		held, err := dbcheck.HasRole(ctx, conn, username, grant.RoleName)
		if err != nil {
			return err
		}
		if held {
			revokeSQL := fmt.Sprintf("REVOKE %s FROM %s", quoteIdent(grant.RoleName), quoteIdent(username))
			if _, err := conn.Exec(ctx, revokeSQL); err != nil {
				failed = append(failed, StepFailure{Step: "revoke membership", Reason: err.Error()})
			}
		} else {
			result.AlreadyApplied = true
		}

		if grant.RevokeObjectPermissions {
			for _, statement := range objectRevokeStatements(grant.SchemaName, username) {
				if _, err := conn.Exec(ctx, statement); err != nil {
					// Ownership constraints on the managed service make
					// some object classes unrevokable; record and move on.
					slog.Warn("revoke step failed", "scope", key.String(), "user", username, "err", err)
					failed = append(failed, StepFailure{Step: statement, Reason: err.Error()})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.FailedSteps = failed
	if len(failed) > 0 {
		result.Message = fmt.Sprintf("revoke partially succeeded for user %s: %d steps failed", username, len(failed))
		return result, &PartialFailureError{Steps: failed}
	}
	result.Success = true
	result.Message = fmt.Sprintf("role %s revoked from user %s", grant.RoleName, username)
	slog.Info("revoked role", "scope", key.String(), "role", grant.RoleName, "user", username)
	return result, nil
}

// UpdatePermissions moves a principal to a single permission tier for a
// schema: every managed role with the schema prefix is revoked, then
// the {database}_{schema}_{tier} role is granted.
func (s *PermissionService) UpdatePermissions(ctx context.Context, key connpool.PoolKey, username, tier, schema string) (*Result, error) {
	if err := roledef.ValidateIdentifier(tier, "permission tier"); err != nil {
		return nil, err
	}
	if err := roledef.ValidateSchemaName(schema); err != nil {
		return nil, err
	}

	normalized := s.identity.NormalizePrincipalName(username)
	targetRole := fmt.Sprintf("%s_%s_%s", key.DatabaseName, schema, tier)
	prefix := fmt.Sprintf("%s_%s_", key.DatabaseName, schema)

	err := s.pools.WithConn(ctx, key, func(conn *pgxpool.Conn) error {
		held, err := dbcheck.UserRoles(ctx, conn, normalized, prefix)
		if err != nil {
			return err
		}
		for _, role := range held {
			revokeSQL := fmt.Sprintf("REVOKE %s FROM %s", quoteIdent(role), quoteIdent(normalized))
			if _, err := conn.Exec(ctx, revokeSQL); err != nil {
				return fmt.Errorf("failed to revoke role %s from %s: %w", role, normalized, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Assign(ctx, key, PrincipalGrant{
		Username:   username,
		RoleName:   targetRole,
		SchemaName: schema,
	})
}

// ListUsersAndRoles lists principals holding managed roles for the
// schema, including the database-wide monitor role.
func (s *PermissionService) ListUsersAndRoles(ctx context.Context, key connpool.PoolKey, schema string) ([]dbcheck.UserAndRoles, error) {
	if err := roledef.ValidateSchemaName(schema); err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("%s_%s_", key.DatabaseName, schema)
	monitorRole := fmt.Sprintf("%s_monitor", key.DatabaseName)

	var users []dbcheck.UserAndRoles
	err := s.pools.WithConn(ctx, key, func(conn *pgxpool.Conn) error {
		var err error
		users, err = dbcheck.SchemaUsersAndRoles(ctx, conn, prefix, monitorRole)
		return err
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}
