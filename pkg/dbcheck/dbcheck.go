package dbcheck

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Querier is the minimal query surface dbcheck needs. *pgxpool.Conn,
// *pgxpool.Pool, pgx.Tx, and *pgx.Conn all satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RoleExists reports whether a role exists in the database.
func RoleExists(ctx context.Context, q Querier, roleName string) (bool, error) {
	var one int
	err := q.QueryRow(ctx, "SELECT 1 FROM pg_roles WHERE rolname = $1", roleName).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check role %q: %w", roleName, err)
	}
	return true, nil
}

// SchemaExists reports whether a schema exists in the connected
// database.
func SchemaExists(ctx context.Context, q Querier, schemaName string) (bool, error) {
	var one int
	err := q.QueryRow(ctx, "SELECT 1 FROM information_schema.schemata WHERE schema_name = $1", schemaName).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check schema %q: %w", schemaName, err)
	}
	return true, nil
}

// DatabaseExists reports whether a database exists on the instance.
func DatabaseExists(ctx context.Context, q Querier, databaseName string) (bool, error) {
	var one int
	err := q.QueryRow(ctx, "SELECT 1 FROM pg_database WHERE datname = $1", databaseName).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check database %q: %w", databaseName, err)
	}
	return true, nil
}

// HasRole reports whether username is a direct member of roleName.
func HasRole(ctx context.Context, q Querier, username, roleName string) (bool, error) {
	var one int
	err := q.QueryRow(ctx, `
		SELECT 1 FROM pg_roles r
		JOIN pg_auth_members m ON r.oid = m.roleid
		JOIN pg_roles u ON m.member = u.oid
		WHERE u.rolname = $1 AND r.rolname = $2`,
		username, roleName).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check membership of %q in %q: %w", username, roleName, err)
	}
	return true, nil
}

// UserRoles returns the roles username is a member of, optionally
// restricted to names with the given prefix.
func UserRoles(ctx context.Context, q Querier, username, prefix string) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT r.rolname FROM pg_roles r
		JOIN pg_auth_members m ON r.oid = m.roleid
		JOIN pg_roles u ON m.member = u.oid
		WHERE u.rolname = $1 AND r.rolname LIKE $2
		ORDER BY r.rolname`,
		username, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list roles for %q: %w", username, err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role name: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UserAndRoles pairs a principal with the managed roles it holds.
type UserAndRoles struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// SchemaUsersAndRoles lists login-capable principals holding roles with
// the given prefix (schema-scoped) or the exact extra role name
// (database-wide), grouped per principal.
func SchemaUsersAndRoles(ctx context.Context, q Querier, prefix, extraRole string) ([]UserAndRoles, error) {
	rows, err := q.Query(ctx, `
		SELECT u.rolname, r.rolname FROM pg_roles r
		JOIN pg_auth_members m ON r.oid = m.roleid
		JOIN pg_roles u ON m.member = u.oid
		WHERE u.rolcanlogin AND (r.rolname LIKE $1 OR r.rolname = $2)
		ORDER BY u.rolname, r.rolname`,
		likePrefix(prefix), extraRole)
	if err != nil {
		return nil, fmt.Errorf("failed to list users and roles: %w", err)
	}
	defer rows.Close()

	var out []UserAndRoles
	for rows.Next() {
		var username, role string
		if err := rows.Scan(&username, &role); err != nil {
			return nil, fmt.Errorf("failed to scan user role row: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].Username != username {
			out = append(out, UserAndRoles{Username: username})
		}
		out[len(out)-1].Roles = append(out[len(out)-1].Roles, role)
	}
	return out, rows.Err()
}

// likePrefix escapes LIKE metacharacters in prefix and appends %.
func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}

// IsIAMUser reports whether username is a manageable IAM principal:
// existing, login-capable, not a superuser, and not a system role.
// The reason explains a negative result.
func IsIAMUser(ctx context.Context, q Querier, username string) (ok bool, reason string, err error) {
	var rolname string
	var canLogin, isSuper bool
	queryErr := q.QueryRow(ctx,
		"SELECT rolname, rolcanlogin, rolsuper FROM pg_roles WHERE rolname = $1",
		username).Scan(&rolname, &canLogin, &isSuper)
	if queryErr != nil {
		if errors.Is(queryErr, pgx.ErrNoRows) {
			return false, fmt.Sprintf("user %q does not exist", username), nil
		}
		return false, "", fmt.Errorf("failed to look up user %q: %w", username, queryErr)
	}

	switch {
	case IsSystemRole(rolname):
		return false, fmt.Sprintf("%q is a system role", rolname), nil
	case strings.HasPrefix(rolname, "pg_") || strings.HasPrefix(rolname, "cloudsql"):
		return false, fmt.Sprintf("%q is a reserved role", rolname), nil
	case isSuper:
		return false, fmt.Sprintf("%q is a superuser", rolname), nil
	case !canLogin:
		return false, fmt.Sprintf("%q cannot log in", rolname), nil
	}
	return true, "", nil
}

// NormalizeServiceAccountName converts a service account email to the
// PostgreSQL role name Cloud SQL provisions for it. The IAM integration
// strips the .gserviceaccount.com suffix to respect the 63-byte
// identifier limit:
//
//	my-service@project.iam.gserviceaccount.com -> my-service@project.iam
func NormalizeServiceAccountName(principal string) string {
	return strings.TrimSuffix(principal, ".gserviceaccount.com")
}
