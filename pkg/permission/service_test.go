package permission

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tendant/pg-role-manager/pkg/connpool"
	"github.com/tendant/pg-role-manager/pkg/registry"
	"github.com/tendant/pg-role-manager/pkg/roledef"
	"github.com/tendant/pg-role-manager/pkg/rolemgr"
)

const testPrincipal = "svc-test@acme-prod.iam"

func testPoolKey() connpool.PoolKey {
	return connpool.PoolKey{
		ProjectID:    "acme-prod",
		Region:       "us-central1",
		InstanceName: "sales-db",
		DatabaseName: "sales",
	}
}

// setupTestEnvironment starts a PostgreSQL container, converges the
// standard roles for the reporting schema, and provisions an IAM-style
// login user.
func setupTestEnvironment(t *testing.T) (*PermissionService, connpool.PoolKey, func()) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("sales"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("pwd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	manager := connpool.NewManager(
		connpool.DefaultConfig(),
		connpool.StaticCredentialSource{User: "postgres", Password: "pwd"},
		connpool.WithConnStringFunc(func(key connpool.PoolKey, user, password string) string {
			return connString
		}),
	)

	key := testPoolKey()
	err = manager.WithTx(ctx, key, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS reporting"); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "CREATE ROLE "+quoteIdent(testPrincipal)+" LOGIN")
		return err
	})
	require.NoError(t, err)

	plugins := roledef.NewRegistry()
	plugins.Register(roledef.NewStandardRolePlugin())
	roleService := rolemgr.NewRoleService(plugins, registry.NewInMemRegistryRepository(), manager)
	result, err := roleService.Initialize(ctx, key, "reporting", false)
	require.NoError(t, err)
	require.Empty(t, result.Failed)

	service := NewPermissionService(manager, IAMIdentityValidator{})

	cleanup := func() {
		manager.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return service, key, cleanup
}

func TestAssignAndListRoles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	service, key, cleanup := setupTestEnvironment(t)
	defer cleanup()
	ctx := context.Background()

	grant := PrincipalGrant{
		Username:   testPrincipal + ".gserviceaccount.com",
		RoleName:   "sales_reporting_reader",
		SchemaName: "reporting",
	}

	result, err := service.Assign(ctx, key, grant)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.AlreadyApplied)
	assert.Equal(t, testPrincipal, result.Username, "principal name is normalized")

	// Granting an already-held role is a no-op success.
	again, err := service.Assign(ctx, key, grant)
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.True(t, again.AlreadyApplied)

	users, err := service.ListUsersAndRoles(ctx, key, "reporting")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, testPrincipal, users[0].Username)
	assert.Equal(t, []string{"sales_reporting_reader"}, users[0].Roles)
}

func TestAssignPreconditions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	service, key, cleanup := setupTestEnvironment(t)
	defer cleanup()
	ctx := context.Background()

	var preconditionErr *PreconditionError

	t.Run("unknown principal", func(t *testing.T) {
		_, err := service.Assign(ctx, key, PrincipalGrant{
			Username: "nobody@acme-prod.iam",
			RoleName: "sales_reporting_reader",
		})
		require.ErrorAs(t, err, &preconditionErr)
	})

	t.Run("superuser principal", func(t *testing.T) {
		_, err := service.Assign(ctx, key, PrincipalGrant{
			Username: "postgres",
			RoleName: "sales_reporting_reader",
		})
		require.ErrorAs(t, err, &preconditionErr)
	})

	t.Run("missing role", func(t *testing.T) {
		_, err := service.Assign(ctx, key, PrincipalGrant{
			Username: testPrincipal,
			RoleName: "sales_reporting_owner",
		})
		require.ErrorAs(t, err, &preconditionErr)
	})

	t.Run("missing schema", func(t *testing.T) {
		_, err := service.Assign(ctx, key, PrincipalGrant{
			Username:   testPrincipal,
			RoleName:   "sales_reporting_reader",
			SchemaName: "warehouse",
		})
		require.ErrorAs(t, err, &preconditionErr)
	})

	t.Run("malformed role name", func(t *testing.T) {
		_, err := service.Assign(ctx, key, PrincipalGrant{
			Username: testPrincipal,
			RoleName: "bad;name",
		})
		var identifierErr *roledef.InvalidIdentifierError
		require.ErrorAs(t, err, &identifierErr, "malformed identifiers are rejected before any SQL runs")
	})
}

func TestRevoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	service, key, cleanup := setupTestEnvironment(t)
	defer cleanup()
	ctx := context.Background()

	grant := PrincipalGrant{
		Username:   testPrincipal,
		RoleName:   "sales_reporting_writer",
		SchemaName: "reporting",
	}
	_, err := service.Assign(ctx, key, grant)
	require.NoError(t, err)

	result, err := service.Revoke(ctx, key, grant)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.AlreadyApplied)

	// Revoking an unheld role succeeds as a no-op.
	again, err := service.Revoke(ctx, key, grant)
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.True(t, again.AlreadyApplied)

	users, err := service.ListUsersAndRoles(ctx, key, "reporting")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRevokeWithObjectPermissions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	service, key, cleanup := setupTestEnvironment(t)
	defer cleanup()
	ctx := context.Background()

	grant := PrincipalGrant{
		Username:                testPrincipal,
		RoleName:                "sales_reporting_reader",
		SchemaName:              "reporting",
		RevokeObjectPermissions: true,
	}
	_, err := service.Assign(ctx, key, grant)
	require.NoError(t, err)

	result, err := service.Revoke(ctx, key, grant)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.FailedSteps)

	// Without a schema there is nothing to scope the strip to.
	_, err = service.Revoke(ctx, key, PrincipalGrant{
		Username:                testPrincipal,
		RoleName:                "sales_reporting_reader",
		RevokeObjectPermissions: true,
	})
	var preconditionErr *PreconditionError
	require.ErrorAs(t, err, &preconditionErr)
}

func TestRevokeRejectsSchemaBeforeAnySQL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	service, key, cleanup := setupTestEnvironment(t)
	defer cleanup()
	ctx := context.Background()

	_, err := service.Assign(ctx, key, PrincipalGrant{
		Username:   testPrincipal,
		RoleName:   "sales_reporting_reader",
		SchemaName: "reporting",
	})
	require.NoError(t, err)

	// A reserved schema name fails validation up front; the membership
	// revoke must not have run.
	_, err = service.Revoke(ctx, key, PrincipalGrant{
		Username:                testPrincipal,
		RoleName:                "sales_reporting_reader",
		SchemaName:              "pg_catalog",
		RevokeObjectPermissions: true,
	})
	var identifierErr *roledef.InvalidIdentifierError
	require.ErrorAs(t, err, &identifierErr)

	users, err := service.ListUsersAndRoles(ctx, key, "reporting")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, []string{"sales_reporting_reader"}, users[0].Roles)
}

func TestUpdatePermissions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	service, key, cleanup := setupTestEnvironment(t)
	defer cleanup()
	ctx := context.Background()

	_, err := service.Assign(ctx, key, PrincipalGrant{
		Username:   testPrincipal,
		RoleName:   "sales_reporting_reader",
		SchemaName: "reporting",
	})
	require.NoError(t, err)

	// Moving to the writer tier revokes the reader membership first.
	result, err := service.UpdatePermissions(ctx, key, testPrincipal, "writer", "reporting")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "sales_reporting_writer", result.RoleName)

	users, err := service.ListUsersAndRoles(ctx, key, "reporting")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, []string{"sales_reporting_writer"}, users[0].Roles)
}
