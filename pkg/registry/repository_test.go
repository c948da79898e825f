package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/pg-role-manager/pkg/roledef"
)

func testScope() Scope {
	return Scope{
		ProjectID:    "acme-prod",
		InstanceName: "sales-db",
		DatabaseName: "sales",
	}
}

func TestScopeDocumentID(t *testing.T) {
	assert.Equal(t, "acme-prod-sales-db-sales", testScope().DocumentID())

	other := testScope()
	other.DatabaseName = "billing"
	assert.NotEqual(t, testScope().DocumentID(), other.DocumentID(),
		"databases on the same instance must map to distinct documents")
}

// repositoryContract runs the behavior every backend must share.
func repositoryContract(t *testing.T, repo RegistryRepository) {
	ctx := context.Background()
	scope := testScope()

	_, err := repo.Get(ctx, scope)
	require.ErrorIs(t, err, ErrRecordNotFound)

	record := NewRecord(scope)
	record.Roles["sales_public_reader"] = RoleState{
		Version:   "1.0.0",
		Checksum:  "abc123",
		Status:    roledef.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Put(ctx, scope, record))

	loaded, err := repo.Get(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, scope, loaded.Scope())
	require.Contains(t, loaded.Roles, "sales_public_reader")
	assert.Equal(t, "abc123", loaded.Roles["sales_public_reader"].Checksum)

	// Touch replaces one role's state without disturbing the rest.
	state := loaded.Roles["sales_public_reader"]
	state.Status = roledef.StatusDeprecated
	require.NoError(t, repo.Touch(ctx, scope, "sales_public_reader", state))

	loaded, err = repo.Get(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, roledef.StatusDeprecated, loaded.Roles["sales_public_reader"].Status)

	entry := NewHistoryEntry("role_initialization", []string{"sales_public_reader"}, true, "created=1")
	require.NoError(t, repo.AppendHistory(ctx, scope, entry))

	loaded, err = repo.Get(ctx, scope)
	require.NoError(t, err)
	require.Len(t, loaded.History, 1)
	assert.Equal(t, entry.ID, loaded.History[0].ID)
	assert.Equal(t, "role_initialization", loaded.History[0].Action)

	// A second scope stays isolated.
	other := scope
	other.DatabaseName = "billing"
	_, err = repo.Get(ctx, other)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestInMemRegistryRepository(t *testing.T) {
	repositoryContract(t, NewInMemRegistryRepository())
}

func TestInMemRegistryRepositoryIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemRegistryRepository()
	scope := testScope()

	record := NewRecord(scope)
	require.NoError(t, repo.Put(ctx, scope, record))

	// Mutating a returned record must not leak into the store.
	loaded, err := repo.Get(ctx, scope)
	require.NoError(t, err)
	loaded.Roles["sneaky"] = RoleState{Checksum: "x"}

	reloaded, err := repo.Get(ctx, scope)
	require.NoError(t, err)
	assert.NotContains(t, reloaded.Roles, "sneaky")
}

func TestFileRegistryRepository(t *testing.T) {
	repo, err := NewFileRegistryRepository(t.TempDir())
	require.NoError(t, err)
	repositoryContract(t, repo)
}

func TestFileRegistryRepositorySurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	scope := testScope()

	repo, err := NewFileRegistryRepository(dir)
	require.NoError(t, err)

	record := NewRecord(scope)
	record.Roles["sales_public_reader"] = RoleState{Version: "1.0.0", Checksum: "abc123", Status: roledef.StatusActive}
	require.NoError(t, repo.Put(ctx, scope, record))

	reopened, err := NewFileRegistryRepository(dir)
	require.NoError(t, err)

	loaded, err := reopened.Get(ctx, scope)
	require.NoError(t, err)
	assert.Contains(t, loaded.Roles, "sales_public_reader")
}
