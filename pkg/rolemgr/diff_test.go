package rolemgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/pg-role-manager/pkg/registry"
	"github.com/tendant/pg-role-manager/pkg/roledef"
)

func candidate(name string, commands ...string) roledef.RoleDefinition {
	return roledef.RoleDefinition{
		Name:        name,
		Version:     "1.0.0",
		Checksum:    roledef.ComputeChecksum(commands),
		SQLCommands: commands,
	}
}

func storedState(def roledef.RoleDefinition) registry.RoleState {
	return registry.RoleState{
		Version:  def.Version,
		Checksum: def.Checksum,
		Status:   roledef.StatusActive,
	}
}

func TestDiffCreatesUnknownRoles(t *testing.T) {
	reader := candidate("app_public_reader", "CREATE ROLE app_public_reader NOLOGIN;")

	plan := Diff([]roledef.RoleDefinition{reader}, map[string]registry.RoleState{}, false)

	require.Len(t, plan.Create, 1)
	assert.Empty(t, plan.Update)
	assert.Empty(t, plan.Skip)
	assert.Equal(t, "app_public_reader", plan.Create[0].Name)
}

func TestDiffSkipsMatchingChecksums(t *testing.T) {
	reader := candidate("app_public_reader", "CREATE ROLE app_public_reader NOLOGIN;")
	stored := map[string]registry.RoleState{
		reader.Name: storedState(reader),
	}

	plan := Diff([]roledef.RoleDefinition{reader}, stored, false)

	assert.Empty(t, plan.Create)
	assert.Empty(t, plan.Update)
	require.Len(t, plan.Skip, 1)
	assert.Empty(t, plan.Pending())
}

func TestDiffUpdatesChangedChecksums(t *testing.T) {
	old := candidate("app_public_reader", "CREATE ROLE app_public_reader NOLOGIN;")
	changed := candidate("app_public_reader",
		"CREATE ROLE app_public_reader NOLOGIN;",
		"GRANT USAGE ON SCHEMA public TO app_public_reader;")
	stored := map[string]registry.RoleState{
		old.Name: storedState(old),
	}

	plan := Diff([]roledef.RoleDefinition{changed}, stored, false)

	assert.Empty(t, plan.Create)
	require.Len(t, plan.Update, 1)
	assert.Empty(t, plan.Skip)
}

func TestDiffForceUpdateOverridesSkip(t *testing.T) {
	reader := candidate("app_public_reader", "CREATE ROLE app_public_reader NOLOGIN;")
	stored := map[string]registry.RoleState{
		reader.Name: storedState(reader),
	}

	plan := Diff([]roledef.RoleDefinition{reader}, stored, true)

	assert.Empty(t, plan.Create)
	require.Len(t, plan.Update, 1)
	assert.Empty(t, plan.Skip)
}

func TestDiffPartitionsMixedSets(t *testing.T) {
	existing := candidate("app_public_reader", "CREATE ROLE app_public_reader NOLOGIN;")
	changed := candidate("app_public_writer", "GRANT INSERT ON ALL TABLES IN SCHEMA public TO app_public_writer;")
	fresh := candidate("app_public_admin", "CREATE ROLE app_public_admin NOLOGIN;")

	stored := map[string]registry.RoleState{
		existing.Name: storedState(existing),
		changed.Name:  {Version: "1.0.0", Checksum: "stale"},
	}

	plan := Diff([]roledef.RoleDefinition{existing, changed, fresh}, stored, false)

	require.Len(t, plan.Create, 1)
	require.Len(t, plan.Update, 1)
	require.Len(t, plan.Skip, 1)
	assert.Equal(t, "app_public_admin", plan.Create[0].Name)
	assert.Equal(t, "app_public_writer", plan.Update[0].Name)
	assert.Equal(t, "app_public_reader", plan.Skip[0].Name)
	assert.Len(t, plan.Pending(), 2)
}
