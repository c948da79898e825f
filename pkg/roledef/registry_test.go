package roledef

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlugin emits a fixed set of definitions regardless of scope.
type fakePlugin struct {
	name string
	defs []RoleDefinition
}

func (p *fakePlugin) Name() string    { return p.name }
func (p *fakePlugin) Version() string { return "0.1.0" }
func (p *fakePlugin) RoleDefinitions(database, schema string) []RoleDefinition {
	return p.defs
}

func TestRegistryAggregatesInRegistrationOrder(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakePlugin{name: "first", defs: []RoleDefinition{validDefinition()}})
	registry.Register(&fakePlugin{name: "second", defs: []RoleDefinition{defWithInherits("app_public_extra")}})

	defs, err := registry.DefinitionsFor("app", "public")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "app_public_reader", defs[0].Name)
	assert.Equal(t, "app_public_extra", defs[1].Name)
}

func TestRegistryLastRegisteredWinsOnConflict(t *testing.T) {
	base := validDefinition()
	override := validDefinition()
	override.Version = "2.0.0"

	registry := NewRegistry()
	registry.Register(&fakePlugin{name: "base", defs: []RoleDefinition{base}})
	registry.Register(&fakePlugin{name: "override", defs: []RoleDefinition{override}})

	defs, err := registry.DefinitionsFor("app", "public")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "2.0.0", defs[0].Version)
}

func TestRegistryConflictReject(t *testing.T) {
	registry := NewRegistry(WithConflictPolicy(ConflictReject))
	registry.Register(&fakePlugin{name: "base", defs: []RoleDefinition{validDefinition()}})
	registry.Register(&fakePlugin{name: "other", defs: []RoleDefinition{validDefinition()}})

	_, err := registry.DefinitionsFor("app", "public")
	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "app_public_reader", conflictErr.Role)
	assert.Equal(t, []string{"base", "other"}, conflictErr.Plugins)
}

func TestRegistryReRegisterReplacesPlugin(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakePlugin{name: "dup", defs: []RoleDefinition{validDefinition()}})
	registry.Register(&fakePlugin{name: "dup", defs: nil})

	assert.Len(t, registry.Plugins(), 1)

	defs, err := registry.DefinitionsFor("app", "public")
	require.NoError(t, err)
	assert.Empty(t, defs, "replacement plugin emits nothing")
}

func TestRegistryRejectsInvalidScope(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewStandardRolePlugin())

	_, err := registry.DefinitionsFor("app;--", "public")
	assert.Error(t, err)

	_, err = registry.DefinitionsFor("app", "pg_catalog")
	assert.Error(t, err)
}

func TestRegistryRejectsCyclicCandidates(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakePlugin{name: "cyclic", defs: []RoleDefinition{
		defWithInherits("a", "b"),
		defWithInherits("b", "a"),
	}})

	_, err := registry.DefinitionsFor("app", "public")
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestStandardRolePlugin(t *testing.T) {
	plugin := NewStandardRolePlugin()
	defs := plugin.RoleDefinitions("sales", "reporting")

	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
		assert.NoError(t, ValidateDefinition(def), def.Name)
	}
	assert.Equal(t, []string{
		"sales_reporting_reader",
		"sales_reporting_writer",
		"sales_reporting_admin",
		"sales_reporting_analyst",
		"sales_monitor",
	}, names)

	// The full set must topologically sort: writer after reader, admin
	// after writer.
	sorted, err := TopoSort(defs)
	require.NoError(t, err)
	assert.Less(t, indexOf(t, sorted, "sales_reporting_reader"), indexOf(t, sorted, "sales_reporting_writer"))
	assert.Less(t, indexOf(t, sorted, "sales_reporting_writer"), indexOf(t, sorted, "sales_reporting_admin"))
}
