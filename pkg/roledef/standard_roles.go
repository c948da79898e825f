package roledef

import (
	"fmt"
	"time"
)

const standardRolesVersion = "1.0.0"

// StandardRolePlugin provides the built-in role tiers every managed
// database gets: reader, writer, admin, and analyst per schema, plus a
// database-wide monitor role.
//
// Naming convention:
//   - {database}_{schema}_{tier} for schema-scoped roles
//   - {database}_{tier} for database-wide roles
type StandardRolePlugin struct{}

// NewStandardRolePlugin creates the built-in standard roles plugin.
func NewStandardRolePlugin() *StandardRolePlugin {
	return &StandardRolePlugin{}
}

func (p *StandardRolePlugin) Name() string {
	return "standard_roles"
}

func (p *StandardRolePlugin) Version() string {
	return standardRolesVersion
}

// RoleDefinitions returns the standard role set for a database/schema.
func (p *StandardRolePlugin) RoleDefinitions(database, schema string) []RoleDefinition {
	return []RoleDefinition{
		p.readerRole(database, schema),
		p.writerRole(database, schema),
		p.adminRole(database, schema),
		p.analystRole(database, schema),
		p.monitorRole(database),
	}
}

// createRoleIfNotExists renders the idempotent CREATE ROLE form.
// PostgreSQL has no CREATE ROLE IF NOT EXISTS, so the existence check
// runs in a DO block.
func createRoleIfNotExists(name string) string {
	return fmt.Sprintf(
		"DO $$ BEGIN IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = '%s') THEN CREATE ROLE %s NOLOGIN; END IF; END $$;",
		name, name)
}

func newStandardDefinition(name string, commands []string, inherits, nativeRoles []string, description string) RoleDefinition {
	return RoleDefinition{
		Name:        name,
		Version:     standardRolesVersion,
		Checksum:    ComputeChecksum(commands),
		SQLCommands: commands,
		Inherits:    inherits,
		NativeRoles: nativeRoles,
		Description: description,
		Status:      StatusActive,
		CreatedAt:   time.Now().UTC(),
	}
}

func (p *StandardRolePlugin) readerRole(database, schema string) RoleDefinition {
	name := fmt.Sprintf("%s_%s_reader", database, schema)
	commands := []string{
		createRoleIfNotExists(name),
		fmt.Sprintf("GRANT USAGE ON SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("GRANT SELECT ON ALL TABLES IN SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("GRANT SELECT ON ALL SEQUENCES IN SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT SELECT ON TABLES TO %s;", schema, name),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT SELECT ON SEQUENCES TO %s;", schema, name),
	}
	return newStandardDefinition(name, commands, nil, nil,
		fmt.Sprintf("Read-only access to the %s schema of %s", schema, database))
}

func (p *StandardRolePlugin) writerRole(database, schema string) RoleDefinition {
	name := fmt.Sprintf("%s_%s_writer", database, schema)
	reader := fmt.Sprintf("%s_%s_reader", database, schema)
	commands := []string{
		createRoleIfNotExists(name),
		fmt.Sprintf("GRANT %s TO %s;", reader, name),
		fmt.Sprintf("GRANT INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("GRANT USAGE ON ALL SEQUENCES IN SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT INSERT, UPDATE, DELETE ON TABLES TO %s;", schema, name),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT USAGE ON SEQUENCES TO %s;", schema, name),
	}
	return newStandardDefinition(name, commands, []string{reader}, nil,
		fmt.Sprintf("Read-write access to the %s schema of %s", schema, database))
}

func (p *StandardRolePlugin) adminRole(database, schema string) RoleDefinition {
	name := fmt.Sprintf("%s_%s_admin", database, schema)
	writer := fmt.Sprintf("%s_%s_writer", database, schema)
	commands := []string{
		createRoleIfNotExists(name),
		fmt.Sprintf("GRANT %s TO %s;", writer, name),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON ALL TABLES IN SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON ALL SEQUENCES IN SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("GRANT EXECUTE ON ALL ROUTINES IN SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT ALL PRIVILEGES ON TABLES TO %s;", schema, name),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT ALL PRIVILEGES ON SEQUENCES TO %s;", schema, name),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT EXECUTE ON ROUTINES TO %s;", schema, name),
	}
	return newStandardDefinition(name, commands, []string{writer}, nil,
		fmt.Sprintf("Full object access to the %s schema of %s", schema, database))
}

func (p *StandardRolePlugin) analystRole(database, schema string) RoleDefinition {
	name := fmt.Sprintf("%s_%s_analyst", database, schema)
	reader := fmt.Sprintf("%s_%s_reader", database, schema)
	commands := []string{
		createRoleIfNotExists(name),
		fmt.Sprintf("GRANT %s TO %s;", reader, name),
		fmt.Sprintf("GRANT pg_read_all_stats TO %s;", name),
		fmt.Sprintf("GRANT EXECUTE ON ALL ROUTINES IN SCHEMA %s TO %s;", schema, name),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT EXECUTE ON ROUTINES TO %s;", schema, name),
	}
	return newStandardDefinition(name, commands, []string{reader}, []string{"pg_read_all_stats"},
		fmt.Sprintf("Read access plus statistics for the %s schema of %s", schema, database))
}

func (p *StandardRolePlugin) monitorRole(database string) RoleDefinition {
	name := fmt.Sprintf("%s_monitor", database)
	commands := []string{
		createRoleIfNotExists(name),
		fmt.Sprintf("GRANT pg_monitor TO %s;", name),
		fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s;", database, name),
	}
	return newStandardDefinition(name, commands, nil, []string{"pg_monitor"},
		fmt.Sprintf("Database-wide monitoring role for %s", database))
}
