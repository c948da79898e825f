package dbcheck

// cloudSQLSystemRoles are roles Cloud SQL provisions on every instance.
// They are excluded from listings and from principal management.
var cloudSQLSystemRoles = map[string]struct{}{
	"postgres":                       {},
	"cloudsqlsuperuser":              {},
	"cloudsqladmin":                  {},
	"cloudsqlreplica":                {},
	"cloudsqlagent":                  {},
	"cloudsqlconnpooladmin":          {},
	"cloudsqlimportexport":           {},
	"cloudsqllogical":                {},
	"cloudsqlobservability":          {},
	"cloudsqliamgroup":               {},
	"cloudsqliamgroupserviceaccount": {},
	"cloudsqliamgroupuser":           {},
	"cloudsqliamserviceaccount":      {},
	"cloudsqliamuser":                {},
	"cloudsqlinactiveuser":           {},
}

// postgresSystemRoles are the predefined roles that exist in every
// PostgreSQL cluster.
var postgresSystemRoles = map[string]struct{}{
	"pg_database_owner":         {},
	"pg_monitor":                {},
	"pg_read_all_data":          {},
	"pg_read_all_settings":      {},
	"pg_read_all_stats":         {},
	"pg_read_server_files":      {},
	"pg_write_all_data":         {},
	"pg_write_server_files":     {},
	"pg_execute_server_program": {},
	"pg_signal_backend":         {},
	"pg_stat_scan_tables":       {},
	"pg_checkpoint":             {},
}

// IsSystemRole reports whether roleName is a Cloud SQL or PostgreSQL
// system role.
func IsSystemRole(roleName string) bool {
	if _, ok := cloudSQLSystemRoles[roleName]; ok {
		return true
	}
	_, ok := postgresSystemRoles[roleName]
	return ok
}

// SystemRoles returns all system role names, for use in exclusion
// filters.
func SystemRoles() []string {
	out := make([]string, 0, len(cloudSQLSystemRoles)+len(postgresSystemRoles))
	for name := range cloudSQLSystemRoles {
		out = append(out, name)
	}
	for name := range postgresSystemRoles {
		out = append(out, name)
	}
	return out
}
