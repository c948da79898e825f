package roledef

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches valid unquoted PostgreSQL identifiers.
// 63 bytes is the server-side truncation limit (NAMEDATALEN - 1).
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// reservedKeywords are identifiers we refuse for role and schema names
// even though some of them are technically quotable.
var reservedKeywords = map[string]struct{}{
	"user": {}, "group": {}, "order": {}, "table": {}, "column": {},
	"index": {}, "view": {}, "schema": {}, "database": {}, "role": {},
	"grant": {}, "revoke": {}, "create": {}, "drop": {}, "alter": {},
	"select": {}, "insert": {}, "update": {}, "delete": {}, "from": {},
	"where": {}, "and": {}, "or": {}, "not": {}, "null": {}, "true": {},
	"false": {}, "public": {}, "all": {}, "any": {}, "as": {}, "asc": {},
	"desc": {}, "distinct": {}, "exists": {}, "in": {}, "is": {},
	"like": {}, "between": {}, "case": {}, "when": {}, "then": {},
	"else": {}, "end": {}, "begin": {}, "commit": {}, "rollback": {},
	"transaction": {}, "constraint": {}, "check": {}, "unique": {},
	"primary": {}, "key": {}, "foreign": {}, "references": {},
	"cascade": {}, "restrict": {}, "set": {}, "default": {}, "on": {},
}

// reservedSchemas cannot be managed through this service.
var reservedSchemas = map[string]struct{}{
	"information_schema": {},
	"pg_catalog":         {},
	"pg_toast":           {},
}

// dangerousPermissions are role attributes no managed definition may
// carry. LOGIN is allowed only in its NOLOGIN form.
var dangerousPermissions = []string{
	"SUPERUSER",
	"CREATEDB",
	"CREATEROLE",
	"REPLICATION",
	"BYPASSRLS",
	"LOGIN",
}

// dangerousPatterns are statement shapes outside the scope of role
// management.
var dangerousPatterns = []string{
	"ALTER SYSTEM",
	"CREATE EXTENSION",
	"DROP EXTENSION",
	"CREATE SCHEMA",
	"DROP SCHEMA",
	"CREATE DATABASE",
	"DROP DATABASE",
}

// ValidateIdentifier checks that name is a safe unquoted PostgreSQL
// identifier. Identifiers cannot be parameterized, so everything
// embedded in SQL text must pass this allow-list first.
func ValidateIdentifier(name, field string) error {
	if name == "" {
		return &InvalidIdentifierError{Field: field, Name: name, Reason: "must be a non-empty string"}
	}
	if !identifierPattern.MatchString(name) {
		return &InvalidIdentifierError{Field: field, Name: name,
			Reason: "must start with a letter or underscore, contain only letters, digits, or underscores, and be at most 63 characters"}
	}
	if _, ok := reservedKeywords[strings.ToLower(name)]; ok {
		return &InvalidIdentifierError{Field: field, Name: name, Reason: "reserved PostgreSQL keyword"}
	}
	return nil
}

// ValidateSchemaName applies identifier rules plus the schema-specific
// reserved list.
func ValidateSchemaName(name string) error {
	if err := ValidateIdentifier(name, "schema name"); err != nil {
		return err
	}
	if _, ok := reservedSchemas[strings.ToLower(name)]; ok {
		return &InvalidIdentifierError{Field: "schema name", Name: name, Reason: "reserved by PostgreSQL"}
	}
	return nil
}

// ValidateDefinition checks a single role definition: identifier
// constraints, a non-empty command list, a consistent checksum, and no
// dangerous permissions or statement shapes.
func ValidateDefinition(def RoleDefinition) error {
	var details []string

	if err := ValidateIdentifier(def.Name, "role name"); err != nil {
		details = append(details, err.Error())
	}
	if len(def.SQLCommands) == 0 {
		details = append(details, "sql_commands must not be empty")
	}
	if def.Version != "" {
		if _, err := def.SemVer(); err != nil {
			details = append(details, fmt.Sprintf("version %q is not a valid semantic version", def.Version))
		}
	} else {
		details = append(details, "version must not be empty")
	}
	if def.Checksum != "" && def.Checksum != ComputeChecksum(def.SQLCommands) {
		details = append(details, "checksum does not match sql_commands")
	}

	for _, command := range def.SQLCommands {
		upper := strings.ToUpper(command)
		for _, perm := range dangerousPermissions {
			if strings.Contains(upper, perm) && !(perm == "LOGIN" && strings.Contains(upper, "NOLOGIN")) {
				details = append(details, fmt.Sprintf("command contains dangerous permission %s", perm))
			}
		}
		for _, pattern := range dangerousPatterns {
			if strings.Contains(upper, pattern) {
				details = append(details, fmt.Sprintf("command contains dangerous pattern %s", pattern))
			}
		}
	}

	if len(details) > 0 {
		return &ValidationError{Role: def.Name, Details: details}
	}
	return nil
}
