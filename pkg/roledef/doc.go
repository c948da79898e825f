// Package roledef provides the role definition model and the plugin
// registry for pg-role-manager.
//
// A RoleDefinition is a named, versioned unit of PostgreSQL role
// configuration: an ordered list of idempotent SQL commands plus the
// inheritance and native-role metadata needed to order execution.
// Definitions are produced on demand by plugins; only their applied
// state is persisted (see pkg/registry).
//
// # Plugins
//
// A plugin implements the Plugin interface and produces definitions for
// a given (database, schema) pair. Built-in and custom plugins are
// treated uniformly; they are aggregated through an explicit Registry
// constructed at process start:
//
//	reg := roledef.NewRegistry()
//	reg.Register(roledef.NewStandardRolePlugin())
//	defs, err := reg.DefinitionsFor("sales", "orders")
//
// When two plugins emit a definition with the same name, the
// last-registered plugin wins and a warning is logged. Construct the
// registry with roledef.WithConflictPolicy(roledef.ConflictReject) to
// turn collisions into hard errors instead.
//
// All definitions returned by DefinitionsFor have been validated:
// identifier constraints, non-empty command lists, no dangerous
// permissions, and an acyclic inheritance graph across the whole
// candidate set.
package roledef
