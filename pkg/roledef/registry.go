package roledef

import (
	"fmt"
	"log/slog"
	"sync"
)

// Plugin produces role definitions for a (database, schema) pair.
// Built-in and custom plugins are treated uniformly.
type Plugin interface {
	Name() string
	Version() string
	RoleDefinitions(database, schema string) []RoleDefinition
}

// ConflictPolicy controls what happens when two plugins emit a role
// definition with the same name.
type ConflictPolicy int

const (
	// ConflictWarn keeps the definition from the last-registered plugin
	// and logs a warning.
	ConflictWarn ConflictPolicy = iota
	// ConflictReject fails aggregation with a *ConflictError.
	ConflictReject
)

// Registry aggregates role plugins in registration order.
//
// Registries are explicitly constructed, passed-by-reference services:
// build one at process start, register plugins, and share it.
type Registry struct {
	mu      sync.RWMutex
	policy  ConflictPolicy
	plugins []Plugin
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithConflictPolicy sets the duplicate-name policy.
func WithConflictPolicy(policy ConflictPolicy) RegistryOption {
	return func(r *Registry) {
		r.policy = policy
	}
}

// NewRegistry creates an empty plugin registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends a plugin. A plugin re-registered under the same name
// replaces the earlier registration.
func (r *Registry) Register(plugin Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.plugins {
		if existing.Name() == plugin.Name() {
			slog.Warn("plugin already registered, replacing", "plugin", plugin.Name())
			r.plugins[i] = plugin
			return
		}
	}
	r.plugins = append(r.plugins, plugin)
	slog.Info("registered role plugin", "plugin", plugin.Name(), "version", plugin.Version())
}

// Plugins returns the registered plugins in registration order.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// DefinitionsFor aggregates, deduplicates, and validates the candidate
// definitions of every registered plugin for the given database and
// schema. The returned slice preserves aggregation order; callers that
// need execution order should TopoSort it.
func (r *Registry) DefinitionsFor(database, schema string) ([]RoleDefinition, error) {
	if err := ValidateIdentifier(database, "database name"); err != nil {
		return nil, err
	}
	if err := ValidateSchemaName(schema); err != nil {
		return nil, err
	}

	r.mu.RLock()
	plugins := make([]Plugin, len(r.plugins))
	copy(plugins, r.plugins)
	r.mu.RUnlock()

	var defs []RoleDefinition
	source := make(map[string]string) // role name -> plugin name
	index := make(map[string]int)     // role name -> position in defs

	for _, plugin := range plugins {
		for _, def := range plugin.RoleDefinitions(database, schema) {
			if prev, ok := source[def.Name]; ok {
				if r.policy == ConflictReject {
					return nil, &ConflictError{Role: def.Name, Plugins: []string{prev, plugin.Name()}}
				}
				slog.Warn("duplicate role definition, last-registered plugin wins",
					"role", def.Name, "replaced", prev, "winner", plugin.Name())
				defs[index[def.Name]] = def
				source[def.Name] = plugin.Name()
				continue
			}
			source[def.Name] = plugin.Name()
			index[def.Name] = len(defs)
			defs = append(defs, def)
		}
	}

	for _, def := range defs {
		if err := ValidateDefinition(def); err != nil {
			return nil, fmt.Errorf("plugin %s: %w", source[def.Name], err)
		}
	}

	// Reject cycles against the full candidate set before anything is
	// handed to the convergence engine.
	if _, err := TopoSort(defs); err != nil {
		return nil, err
	}
	return defs, nil
}
