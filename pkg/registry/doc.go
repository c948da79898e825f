// Package registry persists the applied-role state for each managed
// database scope.
//
// The registry record is the source of truth for convergence: the role
// manager reads it before every pass, diffs candidate definitions
// against it by checksum, and writes it back atomically once SQL
// execution has finished. A record therefore always reflects the
// actually-applied state, never an optimistic projection.
//
// Three repository backends are provided: in-memory (tests and
// single-process use), file-based (JSON documents under a data
// directory), and PostgreSQL (JSONB documents in a control database).
// Writes are last-writer-wins at the document level.
package registry
