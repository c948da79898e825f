// Package rolemgr implements the role convergence engine.
//
// Initialize reconciles the candidate definitions produced by the
// plugin registry with the last-applied state in the registry store:
// it computes a create/update/skip partition by checksum, executes the
// pending roles' SQL in inheritance order (one transaction per role),
// and writes the resulting state back so the registry always reflects
// what was actually applied.
//
// Re-running Initialize with unchanged plugin definitions is a no-op:
// every role lands in the skipped partition and no SQL executes.
package rolemgr
