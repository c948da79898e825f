// Package permission assigns and revokes database role membership for
// individual principals, with optional stripping of object-level
// privileges on revoke.
//
// Preconditions are validated against the live database, not the
// registry store, so roles created out of band are honored. Grant and
// revoke are idempotent: granting an already-held role or revoking an
// unheld one succeeds as a no-op.
package permission
