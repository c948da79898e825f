// Package dbcheck provides precondition checks against a live
// PostgreSQL database: role, schema, and database existence, role
// membership, and IAM principal recognition.
//
// All functions take a Querier so they work with pooled connections,
// transactions, or plain pgx connections alike, and every query is
// parameterized.
package dbcheck
