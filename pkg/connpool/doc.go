// Package connpool manages pooled PostgreSQL connections to many Cloud
// SQL databases, keyed for strict per-database isolation.
//
// Every other component executes SQL exclusively through this package.
// The pool index is the full four-part key (project, region, instance,
// database); two logical databases never share a pool, even on the same
// instance. Omitting the database name from the key would let
// operations against one database observe state from another, so the
// key type makes that impossible to express.
//
// # Usage
//
//	mgr := connpool.NewManager(connpool.DefaultConfig(), creds)
//	defer mgr.Close()
//
//	key := connpool.PoolKey{ProjectID: "p", Region: "r", InstanceName: "i", DatabaseName: "sales"}
//	err := mgr.WithConn(ctx, key, func(conn *pgxpool.Conn) error {
//		return conn.QueryRow(ctx, "SELECT 1").Scan(&n)
//	})
//
// Acquisition blocks only the calling goroutine, bounded by the
// configured acquire timeout; saturation surfaces as ErrPoolExhausted.
// Connections are liveness-probed before reuse and broken ones are
// replaced transparently until the retry budget runs out.
package connpool
