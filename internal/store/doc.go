// Package store persists session work items in SQLite and exposes helpers
// for driving their lifecycle.
//
// The Store manages database connections, schema initialization, atomic
// claim-and-mark transitions, bounded retry accounting, stuck-item recovery,
// and the durable session history. Work items are FIFO per session; no
// ordering is guaranteed across sessions.
//
// Work items are transient records for in-flight processing; session history
// rows are never deleted. Schema changes bump the version in schema.go.
//
// Treat this package as the single source of truth for queue semantics; when
// you add new statuses or fields, update schema.sql and bump schemaVersion.
package store
