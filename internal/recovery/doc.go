// Package recovery reclaims work lost to crashes and slow shutdowns.
//
// A sweep resets items stuck in processing past the staleness threshold,
// expires sessions that have gone inactive, and restarts processors for
// sessions with unconsumed backlog, oldest first, bounded by a session
// limit. The startup sweep uses a larger cap than the periodic one. No
// item may remain permanently in processing across a restart; the sweep is
// mandatory at startup and periodically thereafter.
package recovery
