// Package registry tracks known sessions in memory and owns their processor
// handles.
//
// The Registry is the enforcement point for the single-active-processor
// invariant: AttachProcessor refuses to install a second handle while one is
// live, and every attach issues a fresh cancellation handle so a signalled
// handle from a previous run can never be observed by a restart. Stale
// sessions are expired through CleanupStale, which also fails their durable
// backlog.
//
// Registry state is in-memory only; durable session history lives in the
// store package.
package registry
