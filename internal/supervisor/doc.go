// Package supervisor runs session processors against the work queue.
//
// One processor per session drains pending items in FIFO order through the
// selected backend, recording per-item outcomes with bounded retry. The
// registry's attach check makes a concurrent second start a no-op, and a
// deferred detach plus a final status push run on every exit path: drain,
// store failure, or cancellation. An item interrupted mid-call is left in
// processing for the recovery sweep to reclaim rather than marked failed.
package supervisor
