// Package daemon sequences scribed's lifecycle and owns the HTTP API.
//
// The daemon binds its listener before opening the store so clients that
// race startup get a 503 with a retry hint rather than a refused
// connection. Once the core is ready it runs the startup recovery sweep,
// starts the periodic recovery scheduler, and declares full readiness.
// Shutdown cancels every live processor, waits up to the configured drain
// timeout for them to detach, and abandons stragglers for the next
// startup sweep to reclaim.
package daemon
