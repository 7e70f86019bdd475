// Package notify sends best-effort push notifications for session
// lifecycle events via ntfy.
//
// When no topic is configured the constructor returns a noop service, so
// callers never need to branch on configuration. Notification failures are
// returned for logging only and must never affect processing.
package notify
