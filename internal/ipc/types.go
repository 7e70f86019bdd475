package ipc

import "scribe/internal/api"

// WorkItem mirrors the HTTP API work-item DTO for internal IPC callers.
type WorkItem = api.WorkItem

// SessionRecord mirrors the HTTP API session DTO for internal IPC callers.
type SessionRecord = api.SessionRecord

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon status information.
type StatusResponse struct {
	State           string         `json:"state"`
	Processing      bool           `json:"processing"`
	QueueDepth      int            `json:"queue_depth"`
	TrackedSessions int            `json:"tracked_sessions"`
	QueueStats      map[string]int `json:"queue_stats"`
	DBPath          string         `json:"db_path"`
	LockPath        string         `json:"lock_path"`
	PID             int            `json:"pid"`
}

// EnqueueRequest submits one unit of work for a session.
type EnqueueRequest struct {
	SessionID string `json:"session_id"`
	Project   string `json:"project"`
	Payload   string `json:"payload"`
}

// EnqueueResponse acknowledges the durably recorded submission.
type EnqueueResponse struct {
	Item WorkItem `json:"item"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []WorkItem `json:"items"`
}

// SessionListRequest fetches the durable session history.
type SessionListRequest struct{}

// SessionListResponse contains session history entries.
type SessionListResponse struct {
	Sessions []SessionRecord `json:"sessions"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalItems       int      `json:"total_items"`
	Error            string   `json:"error"`
}

// RecoverRequest triggers an on-demand recovery sweep. SessionLimit of
// zero uses the configured interval limit.
type RecoverRequest struct {
	SessionLimit int `json:"session_limit"`
}

// RecoverResponse reports what the sweep did.
type RecoverResponse struct {
	ItemsReset           int64    `json:"items_reset"`
	SessionsExpired      int      `json:"sessions_expired"`
	TotalPendingSessions int      `json:"total_pending_sessions"`
	SessionsStarted      int      `json:"sessions_started"`
	SessionsSkipped      int      `json:"sessions_skipped"`
	StartedIDs           []string `json:"started_ids"`
	SkippedIDs           []string `json:"skipped_ids"`
}

// ShutdownRequest stops the daemon.
type ShutdownRequest struct{}

// ShutdownResponse indicates shutdown result.
type ShutdownResponse struct {
	Stopped bool `json:"stopped"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
