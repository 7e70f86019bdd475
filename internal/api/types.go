// Package api defines the DTOs shared by the HTTP surface and the IPC
// control socket, plus converters from storage types.
package api

import (
	"time"

	"scribe/internal/store"
)

// SubmitRequest is one work submission for a session.
type SubmitRequest struct {
	Payload string `json:"payload"`
	Project string `json:"project,omitempty"`
}

// WorkItem mirrors a stored work item for API consumers.
type WorkItem struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
}

// FromItem converts a stored item to its API shape.
func FromItem(item *store.Item) WorkItem {
	if item == nil {
		return WorkItem{}
	}
	return WorkItem{
		ID:           item.ID,
		SessionID:    item.SessionID,
		Status:       string(item.Status),
		RetryCount:   item.RetryCount,
		ErrorMessage: item.ErrorMessage,
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
		ClaimedAt:    item.ClaimedAt,
		FailedAt:     item.FailedAt,
	}
}

// SubmitResponse acknowledges a durably enqueued submission. Acceptance
// does not mean the item has been processed.
type SubmitResponse struct {
	Item WorkItem `json:"item"`
}

// SessionRecord mirrors a durable session history row.
type SessionRecord struct {
	ID        string    `json:"id"`
	Project   string    `json:"project,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FromSessionRecord converts a stored session record to its API shape.
func FromSessionRecord(record *store.SessionRecord) SessionRecord {
	if record == nil {
		return SessionRecord{}
	}
	return SessionRecord{
		ID:        record.ID,
		Project:   record.Project,
		Status:    string(record.Status),
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

// StatusResponse is the daemon status snapshot served over HTTP and IPC.
type StatusResponse struct {
	State           string         `json:"state"`
	Processing      bool           `json:"processing"`
	QueueDepth      int            `json:"queue_depth"`
	TrackedSessions int            `json:"tracked_sessions"`
	QueueStats      map[string]int `json:"queue_stats"`
	DBPath          string         `json:"db_path"`
	LockFilePath    string         `json:"lock_file_path"`
	PID             int            `json:"pid"`
}

// QueueListResponse contains work-queue entries.
type QueueListResponse struct {
	Items []WorkItem `json:"items"`
}

// SessionListResponse contains session history entries.
type SessionListResponse struct {
	Sessions []SessionRecord `json:"sessions"`
}

// HealthResponse aggregates queue counts for diagnostics.
type HealthResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// ErrorResponse is the envelope for HTTP error payloads.
type ErrorResponse struct {
	Error string `json:"error"`
}
