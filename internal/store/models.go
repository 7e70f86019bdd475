package store

import (
	"strings"
	"time"
)

// ItemStatus represents the lifecycle of a work item.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusFailed     ItemStatus = "failed"
)

// MaxRetries is the fixed ceiling on retry attempts. Once a work item's
// retry count reaches this value it is terminally failed and never
// re-queued.
const MaxRetries = 3

var allItemStatuses = []ItemStatus{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var itemStatusSet = func() map[ItemStatus]struct{} {
	set := make(map[ItemStatus]struct{}, len(allItemStatuses))
	for _, status := range allItemStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllItemStatuses returns the ordered list of known statuses.
func AllItemStatuses() []ItemStatus {
	cp := make([]ItemStatus, len(allItemStatuses))
	copy(cp, allItemStatuses)
	return cp
}

// ParseItemStatus converts a string into a known ItemStatus.
func ParseItemStatus(value string) (ItemStatus, bool) {
	normalized := ItemStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := itemStatusSet[normalized]
	return normalized, ok
}

// Item represents a work item persisted in SQLite.
type Item struct {
	ID           string
	SessionID    string
	Payload      string
	Status       ItemStatus
	RetryCount   int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClaimedAt    *time.Time
	FailedAt     *time.Time
}

// Terminal reports whether the item has reached a final status.
func (i Item) Terminal() bool {
	return i.Status == StatusCompleted || i.Status == StatusFailed
}

// SessionStatus represents the durable lifecycle of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// SessionRecord is the durable history row for a session. Rows are written
// on first submission and updated on status transitions; they are never
// deleted.
type SessionRecord struct {
	ID        string
	Project   string
	Status    SessionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HealthSummary describes aggregated item counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// DatabaseHealth captures diagnostic information about the work database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}
