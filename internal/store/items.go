package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enqueue appends a new pending work item to a session's queue and records
// the session in durable history. FIFO within the session follows the
// created_at timestamp assigned here.
func (s *Store) Enqueue(ctx context.Context, sessionID, project, payload string) (*Item, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	if strings.TrimSpace(payload) == "" {
		return nil, errors.New("payload is required")
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO sessions (id, project, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET status = ?, updated_at = ?`,
		sessionID,
		nullableString(project),
		SessionActive,
		timestamp,
		timestamp,
		SessionActive,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO work_items (id, session_id, payload, status, retry_count, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, ?)`,
		id,
		sessionID,
		payload,
		StatusPending,
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert work item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enqueue: %w", err)
	}

	return s.GetItem(ctx, id)
}

// ClaimNext atomically selects the oldest pending item for the session and
// marks it processing. Returns nil when the session has no pending items.
func (s *Store) ClaimNext(ctx context.Context, sessionID string) (*Item, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(
		ctx,
		`SELECT id FROM work_items
         WHERE session_id = ? AND status = ?
         ORDER BY created_at, id LIMIT 1`,
		sessionID,
		StatusPending,
	)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select next pending: %w", err)
	}

	res, err := tx.ExecContext(
		ctx,
		`UPDATE work_items SET status = ?, claimed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusProcessing,
		timestamp,
		timestamp,
		id,
		StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("claim item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	return s.GetItem(ctx, id)
}

// MarkCompleted transitions an item from processing to completed.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE work_items SET status = ?, claimed_at = NULL, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark completed rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s is not processing", id)
	}
	return nil
}

// MarkFailed records a backend failure. The retry count is incremented; an
// item below MaxRetries returns to pending for another claim, otherwise it
// is terminally failed and stamped with the failure time. The updated item
// is returned.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) (*Item, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE work_items
         SET retry_count = retry_count + 1,
             status = CASE WHEN retry_count + 1 >= ? THEN ? ELSE ? END,
             failed_at = CASE WHEN retry_count + 1 >= ? THEN ? ELSE failed_at END,
             error_message = ?, claimed_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		MaxRetries,
		StatusFailed,
		StatusPending,
		MaxRetries,
		now,
		nullableString(reason),
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("mark failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("mark failed rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("item %s is not processing", id)
	}
	return s.GetItem(ctx, id)
}

// ResetStuck returns items stuck in processing back to pending once their
// claim is older than the threshold. The retry count is left untouched; a
// crash is not a backend failure. This is the sole recovery path for work
// orphaned by a dead process.
func (s *Store) ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE work_items SET status = ?, claimed_at = NULL, updated_at = ?
         WHERE status = ? AND claimed_at IS NOT NULL AND claimed_at < ?`,
		StatusPending,
		now.Format(time.RFC3339Nano),
		StatusProcessing,
		cutoff.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// FailPending terminally fails every pending item of a session. Used when a
// stale session is expired so its backlog is not retried forever.
func (s *Store) FailPending(ctx context.Context, sessionID, reason string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE work_items SET status = ?, failed_at = ?, error_message = ?, updated_at = ?
         WHERE session_id = ? AND status = ?`,
		StatusFailed,
		now,
		nullableString(reason),
		now,
		sessionID,
		StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("fail pending items: %w", err)
	}
	return res.RowsAffected()
}

// SessionsWithPending returns session identifiers that have at least one
// pending item, ordered oldest backlog first.
func (s *Store) SessionsWithPending(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT session_id FROM work_items WHERE status = ?
         GROUP BY session_id ORDER BY MIN(created_at)`,
		StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("sessions with pending: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PendingCount returns the number of pending items for a session.
func (s *Store) PendingCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM work_items WHERE session_id = ? AND status = ?`,
		sessionID,
		StatusPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return count, nil
}

// QueueDepth returns the number of non-terminal items across all sessions.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM work_items WHERE status IN (?, ?)`,
		StatusPending,
		StatusProcessing,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return count, nil
}

// GetItem fetches a work item by identifier.
func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// List returns work items filtered by status set (or all items when no
// status is provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...ItemStatus) ([]*Item, error) {
	baseQuery := `SELECT ` + itemColumns + ` FROM work_items`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListSessionItems returns a session's items oldest first.
func (s *Store) ListSessionItems(ctx context.Context, sessionID string) ([]*Item, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM work_items WHERE session_id = ? ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list session items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[ItemStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM work_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("item stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[ItemStatus]int)
	for rows.Next() {
		var status ItemStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates item state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

const itemColumns = "id, session_id, payload, status, retry_count, error_message, created_at, updated_at, claimed_at, failed_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id           string
		sessionID    string
		payload      string
		statusStr    string
		retryCount   int
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		claimedRaw   sql.NullString
		failedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sessionID,
		&payload,
		&statusStr,
		&retryCount,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&claimedRaw,
		&failedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:           id,
		SessionID:    sessionID,
		Payload:      payload,
		Status:       ItemStatus(statusStr),
		RetryCount:   retryCount,
		ErrorMessage: errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if claimedRaw.Valid {
		if claimed, err := parseTimeString(claimedRaw.String); err == nil {
			item.ClaimedAt = &claimed
		}
	}
	if failedRaw.Valid {
		if failed, err := parseTimeString(failedRaw.String); err == nil {
			item.FailedAt = &failed
		}
	}
	return item, nil
}
