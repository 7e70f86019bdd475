package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetSession fetches a session history record by identifier.
func (s *Store) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, project, status, created_at, updated_at FROM sessions WHERE id = ?`,
		id,
	)
	record, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return record, nil
}

// ListSessions returns all session history records, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]*SessionRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, project, status, created_at, updated_at FROM sessions ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		record, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// SetSessionStatus updates the durable status of a session. History rows are
// only ever updated, never removed.
func (s *Store) SetSessionStatus(ctx context.Context, id string, status SessionStatus) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set session status rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (*SessionRecord, error) {
	var (
		id         string
		project    sql.NullString
		statusStr  string
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &project, &statusStr, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	record := &SessionRecord{
		ID:      id,
		Project: project.String,
		Status:  SessionStatus(statusStr),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}
