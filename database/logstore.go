package database

import (
	"database/sql"
	"fmt"
	"time"
)

// LogStore persists one EmailLog row per send attempt.
type LogStore struct {
	db *sql.DB
}

// NewLogStore creates a LogStore backed by the given database handle.
func NewLogStore(db *sql.DB) *LogStore {
	return &LogStore{db: db}
}

// Insert writes a single attempt row. Rows are append-only; nothing in the
// system updates or deletes them.
func (s *LogStore) Insert(recipientEmail, subject, status string, at time.Time) error {
	_, err := s.db.Exec(
		"INSERT INTO email_logs (recipient_email, subject, status, timestamp) VALUES (?, ?, ?, ?)",
		recipientEmail, subject, status, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert email log: %w", err)
	}
	return nil
}

// List returns every log row in insertion order.
func (s *LogStore) List() ([]EmailLog, error) {
	rows, err := s.db.Query(
		"SELECT id, recipient_email, subject, status, timestamp FROM email_logs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query email logs: %w", err)
	}
	defer rows.Close()

	logs := make([]EmailLog, 0)
	for rows.Next() {
		var entry EmailLog
		var ts string
		if err := rows.Scan(&entry.ID, &entry.RecipientEmail, &entry.Subject, &entry.Status, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan email log row: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse email log timestamp %q: %w", ts, err)
		}
		entry.Timestamp = t
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over email log rows: %w", err)
	}
	return logs, nil
}
