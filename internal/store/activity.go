package store

import (
	"mediasync/pkg/models"
)

// Log appends one entry to the activity log and prunes the oldest rows
// beyond the configured cap.
func (s *Store) Log(message, level string) error {
	if _, err := s.Exec(`INSERT INTO activity (level, message) VALUES (?, ?)`, level, message); err != nil {
		return err
	}
	_, err := s.Exec(`
		DELETE FROM activity WHERE id NOT IN (
			SELECT id FROM activity ORDER BY id DESC LIMIT ?
		)
	`, s.activityCap)
	return err
}

// Recent returns the newest n activity entries, most recent first.
func (s *Store) Recent(n int) ([]models.ActivityEntry, error) {
	rows, err := s.Query(`
		SELECT id, ts, level, message FROM activity ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Level, &e.Message); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
