package store

import (
	"database/sql"
	"time"

	"mediasync/pkg/models"
)

// BeginRun attempts to acquire the in-progress guard with a compare-and-swap
// update. It returns false when another run already holds the guard.
func (s *Store) BeginRun(direction models.Direction) (bool, error) {
	res, err := s.Exec(`
		UPDATE sync_state
		SET running = 1, status = ?, direction = ?, last_error = ''
		WHERE id = 1 AND running = 0
	`, string(models.StatusInProgress), string(direction))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FinishRun releases the guard and records the run's outcome.
func (s *Store) FinishRun(status models.RunStatus, errText string) error {
	_, err := s.Exec(`
		UPDATE sync_state
		SET running = 0, status = ?, last_error = ?, completed_at = ?
		WHERE id = 1
	`, string(status), errText, time.Now().UTC())
	return err
}

// MarkScheduled records that a run has been queued. It never touches the
// guard: a scheduled run that finds the guard held simply re-queues.
func (s *Store) MarkScheduled(direction models.Direction) error {
	_, err := s.Exec(`
		UPDATE sync_state SET status = ?, direction = ?
		WHERE id = 1 AND running = 0
	`, string(models.StatusScheduled), string(direction))
	return err
}

// State returns the persisted run state.
func (s *Store) State() (models.RunState, error) {
	var (
		st        models.RunState
		status    string
		direction string
		completed sql.NullTime
		running   int
	)
	err := s.QueryRow(`
		SELECT status, direction, last_error, completed_at, running
		FROM sync_state WHERE id = 1
	`).Scan(&status, &direction, &st.LastError, &completed, &running)
	if err != nil {
		return models.RunState{}, err
	}
	st.Status = models.RunStatus(status)
	st.Direction = models.Direction(direction)
	st.Running = running == 1
	if completed.Valid {
		st.CompletedAt = completed.Time
	}
	return st, nil
}
