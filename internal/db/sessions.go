package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Session is one run of the tracker against a port.
type Session struct {
	ID        string     `json:"session_id"`
	Port      string     `json:"port"`
	SpeedCMS  float64    `json:"speed_cm_s"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// StartSession records the start of a session and returns it with a fresh
// id.
func (db *DB) StartSession(port string, speedCMS float64, at time.Time) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		Port:      port,
		SpeedCMS:  speedCMS,
		StartedAt: at.UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, port, speed_cm_s, started_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.Port, s.SpeedCMS, s.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return s, nil
}

// EndSession stamps the end time of an open session.
func (db *DB) EndSession(id string, at time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at = ? WHERE session_id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// GetSession loads one session by id.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(`SELECT session_id, port, speed_cm_s, started_at, ended_at FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// RecentSessions returns up to limit sessions, newest first.
func (db *DB) RecentSessions(limit int) ([]Session, error) {
	rows, err := db.Query(`SELECT session_id, port, speed_cm_s, started_at, ended_at
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(r scanner) (*Session, error) {
	var (
		s     Session
		ended sql.NullTime
	)
	if err := r.Scan(&s.ID, &s.Port, &s.SpeedCMS, &s.StartedAt, &ended); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	return &s, nil
}
