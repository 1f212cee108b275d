package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/rovermap/internal/command"
)

// CommandRecord is one audited operator command.
type CommandRecord struct {
	ID        int64     `json:"command_id"`
	SessionID string    `json:"session_id"`
	Command   string    `json:"command"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// InsertCommand appends a command to the audit log of a session.
func (db *DB) InsertCommand(sessionID, text string, outcome command.Outcome, sendErr error, at time.Time) error {
	var errText sql.NullString
	if sendErr != nil {
		errText = sql.NullString{String: sendErr.Error(), Valid: true}
	}
	_, err := db.Exec(
		`INSERT INTO commands (session_id, command, outcome, error, sent_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, text, outcome.String(), errText, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

// RecentCommands returns up to limit commands across all sessions, newest
// first.
func (db *DB) RecentCommands(limit int) ([]CommandRecord, error) {
	rows, err := db.Query(`SELECT command_id, session_id, command, outcome, error, sent_at
		FROM commands ORDER BY command_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CommandRecord
	for rows.Next() {
		var (
			r       CommandRecord
			errText sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Command, &r.Outcome, &errText, &r.SentAt); err != nil {
			return nil, err
		}
		r.Error = errText.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// SessionRecorder binds the command audit log to one session. It satisfies
// command.Recorder.
type SessionRecorder struct {
	db        *DB
	sessionID string
	now       func() time.Time
}

// Recorder returns a command.Recorder writing into session id.
func (db *DB) Recorder(sessionID string) *SessionRecorder {
	return &SessionRecorder{db: db, sessionID: sessionID, now: time.Now}
}

// RecordCommand implements command.Recorder.
func (r *SessionRecorder) RecordCommand(text string, outcome command.Outcome, sendErr error) error {
	return r.db.InsertCommand(r.sessionID, text, outcome, sendErr, r.now())
}

var _ command.Recorder = (*SessionRecorder)(nil)
