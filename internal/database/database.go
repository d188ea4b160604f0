package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"reconagent/internal/agent"
)

// ErrNotFound is returned when no snapshot exists for a session.
var ErrNotFound = errors.New("state snapshot not found")

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// New opens (and creates if needed) the SQLite database at path.
func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ SQLite database connected")

	return &DB{db}, nil
}

// Initialize creates all required tables
func (db *DB) Initialize() error {
	log.Println("🔍 Checking database schema...")

	schema := `
	CREATE TABLE IF NOT EXISTS reconciliation_states (
		session_id TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		state_json TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_states_updated_at ON reconciliation_states(updated_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Println("✅ Database initialized successfully")
	return nil
}

// SaveState upserts the full state snapshot for a session.
func (db *DB) SaveState(state *agent.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO reconciliation_states (session_id, status, state_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`,
		state.SessionID, string(state.Status), string(payload),
		state.CreatedAt, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// LoadState restores the snapshot for a session.
func (db *DB) LoadState(sessionID string) (*agent.State, error) {
	var payload string
	err := db.QueryRow(
		"SELECT state_json FROM reconciliation_states WHERE session_id = ?",
		sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var state agent.State
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// DeleteState removes the snapshot for a session.
func (db *DB) DeleteState(sessionID string) error {
	_, err := db.Exec("DELETE FROM reconciliation_states WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

// PurgeStatesBefore deletes snapshots not updated since the cutoff and
// returns how many were removed.
func (db *DB) PurgeStatesBefore(cutoff time.Time) (int64, error) {
	result, err := db.Exec(
		"DELETE FROM reconciliation_states WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge states: %w", err)
	}
	return result.RowsAffected()
}
