package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/redraft-dev/redraft/pkg/blackboard"
)

// SQLiteStore is the file-backed checkpoint store. Sequence allocation and
// the checkpoint insert happen in one transaction per session, giving the
// same per-session ordering guarantee as the Redis backend without a shared
// counter.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	session_id    TEXT    NOT NULL,
	checkpoint_id TEXT    NOT NULL,
	sequence      INTEGER NOT NULL,
	created_at_ms INTEGER NOT NULL,
	state         BLOB    NOT NULL,
	PRIMARY KEY (session_id, sequence),
	UNIQUE (session_id, checkpoint_id)
);

CREATE TABLE IF NOT EXISTS session_failures (
	session_id    TEXT PRIMARY KEY,
	message       TEXT    NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
`

// OpenSQLite opens (creating if needed) a SQLite checkpoint store at the
// provided path. WAL mode keeps concurrent session drivers from blocking
// readers.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying SQLite database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Verify performs a writability probe: a throwaway insert that is rolled
// back. A read-only or broken database file fails here, before any session
// traffic is accepted.
func (s *SQLiteStore) Verify(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite not writable: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_failures (session_id, message, updated_at_ms) VALUES (?, ?, ?)`,
		"__write_probe__", "probe", time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite not writable: %w", err)
	}

	return nil
}

// Put appends a checkpoint for the state's session.
func (s *SQLiteStore) Put(ctx context.Context, state *blackboard.State) (*Checkpoint, error) {
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state: %w", err)
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin checkpoint transaction: %w", err)
	}
	defer tx.Rollback()

	var sequence int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM checkpoints WHERE session_id = ?`,
		state.SessionID).Scan(&sequence)
	if err != nil {
		return nil, fmt.Errorf("allocate sequence number: %w", err)
	}

	cp := &Checkpoint{
		SessionID:    state.SessionID,
		CheckpointID: uuid.New().String(),
		Sequence:     sequence,
		CreatedAtMs:  time.Now().UnixMilli(),
		State:        state.Clone(),
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (session_id, checkpoint_id, sequence, created_at_ms, state) VALUES (?, ?, ?, ?, ?)`,
		cp.SessionID, cp.CheckpointID, cp.Sequence, cp.CreatedAtMs, stateJSON)
	if err != nil {
		return nil, fmt.Errorf("insert checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit checkpoint: %w", err)
	}

	return cp, nil
}

// GetLatest retrieves the highest-sequence checkpoint for a session.
func (s *SQLiteStore) GetLatest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, checkpoint_id, sequence, created_at_ms, state
		 FROM checkpoints WHERE session_id = ? ORDER BY sequence DESC LIMIT 1`,
		sessionID)
	return scanCheckpoint(row)
}

// Get retrieves one checkpoint by ID.
func (s *SQLiteStore) Get(ctx context.Context, sessionID, checkpointID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, checkpoint_id, sequence, created_at_ms, state
		 FROM checkpoints WHERE session_id = ? AND checkpoint_id = ?`,
		sessionID, checkpointID)
	return scanCheckpoint(row)
}

// List returns the session's checkpoint IDs in sequence order.
func (s *SQLiteStore) List(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT checkpoint_id FROM checkpoints WHERE session_id = ? ORDER BY sequence ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan checkpoint id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	return ids, nil
}

// RecordFailure attaches a stage failure message to the session's status.
func (s *SQLiteStore) RecordFailure(ctx context.Context, sessionID, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_failures (session_id, message, updated_at_ms) VALUES (?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET message = excluded.message, updated_at_ms = excluded.updated_at_ms`,
		sessionID, message, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// LastFailure returns the session's most recent failure message, or "".
func (s *SQLiteStore) LastFailure(ctx context.Context, sessionID string) (string, error) {
	var msg string
	err := s.db.QueryRowContext(ctx,
		`SELECT message FROM session_failures WHERE session_id = ?`, sessionID).Scan(&msg)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read failure record: %w", err)
	}
	return msg, nil
}

// scanCheckpoint maps one checkpoint row, translating missing rows to
// ErrNotFound and undecodable snapshots to ErrCorrupt.
func scanCheckpoint(row *sql.Row) (*Checkpoint, error) {
	var cp Checkpoint
	var raw []byte

	err := row.Scan(&cp.SessionID, &cp.CheckpointID, &cp.Sequence, &cp.CreatedAtMs, &raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}

	state, err := decodeState(raw)
	if err != nil {
		return nil, err
	}
	cp.State = state

	return &cp, nil
}
