package session

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no cgo
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	run_id    TEXT NOT NULL,
	node_id   TEXT NOT NULL,
	sequence  INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	data      BLOB NOT NULL,
	PRIMARY KEY (run_id, node_id)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_run_id ON snapshots(run_id);
`

// SQLiteStore persists snapshots to a SQLite database file, the
// default durable backend for single-process deployments.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens or creates the database at path. Pass
// ":memory:" for an ephemeral store in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps readers unblocked while a run saves snapshots.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(runID, nodeID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	// Re-saving a node bumps its sequence past the run's current max
	// so the snapshot becomes the latest.
	_, err := s.db.Exec(`
		INSERT INTO snapshots (run_id, node_id, sequence, timestamp, data)
		VALUES (?, ?, COALESCE((SELECT MAX(sequence) FROM snapshots WHERE run_id = ?), 0) + 1, ?, ?)
		ON CONFLICT(run_id, node_id) DO UPDATE SET
			sequence = (SELECT MAX(sequence) FROM snapshots WHERE run_id = excluded.run_id) + 1,
			timestamp = excluded.timestamp,
			data = excluded.data`,
		runID, nodeID, runID, time.Now().UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(runID, nodeID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.QueryRow(
		`SELECT data FROM snapshots WHERE run_id = ? AND node_id = ?`,
		runID, nodeID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return data, nil
}

func (s *SQLiteStore) List(runID string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT node_id, sequence, timestamp, LENGTH(data)
		FROM snapshots WHERE run_id = ? ORDER BY sequence`, runID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		info := Info{RunID: runID}
		var savedAt string
		if err := rows.Scan(&info.NodeID, &info.Sequence, &savedAt, &info.Size); err != nil {
			return nil, fmt.Errorf("scan snapshot info: %w", err)
		}
		info.Timestamp, _ = time.Parse(time.RFC3339Nano, savedAt)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return infos, nil
}

func (s *SQLiteStore) Delete(runID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec(
		`DELETE FROM snapshots WHERE run_id = ? AND node_id = ?`,
		runID, nodeID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec(`DELETE FROM snapshots WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run snapshots: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
