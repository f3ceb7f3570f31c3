package session

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Connection pool settings for PostgreSQL.
const (
	pgMaxOpenConns    = 25
	pgMaxIdleConns    = 25
	pgConnMaxLifetime = 5 * time.Minute
)

// PostgresStore persists snapshots to PostgreSQL.
// Use it when multiple processes share session state.
type PostgresStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewPostgresStore creates a new PostgreSQL snapshot store.
// The dsn is a standard libpq connection string or postgres:// URL.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetMaxIdleConns(pgMaxIdleConns)
	db.SetConnMaxLifetime(pgConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			sequence BIGINT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			data BYTEA NOT NULL,
			PRIMARY KEY (run_id, node_id)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_snapshots_run_id
		ON snapshots(run_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Save implements Store.
func (s *PostgresStore) Save(runID, nodeID string, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	// The subquery in DO UPDATE sees pre-update rows, so MAX+1 stays monotonic.
	_, err := s.db.Exec(`
		INSERT INTO snapshots (run_id, node_id, sequence, timestamp, data)
		VALUES (
			$1, $2,
			COALESCE((SELECT MAX(sequence) FROM snapshots WHERE run_id = $1), 0) + 1,
			$3, $4
		)
		ON CONFLICT (run_id, node_id) DO UPDATE SET
			sequence = (SELECT COALESCE(MAX(sequence), 0) FROM snapshots WHERE run_id = excluded.run_id) + 1,
			timestamp = excluded.timestamp,
			data = excluded.data
	`, runID, nodeID, time.Now().UTC(), data)

	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(runID, nodeID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.QueryRow(`
		SELECT data FROM snapshots
		WHERE run_id = $1 AND node_id = $2
	`, runID, nodeID).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return data, nil
}

// List implements Store.
func (s *PostgresStore) List(runID string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT node_id, sequence, timestamp, LENGTH(data)
		FROM snapshots
		WHERE run_id = $1
		ORDER BY sequence
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.NodeID, &info.Sequence, &info.Timestamp, &info.Size); err != nil {
			return nil, fmt.Errorf("scan snapshot info: %w", err)
		}
		info.RunID = runID
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	return infos, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(runID, nodeID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		DELETE FROM snapshots
		WHERE run_id = $1 AND node_id = $2
	`, runID, nodeID)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// DeleteRun implements Store.
func (s *PostgresStore) DeleteRun(runID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		DELETE FROM snapshots WHERE run_id = $1
	`, runID)
	if err != nil {
		return fmt.Errorf("delete run snapshots: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
