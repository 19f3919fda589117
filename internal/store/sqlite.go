package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/secrets"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS connections (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	conn_string TEXT NOT NULL,
	is_target   INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS scripts (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS replication_configs (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	source_id   TEXT NOT NULL REFERENCES connections(id),
	target_id   TEXT NOT NULL REFERENCES connections(id),
	script_ids  TEXT NOT NULL,
	settings    TEXT NOT NULL,
	last_run_at TEXT
);
`

// SQLiteStore persists records in a local SQLite database. Connection strings
// are encrypted with the credential cipher before they touch disk.
type SQLiteStore struct {
	db     *sql.DB
	cipher *secrets.Cipher
}

// OpenSQLite opens (creating if needed) the store at path.
func OpenSQLite(path string, cipher *secrets.Cipher) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// SQLite handles one writer at a time; a second connection would only
	// produce busy errors.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize store schema: %w", err)
	}
	return &SQLiteStore{db: db, cipher: cipher}, nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveConnection inserts a connection, assigning an id when absent.
func (s *SQLiteStore) SaveConnection(ctx context.Context, c *Connection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	encrypted, err := s.cipher.Encrypt(c.ConnectionString)
	if err != nil {
		return fmt.Errorf("encrypt connection string: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO connections (id, name, conn_string, is_target, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, encrypted, c.IsTarget, c.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save connection %s: %w", c.Name, err)
	}
	return nil
}

// GetConnection returns the saved connection with its cleartext string.
func (s *SQLiteStore) GetConnection(ctx context.Context, id string) (*Connection, error) {
	var (
		c         Connection
		encrypted string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, conn_string, is_target, created_at FROM connections WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &encrypted, &c.IsTarget, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: connection %s", utils.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load connection %s: %w", id, err)
	}
	c.ConnectionString, err = s.cipher.Decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("connection %s: %w", id, err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

// SaveScript inserts a script, assigning an id when absent.
func (s *SQLiteStore) SaveScript(ctx context.Context, sc *Script) error {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scripts (id, name, body, created_at) VALUES (?, ?, ?, ?)`,
		sc.ID, sc.Name, sc.Body, sc.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save script %s: %w", sc.Name, err)
	}
	return nil
}

// GetScript returns the saved script.
func (s *SQLiteStore) GetScript(ctx context.Context, id string) (*Script, error) {
	var (
		sc        Script
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, body, created_at FROM scripts WHERE id = ?`, id).
		Scan(&sc.ID, &sc.Name, &sc.Body, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: script %s", utils.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load script %s: %w", id, err)
	}
	sc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &sc, nil
}

// SaveReplicationConfig inserts a configuration, assigning an id when absent.
func (s *SQLiteStore) SaveReplicationConfig(ctx context.Context, rc *ReplicationConfig) error {
	if rc.ID == "" {
		rc.ID = uuid.NewString()
	}
	scriptIDs, err := json.Marshal(rc.ScriptIDs)
	if err != nil {
		return fmt.Errorf("encode script ids: %w", err)
	}
	settings, err := json.Marshal(rc.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO replication_configs (id, name, source_id, target_id, script_ids, settings) VALUES (?, ?, ?, ?, ?, ?)`,
		rc.ID, rc.Name, rc.SourceID, rc.TargetID, string(scriptIDs), string(settings))
	if err != nil {
		return fmt.Errorf("save replication config %s: %w", rc.Name, err)
	}
	return nil
}

// GetReplicationConfig returns the saved configuration.
func (s *SQLiteStore) GetReplicationConfig(ctx context.Context, id string) (*ReplicationConfig, error) {
	var (
		rc        ReplicationConfig
		scriptIDs string
		settings  string
		lastRun   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, source_id, target_id, script_ids, settings, last_run_at FROM replication_configs WHERE id = ?`, id).
		Scan(&rc.ID, &rc.Name, &rc.SourceID, &rc.TargetID, &scriptIDs, &settings, &lastRun)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: replication config %s", utils.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load replication config %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(scriptIDs), &rc.ScriptIDs); err != nil {
		return nil, fmt.Errorf("decode script ids for config %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(settings), &rc.Settings); err != nil {
		return nil, fmt.Errorf("decode settings for config %s: %w", id, err)
	}
	if lastRun.Valid {
		t, err := time.Parse(time.RFC3339, lastRun.String)
		if err == nil {
			rc.LastRunAt = &t
		}
	}
	return &rc, nil
}

// UpdateReplicationConfigLastRun records when a configuration last completed
// successfully.
func (s *SQLiteStore) UpdateReplicationConfigLastRun(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE replication_configs SET last_run_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("update last run for config %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: replication config %s", utils.ErrRecordNotFound, id)
	}
	return nil
}
