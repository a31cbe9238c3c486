package shares

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/haasonsaas/nexus/pkg/models"
)

// SQLiteStore persists shared-session snapshots to a local SQLite
// database, grounded on internal/sessions.CockroachStore's
// prepared-statement CRUD pattern, adapted to the pure-Go
// modernc.org/sqlite driver for a dependency-free on-disk store suited to
// a single-node deployment of the engine.
type SQLiteStore struct {
	db *sql.DB

	stmtInsert *sql.Stmt
	stmtGet    *sql.Stmt
}

// OpenSQLiteStore opens (creating if absent) a SQLite database at path and
// prepares the shares table and statements.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS shared_sessions (
			token TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			name TEXT,
			working_dir TEXT,
			messages_json TEXT NOT NULL,
			salt TEXT,
			password_sum TEXT,
			created_at DATETIME NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create shared_sessions table: %w", err)
	}

	store := &SQLiteStore{db: db}
	if store.stmtInsert, err = db.Prepare(`
		INSERT OR REPLACE INTO shared_sessions
			(token, session_id, name, working_dir, messages_json, salt, password_sum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	if store.stmtGet, err = db.Prepare(`
		SELECT token, session_id, name, working_dir, messages_json, salt, password_sum, created_at
		FROM shared_sessions WHERE token = ?`); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare get: %w", err)
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Put(ctx context.Context, share *SharedSession) error {
	if share == nil || share.Token == "" {
		return errors.New("share token is required")
	}
	messagesJSON, err := json.Marshal(share.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	_, err = s.stmtInsert.ExecContext(ctx,
		share.Token, share.SessionID, share.Name, share.WorkingDir,
		string(messagesJSON), share.Salt, share.PasswordSum, share.CreatedAt)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, token string) (*SharedSession, error) {
	row := s.stmtGet.QueryRowContext(ctx, token)
	var share SharedSession
	var messagesJSON string
	if err := row.Scan(&share.Token, &share.SessionID, &share.Name, &share.WorkingDir,
		&messagesJSON, &share.Salt, &share.PasswordSum, &share.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var messages []*models.Message
	if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	share.Messages = messages
	return &share, nil
}
