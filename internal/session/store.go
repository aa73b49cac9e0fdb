// Package session persists per-chat client/project selections so a choice
// made through an inline keyboard survives later webhook deliveries and
// process restarts.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"togglbot/internal/domain"

	_ "modernc.org/sqlite"
)

// Store implements domain.SessionStore on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_sessions (
		chat_id     INTEGER PRIMARY KEY,
		client_id   INTEGER NOT NULL DEFAULT 0,
		project_id  INTEGER NOT NULL DEFAULT 0,
		updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the stored selection for a chat. An absent row is not an
// error; it yields a zero-valued session.
func (s *Store) Get(ctx context.Context, chatID int64) (domain.Session, error) {
	sess := domain.Session{ChatID: chatID}
	row := s.db.QueryRowContext(ctx,
		`SELECT client_id, project_id, updated_at FROM chat_sessions WHERE chat_id = ?`, chatID)
	err := row.Scan(&sess.ClientID, &sess.ProjectID, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sess, nil
	}
	if err != nil {
		return sess, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// SetClient stores the chosen client and resets any previously chosen
// project, since projects belong to a client.
func (s *Store) SetClient(ctx context.Context, chatID, clientID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (chat_id, client_id, project_id, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(chat_id) DO UPDATE SET client_id = excluded.client_id,
			project_id = 0, updated_at = excluded.updated_at`,
		chatID, clientID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set client: %w", err)
	}
	s.logger.Debug("session client set", "chat_id", chatID, "client_id", clientID)
	return nil
}

func (s *Store) SetProject(ctx context.Context, chatID, projectID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (chat_id, client_id, project_id, updated_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET project_id = excluded.project_id,
			updated_at = excluded.updated_at`,
		chatID, projectID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set project: %w", err)
	}
	s.logger.Debug("session project set", "chat_id", chatID, "project_id", projectID)
	return nil
}

func (s *Store) Clear(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
