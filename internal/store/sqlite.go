package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/KlubJagiellonski/pola-facebook/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLite implements domain.ContextStore on a single-file SQLite database,
// surviving restarts. Unlike the in-memory store it hands out fresh Context
// structs, so every turn must end with Save.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLite(dbPath string, logger *slog.Logger) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contexts (
		user_id         TEXT PRIMARY KEY,
		channel         TEXT,
		state           TEXT NOT NULL,
		ean_code        TEXT,
		attachment_type TEXT,
		attachment_url  TEXT,
		result          TEXT,
		created_at      DATETIME NOT NULL,
		updated_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_contexts_updated ON contexts(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Get(ctx context.Context, id string) (*domain.Context, error) {
	var (
		c       domain.Context
		channel sql.NullString
		eanCode sql.NullString
		attType sql.NullString
		attURL  sql.NullString
		result  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, channel, state, ean_code, attachment_type, attachment_url, result, created_at, updated_at
		 FROM contexts WHERE user_id = ?`, id,
	).Scan(&c.UserID, &channel, &c.State, &eanCode, &attType, &attURL, &result, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.Channel = channel.String
	c.EANCode = eanCode.String
	if attURL.Valid && attURL.String != "" {
		c.LastAttachment = &domain.Attachment{
			Type: domain.AttachmentType(attType.String),
			URL:  attURL.String,
		}
	}
	if result.Valid && result.String != "" {
		var r domain.Result
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("decode stored result: %w", err)
		}
		c.Result = &r
	}
	return &c, nil
}

func (s *SQLite) GetOrCreate(ctx context.Context, id string) (*domain.Context, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}

	now := time.Now()
	c = &domain.Context{
		UserID:    id,
		State:     domain.StateWelcome,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contexts (user_id, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		c.UserID, string(c.State), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("context created", "user", id)
	return c, nil
}

func (s *SQLite) Save(ctx context.Context, c *domain.Context) error {
	var attType, attURL string
	if c.LastAttachment != nil {
		attType = string(c.LastAttachment.Type)
		attURL = c.LastAttachment.URL
	}

	var result string
	if c.Result != nil {
		data, err := json.Marshal(c.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		result = string(data)
	}

	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contexts (user_id, channel, state, ean_code, attachment_type, attachment_url, result, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			channel = excluded.channel,
			state = excluded.state,
			ean_code = excluded.ean_code,
			attachment_type = excluded.attachment_type,
			attachment_url = excluded.attachment_url,
			result = excluded.result,
			updated_at = excluded.updated_at`,
		c.UserID, c.Channel, string(c.State), c.EANCode, attType, attURL, result, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *SQLite) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contexts WHERE user_id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Sweep removes contexts not updated since olderThan.
func (s *SQLite) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contexts WHERE updated_at < ?`, olderThan)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("swept stale contexts", "removed", n)
	}
	return int(n), nil
}

// Count returns the number of stored contexts.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contexts`).Scan(&n)
	return n, err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
