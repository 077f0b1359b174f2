package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"montevecchio/internal/repository"
)

const defaultGroupID = "default"

// Store is the SQLite document store. The household document lives in a
// single row of group_documents.
type Store struct {
	db      *sql.DB
	path    string
	groupID string
	logger  zerolog.Logger
}

// Open creates the database directory and schema when missing.
func Open(path string, logger *zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{
		db:      db,
		path:    path,
		groupID: defaultGroupID,
		logger:  logger.With().Str("component", "sqlite_store").Logger(),
	}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	s.logger.Info().Str("path", path).Msg("Database initialized")
	return s, nil
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS group_documents (
			id         TEXT PRIMARY KEY,
			version    INTEGER NOT NULL,
			body       TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context) (repository.Document, error) {
	var (
		doc     repository.Document
		body    string
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, body, updated_at FROM group_documents WHERE id = ?`, s.groupID,
	).Scan(&doc.Version, &body, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.Document{}, repository.ErrNotFound
	}
	if err != nil {
		return repository.Document{}, fmt.Errorf("sqlite load: %w", err)
	}
	doc.Body = []byte(body)
	if ts, perr := time.Parse(time.RFC3339Nano, updated); perr == nil {
		doc.UpdatedAt = ts
	}
	return doc, nil
}

func (s *Store) Save(ctx context.Context, body []byte, expectedVersion int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	next := expectedVersion + 1

	var (
		res sql.Result
		err error
	)
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO group_documents (id, version, body, updated_at) VALUES (?, ?, ?, ?)`,
			s.groupID, next, string(body), now)
		if isConstraint(err) {
			return 0, repository.ErrVersionConflict
		}
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE group_documents SET version = ?, body = ?, updated_at = ? WHERE id = ? AND version = ?`,
			next, string(body), now, s.groupID, expectedVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite save: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite save: %w", err)
	}
	if rows == 0 {
		return 0, repository.ErrVersionConflict
	}
	return next, nil
}

func (s *Store) Put(ctx context.Context, doc repository.Document) error {
	updated := doc.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_documents (id, version, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		s.groupID, doc.Version, string(doc.Body), updated.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite put: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Snapshot writes a consistent copy of the database to dest.
func (s *Store) Snapshot(ctx context.Context, dest string) error {
	_, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dest)
	return err
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
