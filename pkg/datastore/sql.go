// Package datastore persists credentials and the upload ledger in SQLite.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AxlAleT/Redes2/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides database access for credentials and uploads.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) a SQLite database and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}

	ctx := context.Background()

	// WAL lets concurrent sessions read credentials while an upload is recorded.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}

	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS credentials (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		username   TEXT    NOT NULL CHECK(length(username) > 0 AND length(username) <= 255),
		secret     TEXT    NOT NULL CHECK(length(secret) > 0 AND length(secret) <= 255),
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS credentials_username ON credentials(username);

	CREATE TABLE IF NOT EXISTS uploads (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		uploader       TEXT    NOT NULL,
		remote_addr    TEXT    NOT NULL DEFAULT '',
		declared_name  TEXT    NOT NULL,
		sanitized_name TEXT    NOT NULL,
		path           TEXT    NOT NULL,
		size           INTEGER NOT NULL CHECK(size >= 0),
		bytes_written  INTEGER NOT NULL DEFAULT 0,
		digest         TEXT    NOT NULL DEFAULT '',
		received_at    TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	ctx := context.Background()
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("datastore: migrate v%d: %w", m.version, err)
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.DB.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.DB.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// ---- Credentials ----

// Lookup queries the credentials table on every call. Query failures are
// logged and fail closed.
func (s *Store) Lookup(username, secret string) bool {
	var one int
	err := s.DB.QueryRowContext(context.Background(),
		"SELECT 1 FROM credentials WHERE username = ? AND secret = ? LIMIT 1",
		username, secret,
	).Scan(&one)
	switch {
	case err == nil:
		return true
	case errors.Is(err, sql.ErrNoRows):
		return false
	default:
		slog.Warn("credential lookup failed", "source", "sqlite", "err", err)
		return false
	}
}

// ListUsernames returns distinct usernames in first-inserted order.
func (s *Store) ListUsernames() ([]string, error) {
	rows, err := s.DB.QueryContext(context.Background(),
		"SELECT username FROM credentials GROUP BY username ORDER BY MIN(id)")
	if err != nil {
		return nil, fmt.Errorf("datastore: list usernames: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("datastore: scan username: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// AddCredential appends one record. Duplicate usernames are allowed.
func (s *Store) AddCredential(c model.Credential) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("datastore: add credential: %w", err)
	}
	return insertCredential(context.Background(), s.DB, c)
}

// ImportCredentials inserts creds in one transaction, optionally replacing
// every existing record. Records that could never authenticate are skipped
// and logged. It returns the number of records inserted.
func (s *Store) ImportCredentials(ctx context.Context, creds []model.Credential, replace bool) (int, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("datastore: begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if replace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM credentials"); err != nil {
			return 0, fmt.Errorf("datastore: clear credentials: %w", err)
		}
	}

	imported := 0
	for _, c := range creds {
		if err := c.Validate(); err != nil {
			slog.Warn("skipping credential", "user", c.Username, "err", err)
			continue
		}
		if err := insertCredential(ctx, tx, c); err != nil {
			return 0, err
		}
		imported++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("datastore: commit import: %w", err)
	}
	return imported, nil
}

func insertCredential(ctx context.Context, db DB, c model.Credential) error {
	if _, err := db.ExecContext(ctx,
		"INSERT INTO credentials (username, secret) VALUES (?, ?)",
		c.Username, c.Secret,
	); err != nil {
		return fmt.Errorf("datastore: insert credential: %w", err)
	}
	return nil
}

// ---- Uploads ----

// RecordUpload appends a completed transfer and returns its ID.
func (s *Store) RecordUpload(u model.Upload) (int64, error) {
	if u.ReceivedAt.IsZero() {
		u.ReceivedAt = time.Now()
	}
	res, err := s.DB.ExecContext(context.Background(), `
		INSERT INTO uploads (uploader, remote_addr, declared_name, sanitized_name, path, size, bytes_written, digest, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Uploader, u.RemoteAddr, u.DeclaredName, u.SanitizedName, u.Path,
		u.Size, u.BytesWritten, u.Digest, formatDBTime(u.ReceivedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("datastore: record upload: %w", err)
	}
	return res.LastInsertId()
}

// ListUploads returns the ledger oldest first.
func (s *Store) ListUploads() ([]model.Upload, error) {
	rows, err := s.DB.QueryContext(context.Background(), `
		SELECT id, uploader, remote_addr, declared_name, sanitized_name, path, size, bytes_written, digest, received_at
		FROM uploads ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("datastore: list uploads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var uploads []model.Upload
	for rows.Next() {
		var u model.Upload
		var receivedAt string
		if err := rows.Scan(&u.ID, &u.Uploader, &u.RemoteAddr, &u.DeclaredName, &u.SanitizedName,
			&u.Path, &u.Size, &u.BytesWritten, &u.Digest, &receivedAt); err != nil {
			return nil, fmt.Errorf("datastore: scan upload: %w", err)
		}
		if u.ReceivedAt, err = parseDBTime(receivedAt); err != nil {
			return nil, fmt.Errorf("datastore: parse received_at: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}
