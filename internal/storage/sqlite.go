package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps the snapshot document in a single row of a SQLite database.
type SQLiteBackend struct {
	db   *sql.DB
	path string
	name string
}

// NewSQLite opens or creates the SQLite database at dbPath and stores the
// snapshot under name. An empty dbPath defaults to $TMPDIR/oidelta/data.db.
func NewSQLite(dbPath, name string) (*SQLiteBackend, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "oidelta", "data.db")
	}
	if name == "" {
		name = "last_oi"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	b := &SQLiteBackend{db: db, path: dbPath, name: name}
	if err := b.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) createTables() error {
	_, err := b.db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		name       TEXT PRIMARY KEY,
		body       TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	return err
}

func (b *SQLiteBackend) Read(ctx context.Context) ([]byte, error) {
	var body string
	err := b.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE name = ?`, b.name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return []byte(body), nil
}

func (b *SQLiteBackend) Write(ctx context.Context, data []byte) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents (name, body, updated_at)
		VALUES (?,?,?)`,
		b.name, string(data), time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) String() string {
	return fmt.Sprintf("sqlite:%s#%s", b.path, b.name)
}
