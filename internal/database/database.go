// Package database manages the SQLite connection and schema migrations.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// DB wraps the database connection.
type DB struct {
	conn *sql.DB
	path string
}

// New opens the SQLite database, creating the parent directory if needed.
func New(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode plus a busy timeout: the scheduler's completing handlers and
	// the HTTP layer share a single writer.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite only supports one writer
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Backup writes a consistent snapshot of the database into destDir using
// VACUUM INTO, and prunes older snapshots beyond keep. Returns the path of
// the snapshot it created.
func (db *DB) Backup(ctx context.Context, destDir string, keep int) (string, error) {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("driftwood-%s.db", time.Now().UTC().Format("20060102-150405"))
	dest := filepath.Join(destDir, name)

	if _, err := db.conn.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return "", fmt.Errorf("failed to back up database: %w", err)
	}

	if keep > 0 {
		if err := pruneBackups(destDir, keep); err != nil {
			return dest, fmt.Errorf("failed to prune old backups: %w", err)
		}
	}
	return dest, nil
}

func pruneBackups(destDir string, keep int) error {
	matches, err := filepath.Glob(filepath.Join(destDir, "driftwood-*.db"))
	if err != nil {
		return err
	}
	if len(matches) <= keep {
		return nil
	}
	// Timestamped names sort chronologically.
	sort.Strings(matches)
	for _, stale := range matches[:len(matches)-keep] {
		if err := os.Remove(stale); err != nil {
			return err
		}
	}
	return nil
}

// Migrate runs all pending migrations using the embedded SQL files.
func (db *DB) Migrate() error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db.conn, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
