package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

// MemoryPath opens a private in-memory database instead of a file.
const MemoryPath = ":memory:"

const (
	archiveDirMode  = 0o750
	archiveFileMode = 0o600

	pingTimeout     = 5 * time.Second
	idleConnTimeout = 30 * time.Minute
	connLifetime    = time.Hour
)

// Config mirrors the archive section of config.yaml.
type Config struct {
	// Path of the SQLite file, or MemoryPath. Missing parent directories
	// are created.
	Path string

	// WALMode lets queries run while the archive writer holds the lock.
	WALMode bool

	// BusyTimeout in seconds; zero fails immediately on a locked database.
	BusyTimeout int
}

// DB is an open SQLite handle with migration and health-check helpers.
// The embedded *sql.DB is usable directly for queries.
type DB struct {
	*sql.DB
	path string
}

// Open connects to the database described by cfg and verifies it answers.
//
// The pool is limited to one connection: SQLite allows a single writer and
// each connection to :memory: would otherwise get its own empty database.
//
// Parameters:
//   - cfg: Archive database settings
//
// Returns:
//   - *DB: Ready-to-use handle; call Migrate before touching tables
//   - error: If the directory, driver or first ping fails
func Open(cfg Config) (*DB, error) {
	memory := cfg.Path == MemoryPath

	if !memory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), archiveDirMode); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dataSourceName(cfg, memory))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", cfg.Path, err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if !memory {
		sqlDB.SetConnMaxLifetime(connLifetime)
		sqlDB.SetConnMaxIdleTime(idleConnTimeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("pinging sqlite database %s: %w", cfg.Path, err)
	}

	if !memory {
		// The file appears on first write for a fresh database, so a
		// failure here is not fatal.
		_ = os.Chmod(cfg.Path, archiveFileMode) //nolint:errcheck // see above
	}

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// dataSourceName builds the go-sqlite3 connection string for cfg.
func dataSourceName(cfg Config, memory bool) string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.Itoa(int((time.Duration(cfg.BusyTimeout) * time.Second).Milliseconds())))
	params.Set("_foreign_keys", "on")
	if cfg.WALMode && !memory {
		params.Set("_journal_mode", "WAL")
		params.Set("_synchronous", "NORMAL")
	}
	return "file:" + cfg.Path + "?" + params.Encode()
}

// Path returns the path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs a trivial query to confirm the connection still works.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("sqlite health check: %w", err)
	}
	return nil
}

// BeginTx starts a transaction. Callers defer tx.Rollback, which is a no-op
// once Commit has succeeded.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return tx, nil
}

// Close releases the connection. It is safe to call on a nil or already
// closed DB.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	err := db.DB.Close()
	db.DB = nil
	if err != nil {
		return fmt.Errorf("closing sqlite database: %w", err)
	}
	return nil
}
