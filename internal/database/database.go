package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ideaengine/ideaengine/internal/logging"
	_ "github.com/mattn/go-sqlite3"
)

var log = logging.GetLogger("database")

// Database is a connection to the SQLite-backed topic/stance store.
type Database struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens a database connection. The caller must still call
// InitSchema before use.
func Open(path string) (*Database, error) {
	log.Info("opening database", "path", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error("failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.Error("failed to open database", "error", err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports exactly one writer; a single pooled connection
	// keeps every statement serialized against it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		log.Error("failed to ping database", "error", err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{db: db, path: path}
	log.Info("database connection established", "path", path)
	return database, nil
}

// InitSchema creates the schema if it does not already exist.
func (d *Database) InitSchema() error {
	log.Info("initializing database schema", "version", SchemaVersion)

	d.mu.Lock()
	defer d.mu.Unlock()

	var tableName string
	err := d.db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='ideas'
		LIMIT 1
	`).Scan(&tableName)
	if err == nil && tableName != "" {
		log.Info("schema already initialized")
		return nil
	}
	log.Debug("schema not yet initialized", "check_err", err)

	tx, err := d.db.Begin()
	if err != nil {
		log.Error("failed to begin transaction", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(CoreSchema); err != nil {
		log.Error("failed to create core schema", "error", err)
		return fmt.Errorf("failed to create core schema: %w", err)
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO schema_version (version, applied_at)
		VALUES (?, CURRENT_TIMESTAMP)
	`, SchemaVersion)
	if err != nil {
		log.Error("failed to record schema version", "error", err)
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit schema", "error", err)
		return fmt.Errorf("failed to commit schema: %w", err)
	}

	log.Info("database schema initialized successfully", "version", SchemaVersion)
	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	log.Info("closing database connection")
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			log.Error("failed to close database", "error", err)
			return err
		}
	}
	return nil
}

// DB returns the underlying sql.DB for transaction-scoped callers.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// BeginTx starts a new transaction. Callers own rollback/commit; every
// ingest and rebalance operation runs inside exactly one of these.
func (d *Database) BeginTx() (*sql.Tx, error) {
	return d.db.Begin()
}

// GetSchemaVersion returns the current schema version.
func (d *Database) GetSchemaVersion() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var version int
	err := d.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Stats summarizes the size of the store.
type Stats struct {
	Path          string
	SchemaVersion int
	IdeaCount     int
	TopicCount    int
	EdgeCount     int
	RelationCount int
	FileSizeBytes int64
}

// GetStats returns summary counts across the core tables.
func (d *Database) GetStats() (*Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := &Stats{Path: d.path}
	if version, err := d.GetSchemaVersion(); err == nil {
		stats.SchemaVersion = version
	}
	d.db.QueryRow("SELECT COUNT(*) FROM ideas").Scan(&stats.IdeaCount)
	d.db.QueryRow("SELECT COUNT(*) FROM topics").Scan(&stats.TopicCount)
	d.db.QueryRow("SELECT COUNT(*) FROM edges").Scan(&stats.EdgeCount)
	d.db.QueryRow("SELECT COUNT(*) FROM idea_relations").Scan(&stats.RelationCount)

	if info, err := os.Stat(d.path); err == nil {
		stats.FileSizeBytes = info.Size()
	}
	return stats, nil
}

// Checkpoint forces a WAL checkpoint.
func (d *Database) Checkpoint() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
