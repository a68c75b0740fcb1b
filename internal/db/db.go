package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goran-ethernal/ChainIndexor/internal/config"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const dbFolderPerm = 0755

// ensureDBFolder ensures the directory that contains dbPath exists.
// Example dbPath: "./data/mytokenindexer.sqlite"
func ensureDBFolder(dbPath string) error {
	dir := filepath.Dir(dbPath)
	return os.MkdirAll(dir, dbFolderPerm)
}

// NewSQLiteDB opens (creating if absent) the SQLite file at dbPath with
// baseline pragmas. Callers needing pool/pragma tuning should use
// NewSQLiteDBFromConfig instead.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	if err := ensureDBFolder(dbPath); err != nil {
		return nil, fmt.Errorf("failed to ensure DB folder: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_txlock=immediate&_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}

// NewSQLiteDBFromConfig opens (creating if absent) the SQLite file named
// filename inside cfg.Directory. Separate stores (event store, derived
// store) pass distinct filenames to share one DatabaseConfig.
func NewSQLiteDBFromConfig(cfg config.DatabaseConfig, filename string) (*sql.DB, error) {
	dbPath := filepath.Join(cfg.Directory, filename)

	if err := ensureDBFolder(dbPath); err != nil {
		return nil, fmt.Errorf("failed to ensure DB folder: %w", err)
	}

	connStr := fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=on&_journal_mode=%s&_busy_timeout=%d",
		dbPath,
		cfg.JournalMode,
		cfg.BusyTimeout,
	)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply connection pool settings
	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)

	// Apply PRAGMA settings
	pragmas := []string{
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.Synchronous),
		fmt.Sprintf("PRAGMA cache_size = %d", cfg.CacheSize),
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return db, nil
}

// NewPostgresDB opens a connection pool against connString via pgx's
// database/sql driver. Event store and derived store share one *sql.DB here
// (unlike SQLite, where they get distinct files) since their migrations use
// disjoint table names.
func NewPostgresDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	sqlDB, err := sql.Open("pgx", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	return sqlDB, nil
}

// DBTotalSize returns the combined size of the SQLite main file + WAL + SHM.
// If WAL/SHM do not exist, they are simply ignored.
func DBTotalSize(dbPath string) (int64, error) {
	total := int64(0)

	// Check main database file
	if info, err := os.Stat(dbPath); err == nil {
		total += info.Size()
	} else if !os.IsNotExist(err) {
		return 0, err
	}

	// Add WAL + SHM if present
	for _, ext := range []string{"-wal", "-shm"} {
		p := dbPath + ext
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		} else if !os.IsNotExist(err) {
			return 0, err
		}
	}

	return total, nil
}

func Vacuum(db *sql.DB) error {
	isWALMode, err := isWALMode(db)
	if err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}

	// If in WAL mode, use checkpoint to reclaim space
	if isWALMode {
		return vacuumWAL(db)
	}

	// For non-WAL modes (DELETE, TRUNCATE, PERSIST), VACUUM also requires exclusive access
	// Attempt VACUUM - this may fail if other connections are active
	_, err = db.Exec(`VACUUM;`)
	if err != nil {
		// If locked, return an error that names the lock contention - this is expected in production
		if strings.Contains(err.Error(), "database is locked") {
			return fmt.Errorf("cannot vacuum: database is locked by other connections (run during maintenance window): %w", err)
		}
		return fmt.Errorf("failed to vacuum database: %w", err)
	}

	return nil
}

func vacuumWAL(db *sql.DB) error {
	// In WAL mode with multiple active connections (sync manager, reorg detector, log store),
	// switching journal modes requires exclusive access which will fail.
	// Instead, use checkpoint to merge WAL and reclaim space without mode switching.
	// This provides ~10-15% space reclamation, which is sufficient for production use.

	// Use TRUNCATE checkpoint to merge WAL into main DB and remove/shrink WAL file
	if _, err := db.Exec(`PRAGMA wal_checkpoint(TRUNCATE);`); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}

	// Note: We skip VACUUM because:
	// 1. In production, sync manager, reorg detector, and log store all hold connections
	// 2. Checkpoint alone provides adequate space reclamation for ongoing operations

	return nil
}

func isWALMode(db *sql.DB) (bool, error) {
	var mode string
	if err := db.QueryRow(`PRAGMA journal_mode;`).Scan(&mode); err != nil {
		return false, err
	}
	return strings.EqualFold(mode, "wal"), nil
}
