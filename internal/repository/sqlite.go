package repository

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/opensource-finance/sentinel/internal/domain"
	_ "modernc.org/sqlite"
)

// sqliteBusyTimeoutMs bounds how long a writer waits for the database
// lock before failing. The ledger and its transaction/profile tables
// share one file, and evaluate requests append to the transaction and
// ledger tables on the hot path, so a low timeout would surface spurious lock errors under the
// concurrent load the community-tier server expects.
const sqliteBusyTimeoutMs = 5000

// openSQLite opens the single-file store backing the Community tier:
// transactions, profiles and the ledger all land in one SQLite database.
// Uses modernc.org/sqlite for a pure Go driver (no CGO required).
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./sentinel.db"
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL lets the /evaluate write path (transaction + ledger append)
	// proceed while /ledger and /users/{id}/history reads run
	// concurrently against the same file.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)",
		path, sqliteBusyTimeoutMs,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	slog.Info("sqlite database opened",
		"path", path,
		"journal_mode", "WAL",
		"busy_timeout_ms", sqliteBusyTimeoutMs,
	)

	return db, nil
}
