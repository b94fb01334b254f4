package repository

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/sentinel/internal/domain"
	_ "github.com/lib/pq"
)

// openPostgres opens the Pro-tier store backing transactions, profiles
// and the ledger. Pool sizing (MaxOpenConns/MaxIdleConns/ConnMaxLifetime)
// is applied by New once the *sql.DB is returned, since it's identical
// across drivers; this function only owns the DSN and driver-specific
// connection semantics.
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}

	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}

	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = "sentinel"
	}

	sslmode := getSSLMode(cfg.PostgresSSLMode)

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host,
		port,
		cfg.PostgresUser,
		cfg.PostgresPassword,
		dbname,
		sslmode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	slog.Info("postgres database opened",
		"host", host,
		"port", port,
		"dbname", dbname,
		"sslmode", sslmode,
	)

	return db, nil
}

func getSSLMode(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}
