// Package domain defines the core interfaces and types for sentinel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	// GetTransactionsByUser returns transactions for userID with
	// timestamp (milliseconds since epoch) >= since.
	GetTransactionsByUser(ctx context.Context, userID string, since int64) ([]*Transaction, error)

	// User profile operations
	SaveProfile(ctx context.Context, profile *UserProfile) error
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)

	// Ledger operations
	AppendLedgerEntry(ctx context.Context, entry *LedgerEntry) error
	GetLedgerEntry(ctx context.Context, index int) (*LedgerEntry, error)
	ListLedgerEntries(ctx context.Context) ([]*LedgerEntry, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
