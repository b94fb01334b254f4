// Package repository provides data persistence implementations for
// sentinel's transaction, profile and ledger records.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opensource-finance/sentinel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql. Works
// with both the SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction persists a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, user_id, amount, timestamp, device_id, ip_address,
			lat, lon, city, merchant_id, merchant_category, network_type, session_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.TransactionID, tx.UserID, tx.Amount, tx.Timestamp, tx.DeviceID, tx.IPAddress,
		tx.Location.Lat, tx.Location.Lon, tx.Location.City,
		tx.MerchantID, tx.MerchantCategory, string(tx.NetworkType), tx.SessionID,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, user_id, amount, timestamp, device_id, ip_address,
		       lat, lon, city, merchant_id, merchant_category, network_type, session_id
		FROM transactions
		WHERE id = ?
	`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

// GetTransactionsByUser retrieves a user's transactions with timestamp
// (ms since epoch) >= since, ordered by timestamp ascending.
func (r *SQLRepository) GetTransactionsByUser(ctx context.Context, userID string, since int64) ([]*domain.Transaction, error) {
	query := `
		SELECT id, user_id, amount, timestamp, device_id, ip_address,
		       lat, lon, city, merchant_id, merchant_category, network_type, session_id
		FROM transactions
		WHERE user_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var networkType string
	var ip, city, merchantID, merchantCategory, sessionID sql.NullString
	var lat, lon sql.NullFloat64

	err := row.Scan(
		&tx.TransactionID, &tx.UserID, &tx.Amount, &tx.Timestamp, &tx.DeviceID, &ip,
		&lat, &lon, &city, &merchantID, &merchantCategory, &networkType, &sessionID,
	)
	if err != nil {
		return nil, err
	}

	tx.IPAddress = ip.String
	tx.Location = domain.Location{Lat: lat.Float64, Lon: lon.Float64, City: city.String}
	tx.MerchantID = merchantID.String
	tx.MerchantCategory = merchantCategory.String
	tx.NetworkType = domain.NetworkType(networkType)
	tx.SessionID = sessionID.String

	return &tx, nil
}

// SaveProfile upserts a user profile.
func (r *SQLRepository) SaveProfile(ctx context.Context, p *domain.UserProfile) error {
	query := `
		INSERT INTO profiles (
			user_id, registered_city, registered_device_id, avg_transaction_amount,
			max_transaction_amount, daily_transaction_limit, avg_transactions_per_day,
			kyc_status, risk_category, account_status, usual_login_start, usual_login_end,
			last_login, failed_attempts_last_10_min
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			registered_city = excluded.registered_city,
			registered_device_id = excluded.registered_device_id,
			avg_transaction_amount = excluded.avg_transaction_amount,
			max_transaction_amount = excluded.max_transaction_amount,
			daily_transaction_limit = excluded.daily_transaction_limit,
			avg_transactions_per_day = excluded.avg_transactions_per_day,
			kyc_status = excluded.kyc_status,
			risk_category = excluded.risk_category,
			account_status = excluded.account_status,
			usual_login_start = excluded.usual_login_start,
			usual_login_end = excluded.usual_login_end,
			last_login = excluded.last_login,
			failed_attempts_last_10_min = excluded.failed_attempts_last_10_min
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.UserID, p.RegisteredCity, p.RegisteredDeviceID, p.AvgTransactionAmount,
		p.MaxTransactionAmount, p.DailyTransactionLimit, p.AvgTransactionsPerDay,
		string(p.KYCStatus), string(p.RiskCategory), string(p.AccountStatus),
		p.UsualLoginTimes.Start, p.UsualLoginTimes.End, p.LastLogin, p.FailedAttemptsLast10Min,
	)
	return err
}

// GetProfile retrieves a user profile.
func (r *SQLRepository) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	query := `
		SELECT user_id, registered_city, registered_device_id, avg_transaction_amount,
		       max_transaction_amount, daily_transaction_limit, avg_transactions_per_day,
		       kyc_status, risk_category, account_status, usual_login_start, usual_login_end,
		       last_login, failed_attempts_last_10_min
		FROM profiles
		WHERE user_id = ?
	`

	var p domain.UserProfile
	var kyc, risk, account string
	var lastLogin sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), userID).Scan(
		&p.UserID, &p.RegisteredCity, &p.RegisteredDeviceID, &p.AvgTransactionAmount,
		&p.MaxTransactionAmount, &p.DailyTransactionLimit, &p.AvgTransactionsPerDay,
		&kyc, &risk, &account, &p.UsualLoginTimes.Start, &p.UsualLoginTimes.End,
		&lastLogin, &p.FailedAttemptsLast10Min,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.KYCStatus = domain.KYCStatus(kyc)
	p.RiskCategory = domain.RiskCategory(risk)
	p.AccountStatus = domain.AccountStatus(account)
	p.LastLogin = lastLogin.Time

	return &p, nil
}

// AppendLedgerEntry persists one ledger entry. Callers are expected to
// have already validated chain integrity via hashchain.Ledger.
func (r *SQLRepository) AppendLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (
			idx, transaction_id, timestamp, final_risk_score, decision,
			previous_hash, current_hash, data_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		e.Index, e.TransactionID, e.Timestamp, e.FinalRiskScore, e.Decision,
		e.PreviousHash, e.CurrentHash, e.DataHash,
	)
	return err
}

// GetLedgerEntry retrieves a single ledger entry by index.
func (r *SQLRepository) GetLedgerEntry(ctx context.Context, index int) (*domain.LedgerEntry, error) {
	query := `
		SELECT idx, transaction_id, timestamp, final_risk_score, decision,
		       previous_hash, current_hash, data_hash
		FROM ledger_entries
		WHERE idx = ?
	`

	var e domain.LedgerEntry
	err := r.db.QueryRowContext(ctx, r.rebind(query), index).Scan(
		&e.Index, &e.TransactionID, &e.Timestamp, &e.FinalRiskScore, &e.Decision,
		&e.PreviousHash, &e.CurrentHash, &e.DataHash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListLedgerEntries returns the full ledger, ordered by index.
func (r *SQLRepository) ListLedgerEntries(ctx context.Context) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT idx, transaction_id, timestamp, final_risk_score, decision,
		       previous_hash, current_hash, data_hash
		FROM ledger_entries
		ORDER BY idx ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(
			&e.Index, &e.TransactionID, &e.Timestamp, &e.FinalRiskScore, &e.Decision,
			&e.PreviousHash, &e.CurrentHash, &e.DataHash,
		); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
