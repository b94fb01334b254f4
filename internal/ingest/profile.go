package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// ErrMissingRequiredColumn is returned when a profile CSV lacks a
// required header column.
var ErrMissingRequiredColumn = errors.New("ingest: missing required column")

// Default values applied to optional user-profile columns.
const (
	DefaultRegisteredCity        = "Unknown"
	DefaultRegisteredDeviceID    = "dev_unknown"
	DefaultAvgTransactionAmount  = int64(1000)
	DefaultMaxTransactionAmount  = int64(50000)
	DefaultDailyTransactionLimit = int64(100000)
	DefaultAvgTransactionsPerDay = float64(5)
	DefaultLoginStart            = 8
	DefaultLoginEnd              = 22
)

// requiredProfileColumns lists the header columns a profile CSV must
// contain.
var requiredProfileColumns = []string{"user_id"}

// ProfileBatch is the outcome of ingesting a profile CSV: the
// successfully parsed profiles plus a count of skipped malformed rows.
type ProfileBatch struct {
	Profiles []domain.UserProfile
	Skipped  int
}

// Profiles parses a CSV of user profiles per the accepted-columns
// table. Missing optional columns fall back to the documented
// defaults; a missing required column fails the whole batch. Malformed
// individual rows are skipped and counted rather than failing the
// batch, and logged as warnings.
func Profiles(r io.Reader, logger *slog.Logger) (ProfileBatch, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return ProfileBatch{}, nil
		}
		return ProfileBatch{}, fmt.Errorf("ingest: reading header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(col)] = i
	}

	for _, required := range requiredProfileColumns {
		if _, ok := index[required]; !ok {
			return ProfileBatch{}, fmt.Errorf("%w: %s", ErrMissingRequiredColumn, required)
		}
	}

	var batch ProfileBatch

	rowNum := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			batch.Skipped++
			logger.Warn("ingest: skipping malformed profile row", "row", rowNum, "error", err)
			continue
		}

		profile, ok := parseProfileRow(row, index)
		if !ok {
			batch.Skipped++
			logger.Warn("ingest: skipping profile row missing user_id", "row", rowNum)
			continue
		}

		batch.Profiles = append(batch.Profiles, profile)
	}

	return batch, nil
}

// DefaultProfile builds a profile for a user with no on-file history,
// using the same defaults applied to optional CSV columns.
func DefaultProfile(userID string) domain.UserProfile {
	return domain.UserProfile{
		UserID:                userID,
		RegisteredCity:        DefaultRegisteredCity,
		RegisteredDeviceID:    DefaultRegisteredDeviceID,
		AvgTransactionAmount:  DefaultAvgTransactionAmount,
		MaxTransactionAmount:  DefaultMaxTransactionAmount,
		DailyTransactionLimit: DefaultDailyTransactionLimit,
		AvgTransactionsPerDay: DefaultAvgTransactionsPerDay,
		KYCStatus:             domain.KYCVerified,
		RiskCategory:          domain.RiskLow,
		AccountStatus:         domain.AccountActive,
		UsualLoginTimes:       domain.LoginWindow{Start: DefaultLoginStart, End: DefaultLoginEnd},
	}
}

func parseProfileRow(row []string, index map[string]int) (domain.UserProfile, bool) {
	get := func(col string) (string, bool) {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return "", false
		}
		v := strings.TrimSpace(row[i])
		return v, v != ""
	}

	userID, ok := get("user_id")
	if !ok {
		return domain.UserProfile{}, false
	}

	profile := domain.UserProfile{
		UserID:                  userID,
		RegisteredCity:          DefaultRegisteredCity,
		RegisteredDeviceID:      DefaultRegisteredDeviceID,
		AvgTransactionAmount:    DefaultAvgTransactionAmount,
		MaxTransactionAmount:    DefaultMaxTransactionAmount,
		DailyTransactionLimit:   DefaultDailyTransactionLimit,
		AvgTransactionsPerDay:   DefaultAvgTransactionsPerDay,
		KYCStatus:               domain.KYCVerified,
		RiskCategory:            domain.RiskLow,
		AccountStatus:           domain.AccountActive,
		UsualLoginTimes:         domain.LoginWindow{Start: DefaultLoginStart, End: DefaultLoginEnd},
		FailedAttemptsLast10Min: 0,
	}

	if v, ok := get("registered_city"); ok {
		profile.RegisteredCity = v
	}
	if v, ok := get("registered_device_id"); ok {
		profile.RegisteredDeviceID = v
	}
	if v, ok := get("avg_transaction_amount"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			profile.AvgTransactionAmount = n
		}
	}
	if v, ok := get("max_transaction_amount"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			profile.MaxTransactionAmount = n
		}
	}
	if v, ok := get("daily_transaction_limit"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			profile.DailyTransactionLimit = n
		}
	}
	if v, ok := get("avg_transactions_per_day"); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			profile.AvgTransactionsPerDay = n
		}
	}
	if v, ok := get("kyc_status"); ok {
		profile.KYCStatus = domain.KYCStatus(v)
	}
	if v, ok := get("risk_category"); ok {
		profile.RiskCategory = domain.RiskCategory(v)
	}
	if v, ok := get("account_status"); ok {
		profile.AccountStatus = domain.AccountStatus(v)
	}
	if v, ok := get("usual_login_start"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			profile.UsualLoginTimes.Start = n
		}
	}
	if v, ok := get("usual_login_end"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			profile.UsualLoginTimes.End = n
		}
	}
	if v, ok := get("failed_attempts_last_10_min"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			profile.FailedAttemptsLast10Min = n
		}
	}

	return profile, true
}
