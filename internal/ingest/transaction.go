// Package ingest converts external, partially-specified inputs — API
// request bodies and CSV profile rows — into the fully-populated
// domain types the sentinel engine requires, applying the defaulting
// table for optional fields, plus a CSV reader for replaying batches of
// transactions through the same conversion.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Default values applied to optional transaction ingest fields.
const (
	DefaultCity        = "Unknown"
	DefaultNetworkType = domain.NetworkUnknown
)

// Transaction converts a TransactionRequest into a fully-populated
// Transaction, generating a UUID and stamping the current time when
// those fields are omitted. A missing device_id defaults to the user's
// registered device rather than a sentinel string, so an omitted device
// doesn't spuriously read as a device mismatch downstream.
func Transaction(req domain.TransactionRequest, profile domain.UserProfile) domain.Transaction {
	txID := req.TransactionID
	if txID == "" {
		txID = uuid.New().String()
	}

	ts := req.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = profile.RegisteredDeviceID
	}

	loc := req.Location
	if loc.City == "" {
		loc.City = DefaultCity
	}

	networkType := req.NetworkType
	if networkType == "" {
		networkType = DefaultNetworkType
	}

	return domain.Transaction{
		TransactionID:    txID,
		UserID:           req.UserID,
		Amount:           req.Amount,
		Timestamp:        ts,
		DeviceID:         deviceID,
		IPAddress:        req.IPAddress,
		Location:         loc,
		MerchantID:       req.MerchantID,
		MerchantCategory: req.MerchantCategory,
		NetworkType:      networkType,
		SessionID:        req.SessionID,
	}
}

// requiredTransactionColumns lists the header columns a transaction CSV
// must contain.
var requiredTransactionColumns = []string{"user_id", "amount"}

// TransactionBatch is the outcome of ingesting a transaction CSV: the
// successfully parsed requests plus a count of skipped malformed rows.
type TransactionBatch struct {
	Requests []domain.TransactionRequest
	Skipped  int
}

// Transactions parses a CSV of transaction requests for replay
// tooling. Accepted columns: user_id, amount (required), device_id,
// network_type, city, lat, lon, merchant_id. Malformed individual rows
// are skipped and counted rather than failing the batch.
func Transactions(r io.Reader, logger *slog.Logger) (TransactionBatch, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return TransactionBatch{}, nil
		}
		return TransactionBatch{}, fmt.Errorf("ingest: reading header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(col)] = i
	}

	for _, required := range requiredTransactionColumns {
		if _, ok := index[required]; !ok {
			return TransactionBatch{}, fmt.Errorf("%w: %s", ErrMissingRequiredColumn, required)
		}
	}

	var batch TransactionBatch

	rowNum := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			batch.Skipped++
			logger.Warn("ingest: skipping malformed transaction row", "row", rowNum, "error", err)
			continue
		}

		req, ok := parseTransactionRow(row, index)
		if !ok {
			batch.Skipped++
			logger.Warn("ingest: skipping transaction row missing required fields", "row", rowNum)
			continue
		}

		batch.Requests = append(batch.Requests, req)
	}

	return batch, nil
}

func parseTransactionRow(row []string, index map[string]int) (domain.TransactionRequest, bool) {
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
		return domain.TransactionRequest{}, false
	}

	amountStr, ok := get("amount")
	if !ok {
		return domain.TransactionRequest{}, false
	}
	amount, err := strconv.ParseInt(amountStr, 10, 64)
	if err != nil {
		return domain.TransactionRequest{}, false
	}

	req := domain.TransactionRequest{
		UserID: userID,
		Amount: amount,
	}

	if v, ok := get("device_id"); ok {
		req.DeviceID = v
	}
	if v, ok := get("network_type"); ok {
		req.NetworkType = domain.NetworkType(strings.ToUpper(v))
	}
	if v, ok := get("city"); ok {
		req.Location.City = v
	}
	if v, ok := get("lat"); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			req.Location.Lat = n
		}
	}
	if v, ok := get("lon"); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			req.Location.Lon = n
		}
	}
	if v, ok := get("merchant_id"); ok {
		req.MerchantID = v
	}

	return req, true
}
