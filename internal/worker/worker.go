// Package worker provides async transaction processing driven by the
// event bus, for deployments that ingest transactions faster than a
// synchronous HTTP request can score them.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/hashchain"
	"github.com/opensource-finance/sentinel/internal/ingest"
	"github.com/opensource-finance/sentinel/internal/repository"
	"github.com/opensource-finance/sentinel/internal/sentinel"
)

// Worker consumes ingested transactions from the EventBus, scores them
// through the engine, appends the decision to the ledger, and fans the
// result back out.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	cache  domain.Cache
	engine *sentinel.Engine
	ledger *hashchain.Ledger

	subscription domain.Subscription
	wg           sync.WaitGroup
}

// Config holds worker configuration.
type Config struct {
	// QueueDepth is an advisory concurrency hint; the current
	// implementation processes messages as the bus delivers them.
	QueueDepth int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, engine *sentinel.Engine, ledger *hashchain.Ledger) *Worker {
	return &Worker{
		bus:    bus,
		repo:   repo,
		cache:  cache,
		engine: engine,
		ledger: ledger,
	}
}

// Start subscribes to the transaction-ingested topic and begins
// processing messages asynchronously.
func (w *Worker) Start(ctx context.Context, cfg Config) error {
	sub, err := w.bus.Subscribe(ctx, domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscription = sub

	slog.Info("worker started", "topic", domain.TopicTransactionIngested)
	return nil
}

// handleMessage decodes and scores one ingested transaction request.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	start := time.Now()

	var req domain.TransactionRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("worker: failed to parse transaction message", "message_id", msg.ID, "error", err)
		return err
	}

	profile, err := w.loadProfile(ctx, req.UserID)
	if err != nil {
		slog.Error("worker: failed to load profile", "userId", req.UserID, "error", err)
		return err
	}

	tx := ingest.Transaction(req, *profile)

	result := w.engine.Evaluate(tx, *profile)

	entry, err := w.ledger.VerifyAndAppend(result)
	if err != nil {
		slog.Error("worker: ledger append failed", "transactionId", result.TransactionID, "error", err)
		return err
	}

	if w.repo != nil {
		if err := w.repo.SaveTransaction(ctx, &tx); err != nil {
			slog.Error("worker: failed to save transaction", "transactionId", tx.TransactionID, "error", err)
		}
		if err := w.repo.AppendLedgerEntry(ctx, &entry); err != nil {
			slog.Error("worker: failed to persist ledger entry", "index", entry.Index, "error", err)
		}
	}

	w.publish(ctx, result)

	slog.Info("worker: transaction processed",
		"transactionId", result.TransactionID,
		"userId", tx.UserID,
		"decision", result.Decision,
		"score", result.FinalRiskScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// loadProfile mirrors the HTTP handler's cache -> repository -> default
// fallback chain.
func (w *Worker) loadProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	if w.cache != nil {
		if p, err := w.cache.GetProfile(ctx, userID); err == nil && p != nil {
			return p, nil
		}
	}

	if w.repo != nil {
		p, err := w.repo.GetProfile(ctx, userID)
		switch {
		case err == nil:
			if w.cache != nil {
				_ = w.cache.SetProfile(ctx, userID, p, 5*time.Minute)
			}
			return p, nil
		case errors.Is(err, repository.ErrNotFound):
			// fall through to the default profile
		default:
			return nil, err
		}
	}

	defaultProfile := ingest.DefaultProfile(userID)
	return &defaultProfile, nil
}

// publish fans the decision out to subscribers; BLOCK decisions also
// raise an alert. Publish failures are logged, never fatal.
func (w *Worker) publish(ctx context.Context, result domain.FinalRiskResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("worker: failed to marshal decision payload", "error", err)
		return
	}

	if err := w.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
		slog.Error("worker: failed to publish decision", "error", err)
	}

	if result.Decision == domain.DecisionBlock {
		if err := w.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Error("worker: failed to publish alert", "error", err)
		}
	}
}

// Stop gracefully stops the worker, waiting for in-flight messages to
// finish processing.
func (w *Worker) Stop() error {
	if w.subscription != nil {
		if err := w.subscription.Unsubscribe(); err != nil {
			slog.Error("worker: failed to unsubscribe", "topic", w.subscription.Topic(), "error", err)
		}
		w.subscription = nil
	}

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats reports whether the worker is currently subscribed.
type Stats struct {
	Subscribed bool   `json:"subscribed"`
	Topic      string `json:"topic,omitempty"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	if w.subscription == nil {
		return Stats{}
	}
	return Stats{Subscribed: true, Topic: w.subscription.Topic()}
}
