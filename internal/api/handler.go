package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/hashchain"
	"github.com/opensource-finance/sentinel/internal/ingest"
	"github.com/opensource-finance/sentinel/internal/repository"
	"github.com/opensource-finance/sentinel/internal/sentinel"
	"github.com/opensource-finance/sentinel/internal/velocity"
)

// profileCacheTTL bounds how long a loaded profile is trusted in cache
// before the next evaluation re-reads it from the repository.
const profileCacheTTL = 5 * time.Minute

// defaultVelocityWindowSecs is the trailing window used by
// GET /users/{id}/velocity when the caller doesn't specify one.
const defaultVelocityWindowSecs = 3600

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *sentinel.Engine
	ledger   *hashchain.Ledger
	velocity *velocity.Service
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *sentinel.Engine, ledger *hashchain.Ledger, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   engine,
		ledger:   ledger,
		velocity: velocity.NewService(repo),
		version:  version,
	}
}

// EvaluateResponse is the response for POST /evaluate.
type EvaluateResponse struct {
	domain.FinalRiskResult
	LedgerIndex int    `json:"ledgerIndex"`
	CurrentHash string `json:"currentHash"`
	Metadata    struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Evaluate handles POST /evaluate requests: scores a transaction, links
// the decision into the ledger, and persists both.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "userId is required",
		})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}

	profile, err := h.loadProfile(ctx, req.UserID)
	if err != nil {
		slog.Error("failed to load user profile", "userId", req.UserID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load user profile",
		})
		return
	}

	tx := ingest.Transaction(req, *profile)

	result := h.engine.Evaluate(tx, *profile)

	entry, err := h.ledger.VerifyAndAppend(result)
	if err != nil {
		slog.Error("ledger append failed", "transactionId", result.TransactionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "ledger integrity check failed",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveTransaction(ctx, &tx); err != nil {
			slog.Error("failed to save transaction", "transactionId", tx.TransactionID, "error", err)
		}
		if err := h.repo.AppendLedgerEntry(ctx, &entry); err != nil {
			slog.Error("failed to persist ledger entry", "index", entry.Index, "error", err)
		}
	}

	h.publishDecision(ctx, result)

	resp := EvaluateResponse{
		FinalRiskResult: result,
		LedgerIndex:     entry.Index,
		CurrentHash:     entry.CurrentHash,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// loadProfile checks the cache, falls back to the repository, and
// finally synthesizes a default profile for users with no history.
func (h *Handler) loadProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	if h.cache != nil {
		if p, err := h.cache.GetProfile(ctx, userID); err == nil && p != nil {
			return p, nil
		}
	}

	if h.repo != nil {
		p, err := h.repo.GetProfile(ctx, userID)
		switch {
		case err == nil:
			if h.cache != nil {
				_ = h.cache.SetProfile(ctx, userID, p, profileCacheTTL)
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

// publishDecision fans the decision out to subscribers. BLOCK decisions
// also raise an alert. Publish failures are logged, never surfaced to
// the caller: the ledger write is the durable record of the decision.
func (h *Handler) publishDecision(ctx context.Context, result domain.FinalRiskResult) {
	if h.bus == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("failed to marshal decision payload", "error", err)
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
		slog.Error("failed to publish decision", "error", err)
	}

	if result.Decision == domain.DecisionBlock {
		if err := h.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert", "error", err)
		}
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetLedger returns the full hash-chained decision ledger.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": h.ledger.Chain(),
		"length":  h.ledger.Len(),
	})
}

// VerifyLedger checks the in-memory ledger's hash-chain integrity.
func (h *Handler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":  h.ledger.VerifyIntegrity(),
		"length": h.ledger.Len(),
	})
}

// GetUserHistory returns the in-memory transaction history the engine
// holds for a user, most recent HistoryCap entries.
func (h *Handler) GetUserHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "user id is required",
		})
		return
	}

	history := h.engine.GetHistory(userID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":       userID,
		"transactions": history,
		"count":        len(history),
	})
}

// GetUserVelocity returns a persisted transaction count for userID
// over a trailing window, independent of the engine's bounded
// in-memory history.
func (h *Handler) GetUserVelocity(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "user id is required",
		})
		return
	}

	windowSecs := defaultVelocityWindowSecs
	if raw := r.URL.Query().Get("windowSecs"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			windowSecs = n
		}
	}

	count, err := h.velocity.GetTransactionCount(r.Context(), userID, windowSecs)
	if err != nil {
		slog.Error("failed to compute persisted velocity", "userId", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute velocity",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":     userID,
		"windowSecs": windowSecs,
		"count":      count,
	})
}

// GetLatencyStats returns the rolling average evaluation latency, the
// breach flag and the recent samples.
func (h *Handler) GetLatencyStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.GetLatencyStats())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
