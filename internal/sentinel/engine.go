// Package sentinel implements the aggregator engine: the single
// entry point that gathers context for an incoming transaction, runs
// the six risk evaluators, folds in coordinated-attack amplification
// and escalation overrides, and returns a bounded, reason-coded
// decision. Grounded on tadp.Processor.Process's shape (assemble
// context, aggregate, decide, populate metadata) and on
// TypologyEngine's single-mutex discipline around shared maps.
package sentinel

import (
	"math"
	"sync"
	"time"

	"github.com/opensource-finance/sentinel/internal/coord"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/escalation"
	"github.com/opensource-finance/sentinel/internal/evaluators"
	"github.com/opensource-finance/sentinel/internal/latency"
)

// ThresholdPass is the score below which a transaction is approved.
const ThresholdPass = 40

// ThresholdBlock is the score at or above which a transaction is
// blocked outright.
const ThresholdBlock = 70

// HistoryCap is the maximum number of transactions retained per user.
const HistoryCap = 1000

// recentDeviceWindowMs is the trailing window used to build the set of
// recently active devices for a user.
const recentDeviceWindowMs = 300_000

// coordMultiplier amplifies the base score when a coordinated cluster
// is detected around the current transaction.
const coordMultiplier = 1.25

// Engine is the single-actor risk scoring engine. All exported methods
// serialize behind one mutex; multiple Engine instances share no
// state.
type Engine struct {
	mu sync.Mutex

	history map[string][]domain.Transaction
	latency *latency.Buffer
	coord   *coord.Detector
	escl    *escalation.Tracker

	// loc pins the calendar used by the behavioral evaluator. Defaults
	// to time.UTC so evaluation is reproducible independent of host
	// timezone configuration.
	loc *time.Location
}

// New creates an engine with empty state, evaluating behavioral hours
// against time.UTC.
func New() *Engine {
	return NewWithLocation(time.UTC)
}

// NewWithLocation creates an engine that evaluates the behavioral
// evaluator's local-hour check against loc instead of UTC.
func NewWithLocation(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		history: make(map[string][]domain.Transaction),
		latency: latency.NewBuffer(),
		coord:   coord.NewDetector(),
		escl:    escalation.NewTracker(),
		loc:     loc,
	}
}

// Evaluate scores a single transaction against a user profile and
// returns the complete decision. It is the only mutating entry point
// on Engine and is fully synchronous: no I/O, no cancellation.
func (e *Engine) Evaluate(tx domain.Transaction, profile domain.UserProfile) domain.FinalRiskResult {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if profile.AccountStatus == domain.AccountBlocked {
		result := domain.FinalRiskResult{
			TransactionID:  tx.TransactionID,
			UserID:         tx.UserID,
			Amount:         tx.Amount,
			Timestamp:      tx.Timestamp,
			FinalRiskScore: 100,
			Decision:       domain.DecisionBlock,
			Reasoning:      []string{string(domain.ReasonBlockedUser) + ": account is blocked"},
			ReasonCode:     domain.ReasonBlockedUser,
		}
		e.recordLatencyLocked(&result, start)
		return result
	}

	userHistory := e.history[tx.UserID]

	var lastTx *domain.Transaction
	if n := len(userHistory); n > 0 {
		last := userHistory[n-1]
		lastTx = &last
	}

	recentDevices := map[string]struct{}{tx.DeviceID: {}}
	deviceCutoff := tx.Timestamp - recentDeviceWindowMs
	for _, h := range userHistory {
		if h.Timestamp > deviceCutoff {
			recentDevices[h.DeviceID] = struct{}{}
		}
	}

	evalCtx := evaluators.Context{
		LastTx:          lastTx,
		UserHistory:     userHistory,
		RecentDeviceIDs: recentDevices,
	}

	geo := evaluators.Geo(tx, profile, evalCtx)
	velocity := evaluators.Velocity(tx, profile, evalCtx)
	device := evaluators.Device(tx, profile, evalCtx)
	amount := evaluators.Amount(tx, profile, evalCtx)
	network := evaluators.Network(tx, profile, evalCtx)
	behavioral := evaluators.Behavioral(tx, profile, e.loc, evalCtx)

	components := domain.ComponentScores{
		Geo:        geo.Score,
		Velocity:   velocity.Score,
		Device:     device.Score,
		Amount:     amount.Score,
		Network:    network.Score,
		Behavioral: behavioral.Score,
	}

	var reasoning []string
	reasoning = append(reasoning, geo.Reasons...)
	reasoning = append(reasoning, velocity.Reasons...)
	reasoning = append(reasoning, device.Reasons...)
	reasoning = append(reasoning, amount.Reasons...)
	reasoning = append(reasoning, network.Reasons...)
	reasoning = append(reasoning, behavioral.Reasons...)

	baseScore := float64(components.Sum())
	if behavioral.Multiplier > 1 {
		baseScore = math.Floor(baseScore * behavioral.Multiplier)
	}

	e.coord.Record(tx)
	coordinated := e.coord.Detect(tx)
	if coordinated {
		baseScore = math.Floor(baseScore * coordMultiplier)
		reasoning = append(reasoning, string(domain.ReasonCoordinatedAttack)+": transaction matches a coordinated cluster")
	}

	finalScore := clamp(int(baseScore), 0, 100)

	var decision domain.Decision
	var reasonCode domain.ReasonCode
	var escalationOverride bool

	switch {
	case finalScore >= ThresholdBlock:
		decision = domain.DecisionBlock
		if coordinated {
			reasonCode = domain.ReasonCoordinatedAttack
		} else {
			reasonCode = domain.PrimaryReasonCode(reasoning)
		}

	case finalScore >= ThresholdPass:
		if e.escl.ShouldForceBlock(tx.UserID, finalScore, tx.Timestamp) {
			decision = domain.DecisionBlock
			reasonCode = domain.ReasonEscalationOverride
			escalationOverride = true
			finalScore = max(finalScore, ThresholdBlock)
			reasoning = append(reasoning, string(domain.ReasonEscalationOverride)+": repeated step-ups forced a block")
		} else {
			velocityFail := countSince(userHistory, tx.Timestamp-600_000) > 8
			deviceFail := len(recentDevices) > 2
			coordFail := e.coord.Detect(tx)
			escFail := e.escl.ShouldForceBlock(tx.UserID, ThresholdBlock, tx.Timestamp)

			if velocityFail || deviceFail || coordFail || escFail {
				decision = domain.DecisionBlock
			} else {
				decision = domain.DecisionStepUp
			}
			reasonCode = domain.PrimaryReasonCode(reasoning)
		}

	default:
		decision = domain.DecisionApprove
		reasonCode = domain.ReasonOK
	}

	switch decision {
	case domain.DecisionStepUp:
		e.escl.RecordStepUp(tx.UserID, tx.Timestamp)
	case domain.DecisionBlock:
		e.escl.Clear(tx.UserID)
	}

	e.appendHistoryLocked(tx)

	result := domain.FinalRiskResult{
		TransactionID:      tx.TransactionID,
		UserID:             tx.UserID,
		Amount:             tx.Amount,
		Timestamp:          tx.Timestamp,
		FinalRiskScore:     finalScore,
		ComponentScores:    components,
		Decision:           decision,
		Reasoning:          reasoning,
		ReasonCode:         reasonCode,
		CoordinatedAttack:  coordinated,
		EscalationOverride: escalationOverride,
	}
	e.recordLatencyLocked(&result, start)

	return result
}

// GetHistory returns a copy of the retained transactions for userID,
// in insertion order.
func (e *Engine) GetHistory(userID string) []domain.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := e.history[userID]
	out := make([]domain.Transaction, len(h))
	copy(out, h)
	return out
}

// GetLatencyStats returns a consistent snapshot of the engine's
// rolling processing-time buffer.
func (e *Engine) GetLatencyStats() latency.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latency.Snapshot()
}

func (e *Engine) appendHistoryLocked(tx domain.Transaction) {
	h := append(e.history[tx.UserID], tx)
	if len(h) > HistoryCap {
		h = h[len(h)-HistoryCap:]
	}
	e.history[tx.UserID] = h
}

func (e *Engine) recordLatencyLocked(result *domain.FinalRiskResult, start time.Time) {
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	e.latency.Record(elapsed)
	result.ProcessingTimeMs = elapsed
	result.LatencyBreach = e.latency.IsBreach()
}

func countSince(history []domain.Transaction, cutoff int64) int {
	count := 0
	for _, h := range history {
		if h.Timestamp > cutoff {
			count++
		}
	}
	return count
}

func clamp(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
