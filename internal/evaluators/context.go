// Package evaluators implements the six fixed, deterministic risk
// scoring rules the sentinel aggregator invokes on every transaction.
// Each evaluator is a pure function over a transaction, its owning
// user's profile and a small slice of surrounding context; none of
// them touch shared state. The six rules are fixed Go logic, not
// user-authorable expressions.
package evaluators

import "github.com/opensource-finance/sentinel/internal/domain"

// Context carries the surrounding state an evaluator needs beyond the
// transaction and profile themselves: recent history for this user and
// the set of devices seen recently, both computed once per evaluation
// by the aggregator and shared across all six evaluators.
type Context struct {
	// LastTx is the most recent prior transaction for this user, or nil
	// if this is the user's first observed transaction.
	LastTx *domain.Transaction

	// UserHistory is every retained transaction for this user, in
	// insertion order, not including the transaction being evaluated.
	UserHistory []domain.Transaction

	// RecentDeviceIDs is the set of device IDs seen for this user
	// within the trailing 5 minutes, including the current
	// transaction's device.
	RecentDeviceIDs map[string]struct{}
}

// Result is the score contribution and human-readable narrative
// produced by one evaluator.
type Result struct {
	Score      int
	Reasons    []string
	Multiplier float64
}
