package evaluators

import (
	"fmt"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// AmountCeiling is the maximum score the amount evaluator can
// contribute. Its three tiers are mutually exclusive, so the ceiling
// is only ever reached by the top tier alone.
const AmountCeiling = 75

// Amount flags a transaction whose value crosses one of three
// exclusive thresholds relative to the user's profile: the hard
// per-transaction max, the daily limit, or a spike relative to the
// user's average. Only the first (highest) matching tier applies.
func Amount(tx domain.Transaction, profile domain.UserProfile, _ Context) Result {
	switch {
	case tx.Amount > profile.MaxTransactionAmount:
		return Result{
			Score: 75,
			Reasons: []string{fmt.Sprintf(
				"%s: amount %d exceeds max transaction amount %d",
				domain.ReasonVelocityLimit, tx.Amount, profile.MaxTransactionAmount)},
		}
	case tx.Amount > profile.DailyTransactionLimit:
		return Result{
			Score: 45,
			Reasons: []string{fmt.Sprintf(
				"%s: amount %d exceeds daily transaction limit %d",
				domain.ReasonVelocityLimit, tx.Amount, profile.DailyTransactionLimit)},
		}
	case tx.Amount > 3*profile.AvgTransactionAmount:
		return Result{
			Score: 20,
			Reasons: []string{fmt.Sprintf(
				"%s: amount %d spikes past 3x average %d",
				domain.ReasonBehavioralShift, tx.Amount, profile.AvgTransactionAmount)},
		}
	default:
		return Result{}
	}
}
