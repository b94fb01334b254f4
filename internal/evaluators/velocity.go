package evaluators

import (
	"fmt"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// VelocityCeiling is the maximum score the velocity evaluator can
// contribute.
const VelocityCeiling = 65

// velocityWindowMs is the trailing window used to count recent
// transactions for velocity checks.
const velocityWindowMs = 600_000

// Velocity flags bursts of transactions, repeated minimal-value
// probing ("spam") transactions, and a run of recent failed
// authentication attempts.
func Velocity(tx domain.Transaction, profile domain.UserProfile, ctx Context) Result {
	var score int
	var reasons []string

	cutoff := tx.Timestamp - velocityWindowMs
	var countInWindow, oneRupeeCount int
	for _, h := range ctx.UserHistory {
		if h.Timestamp > cutoff {
			countInWindow++
			if h.Amount == 1 {
				oneRupeeCount++
			}
		}
	}

	if countInWindow > 5 {
		score += 30
		reasons = append(reasons, fmt.Sprintf(
			"%s: %d transactions in the trailing 10 minutes exceeds the burst limit",
			domain.ReasonVelocityLimit, countInWindow))
	}

	if tx.Amount == 1 && oneRupeeCount > 3 {
		score += 30
		reasons = append(reasons, fmt.Sprintf(
			"%s: ₹1 spam burst, %d prior ₹1 transactions in window",
			domain.ReasonVelocityLimit, oneRupeeCount))
	}

	if profile.FailedAttemptsLast10Min > 3 {
		score += 35
		reasons = append(reasons, fmt.Sprintf(
			"%s: %d failed attempts in the trailing 10 minutes",
			domain.ReasonVelocityLimit, profile.FailedAttemptsLast10Min))
	}

	if score > VelocityCeiling {
		score = VelocityCeiling
	}

	return Result{Score: score, Reasons: reasons}
}
