package evaluators

import (
	"fmt"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// BehavioralCeiling is the maximum score the behavioral evaluator can
// contribute, before its multiplier is applied by the aggregator.
const BehavioralCeiling = 65

// Behavioral flags off-hours logins, dormant accounts and failed or
// pending KYC, and reports a score multiplier derived from the user's
// baseline risk category. loc pins the calendar used to derive the
// transaction's local hour so tests are reproducible regardless of the
// host's system timezone; callers pass time.UTC unless a different
// zone is explicitly configured.
func Behavioral(tx domain.Transaction, profile domain.UserProfile, loc *time.Location, _ Context) Result {
	if loc == nil {
		loc = time.UTC
	}

	var score int
	var reasons []string

	hour := time.UnixMilli(tx.Timestamp).In(loc).Hour()
	if hour < profile.UsualLoginTimes.Start || hour > profile.UsualLoginTimes.End {
		score += 10
		reasons = append(reasons, fmt.Sprintf(
			"%s: login hour %d outside usual window [%d,%d]",
			domain.ReasonBehavioralShift, hour, profile.UsualLoginTimes.Start, profile.UsualLoginTimes.End))
	}

	if profile.AccountStatus == domain.AccountDormant {
		score += 45
		reasons = append(reasons, fmt.Sprintf("%s: account is dormant", domain.ReasonBehavioralShift))
	}

	switch profile.KYCStatus {
	case domain.KYCFailed:
		score += 35
		reasons = append(reasons, fmt.Sprintf("%s: KYC status is FAILED", domain.ReasonBehavioralShift))
	case domain.KYCPending:
		score += 10
		reasons = append(reasons, fmt.Sprintf("%s: KYC status is PENDING", domain.ReasonBehavioralShift))
	}

	if score > BehavioralCeiling {
		score = BehavioralCeiling
	}

	multiplier := 1.0
	switch profile.RiskCategory {
	case domain.RiskHigh:
		multiplier = 1.2
	case domain.RiskMedium:
		multiplier = 1.1
	}

	return Result{Score: score, Reasons: reasons, Multiplier: multiplier}
}
