package evaluators

import (
	"fmt"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// NetworkCeiling is the maximum score the network evaluator can
// contribute.
const NetworkCeiling = 30

// Network flags transactions originating over a VPN or an unreported
// connectivity type.
func Network(tx domain.Transaction, _ domain.UserProfile, _ Context) Result {
	switch tx.NetworkType {
	case domain.NetworkVPN:
		return Result{
			Score:   20,
			Reasons: []string{fmt.Sprintf("%s: connection via VPN", domain.ReasonBehavioralShift)},
		}
	case domain.NetworkUnknown:
		return Result{
			Score:   10,
			Reasons: []string{fmt.Sprintf("%s: unknown network type", domain.ReasonBehavioralShift)},
		}
	default:
		return Result{}
	}
}
