package evaluators

import (
	"fmt"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// DeviceCeiling is the maximum score the device evaluator can
// contribute.
const DeviceCeiling = 55

// Device flags a transaction from a device other than the one
// registered on the profile, and flags device-hopping when more than
// one distinct device has been seen for the user in the trailing 5
// minutes.
func Device(tx domain.Transaction, profile domain.UserProfile, ctx Context) Result {
	var score int
	var reasons []string

	if tx.DeviceID != profile.RegisteredDeviceID {
		score += 25
		reasons = append(reasons, fmt.Sprintf(
			"%s: device %q does not match registered device %q",
			domain.ReasonBehavioralShift, tx.DeviceID, profile.RegisteredDeviceID))
	}

	if len(ctx.RecentDeviceIDs) > 1 {
		score += 30
		reasons = append(reasons, fmt.Sprintf(
			"%s: %d distinct devices seen in the trailing 5 minutes",
			domain.ReasonBehavioralShift, len(ctx.RecentDeviceIDs)))
	}

	if score > DeviceCeiling {
		score = DeviceCeiling
	}

	return Result{Score: score, Reasons: reasons}
}
