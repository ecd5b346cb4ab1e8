package lifecycle

import (
	"time"

	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/pkg/types"
)

// RenewalSupersedes reports whether the subscription auto-renewed at or after
// effectiveDate, in which case a scheduled downgrade for that date must be
// skipped: the customer already paid for another period at the old plan.
//
// The check is a wall-clock heuristic, either a successful renewal attempt
// stamped at or after the effective date, or a period start that advanced
// past it. It is kept as a standalone function so the comparison can be
// replaced with a period sequence number without touching the executor.
func RenewalSupersedes(sub *models.Subscription, effectiveDate time.Time) bool {
	if sub == nil {
		return false
	}
	if sub.LastRenewalStatus == types.RenewalStatusSuccess &&
		sub.LastRenewalAttemptAt != nil &&
		!sub.LastRenewalAttemptAt.Before(effectiveDate) {
		return true
	}
	if sub.CurrentPeriodStart != nil && sub.CurrentPeriodStart.After(effectiveDate) {
		return true
	}
	return false
}
