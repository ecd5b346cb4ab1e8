package renewal

import (
	"time"

	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/internal/platform/stripegw"
	"github.com/adscope/billing/pkg/types"
)

// skipReason explains why the sweep left a subscription alone this round.
type skipReason string

const (
	skipNone     skipReason = ""
	skipCanceled skipReason = "canceled"
	skipDebounce skipReason = "attempted_recently"
	skipDisabled skipReason = "auto_renew_disabled"
)

// shouldSkip applies the cheap pre-gateway checks: canceled subscriptions and
// ones attempted within the retry cooldown are left alone.
func shouldSkip(sub *models.Subscription, now time.Time, cooldown time.Duration) skipReason {
	if !sub.AutoRenewEnabled {
		return skipDisabled
	}
	if sub.Status == types.SubscriptionStatusCanceled {
		return skipCanceled
	}
	if sub.LastRenewalAttemptAt != nil && now.Sub(*sub.LastRenewalAttemptAt) < cooldown {
		return skipDebounce
	}
	return skipNone
}

// resolvePaymentMethod prefers the subscription-level default payment method
// and falls back to the customer-level one.
func resolvePaymentMethod(gwSub *stripegw.Subscription, cust *stripegw.Customer) string {
	if gwSub != nil && gwSub.DefaultPaymentMethodID != "" {
		return gwSub.DefaultPaymentMethodID
	}
	if cust != nil {
		return cust.DefaultPaymentMethodID
	}
	return ""
}
