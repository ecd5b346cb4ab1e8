package models

import (
	"time"

	"github.com/adscope/billing/pkg/types"
)

// Subscription stores a workspace's subscription state, mirrored against the
// gateway. Renewal bookkeeping fields feed the renew-first ordering check.
type Subscription struct {
	ID          string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	WorkspaceID string `gorm:"column:workspace_id;type:varchar(64);not null;uniqueIndex" json:"workspace_id"`
	PlanID      string `gorm:"column:plan_id;type:varchar(64);not null" json:"plan_id"`
	// PendingPlanID is the target of a scheduled end-of-period change.
	PendingPlanID      *string                  `gorm:"column:pending_plan_id;type:varchar(64)" json:"pending_plan_id"`
	Status             types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Interval           types.BillingInterval    `gorm:"column:interval;type:varchar(16);not null" json:"interval"`
	CurrentPeriodStart *time.Time               `gorm:"column:current_period_start;default:null" json:"current_period_start"`
	CurrentPeriodEnd   *time.Time               `gorm:"column:current_period_end;default:null;index" json:"current_period_end"`

	AutoRenewEnabled bool `gorm:"column:auto_renew_enabled;not null;default:true" json:"auto_renew_enabled"`
	// AutoRenewOverride distinguishes a user-initiated disable from a
	// system-initiated one; user-initiated disables survive gateway syncs.
	AutoRenewOverride types.AutoRenewOverride `gorm:"column:auto_renew_override;type:varchar(32);not null;default:'none'" json:"auto_renew_override"`

	RenewalAttempts      int                 `gorm:"column:renewal_attempts;not null;default:0" json:"renewal_attempts"`
	LastRenewalAttemptAt *time.Time          `gorm:"column:last_renewal_attempt_at;default:null" json:"last_renewal_attempt_at"`
	LastRenewalStatus    types.RenewalStatus `gorm:"column:last_renewal_status;type:varchar(16);not null;default:'never'" json:"last_renewal_status"`

	StripeSubscriptionID *string `gorm:"column:stripe_subscription_id;type:varchar(128);uniqueIndex:unique_subscription_stripe_id" json:"stripe_subscription_id"`
	StripeCustomerID     *string `gorm:"column:stripe_customer_id;type:varchar(128)" json:"stripe_customer_id"`
	BillingOwnerUserID   *string `gorm:"column:billing_owner_user_id;type:varchar(64)" json:"billing_owner_user_id"`

	Notes     string    `gorm:"column:notes;type:text" json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscription" }

// GatewayLinked reports whether the subscription is bound to a gateway object.
func (s *Subscription) GatewayLinked() bool {
	return s != nil && s.StripeSubscriptionID != nil && *s.StripeSubscriptionID != ""
}
