package types

// AccountKind distinguishes integer token accounts from decimal credit accounts.
type AccountKind string

const (
	AccountKindToken  AccountKind = "token"
	AccountKindCredit AccountKind = "credit"
)

type TransactionType string

const (
	TransactionTypePurchase         TransactionType = "purchase"
	TransactionTypeConsume          TransactionType = "consume"
	TransactionTypeManualAdjustment TransactionType = "manual_adjustment"
	TransactionTypeRefund           TransactionType = "refund"
	TransactionTypeSync             TransactionType = "sync"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

type RenewalStatus string

const (
	RenewalStatusNever   RenewalStatus = "never"
	RenewalStatusSuccess RenewalStatus = "success"
	RenewalStatusFailed  RenewalStatus = "failed"
	RenewalStatusRetry   RenewalStatus = "retry"
)

// AutoRenewOverride records who turned auto-renew off. A user-initiated
// disable must survive gateway syncs that would otherwise re-enable it.
type AutoRenewOverride string

const (
	AutoRenewOverrideNone         AutoRenewOverride = "none"
	AutoRenewOverrideUserDisabled AutoRenewOverride = "user_disabled"
)

type PlanChangeType string

const (
	PlanChangeTypeUpgrade   PlanChangeType = "upgrade"
	PlanChangeTypeDowngrade PlanChangeType = "downgrade"
)

type EffectiveTiming string

const (
	EffectiveTimingImmediate   EffectiveTiming = "immediate"
	EffectiveTimingEndOfPeriod EffectiveTiming = "end_of_period"
)

type PlanChangeStatus string

const (
	PlanChangeStatusPending   PlanChangeStatus = "pending"
	PlanChangeStatusCompleted PlanChangeStatus = "completed"
	PlanChangeStatusCanceled  PlanChangeStatus = "canceled"
	PlanChangeStatusFailed    PlanChangeStatus = "failed"
)
