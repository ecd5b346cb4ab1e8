package stripegw

import (
	"context"
	"errors"
	"time"
)

// Thin gateway DTOs decoupled from the SDK's wire structs so that domain
// services and their tests do not depend on SDK field layout.

type Customer struct {
	ID                     string
	Email                  string
	DefaultPaymentMethodID string
	// BalanceCents is the gateway-reported credit balance in minor units.
	// Negative means the customer has credit.
	BalanceCents int64
}

type SubscriptionItem struct {
	ID                 string
	PriceID            string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

type Subscription struct {
	ID                     string
	Status                 string
	CustomerID             string
	Items                  []SubscriptionItem
	DefaultPaymentMethodID string
	LatestInvoiceID        string
	CancelAtPeriodEnd      bool
}

// PrimaryItem returns the single plan line item. Billing subscriptions here
// always carry exactly one item.
func (s *Subscription) PrimaryItem() (SubscriptionItem, bool) {
	if s == nil || len(s.Items) == 0 {
		return SubscriptionItem{}, false
	}
	return s.Items[0], true
}

const (
	InvoiceStatusDraft         = "draft"
	InvoiceStatusOpen          = "open"
	InvoiceStatusPaid          = "paid"
	InvoiceStatusVoid          = "void"
	InvoiceStatusUncollectible = "uncollectible"
)

type Invoice struct {
	ID              string
	Status          string
	CustomerID      string
	SubscriptionID  string
	AmountDueCents  int64
	AmountPaidCents int64
	Currency        string
}

// Payable reports whether a payment attempt makes sense for the invoice state.
func (i *Invoice) Payable() bool {
	return i != nil && i.Status == InvoiceStatusOpen
}

type UpdateItemPriceRequest struct {
	SubscriptionID string
	ItemID         string
	PriceID        string
	// Prorate selects create_prorations; false applies the price without
	// proration (scheduled end-of-period changes).
	Prorate        bool
	IdempotencyKey string
}

// Gateway is the payment-gateway surface the billing core consumes. All calls
// are synchronous with a fixed network timeout.
type Gateway interface {
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	PayInvoice(ctx context.Context, id string) (*Invoice, error)
	UpdateSubscriptionItemPrice(ctx context.Context, req UpdateItemPriceRequest) (*Subscription, error)
}

// ErrNotFound is returned when the gateway reports the resource missing.
var ErrNotFound = errors.New("gateway resource not found")

// TransientError marks gateway failures worth retrying (network, rate limit,
// gateway 5xx). Everything else is treated as permanent by the task layer.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient gateway error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
