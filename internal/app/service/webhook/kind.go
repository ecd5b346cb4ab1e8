package webhook

// EventKind enumerates the gateway event types the dispatcher understands.
// Parsing is total: anything unrecognized maps to KindUnknown, which the
// dispatcher ignores by design.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindCustomerUpdated
	KindInvoiceCreated
	KindInvoicePaid
	KindInvoicePaymentFailed
	KindSubscriptionUpdated
	KindSubscriptionDeleted
)

var kindByType = map[string]EventKind{
	"customer.updated":              KindCustomerUpdated,
	"invoice.created":               KindInvoiceCreated,
	"invoice.paid":                  KindInvoicePaid,
	"invoice.payment_succeeded":     KindInvoicePaid,
	"invoice.payment_failed":        KindInvoicePaymentFailed,
	"customer.subscription.updated": KindSubscriptionUpdated,
	"customer.subscription.deleted": KindSubscriptionDeleted,
}

func ParseEventKind(eventType string) EventKind {
	if k, ok := kindByType[eventType]; ok {
		return k
	}
	return KindUnknown
}

func (k EventKind) String() string {
	switch k {
	case KindCustomerUpdated:
		return "customer_updated"
	case KindInvoiceCreated:
		return "invoice_created"
	case KindInvoicePaid:
		return "invoice_paid"
	case KindInvoicePaymentFailed:
		return "invoice_payment_failed"
	case KindSubscriptionUpdated:
		return "subscription_updated"
	case KindSubscriptionDeleted:
		return "subscription_deleted"
	default:
		return "unknown"
	}
}
