package webhook

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire shapes for the event payloads the handlers consume. Only the fields
// the core reads are declared; everything else in the gateway payload is
// carried opaquely in the event log.

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func decodeEnvelope(payload []byte) (*eventEnvelope, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}
	if len(env.Data.Object) == 0 {
		return nil, fmt.Errorf("event payload has no data object")
	}
	return &env, nil
}

func decodeObject(env *eventEnvelope, v any) error {
	if err := json.Unmarshal(env.Data.Object, v); err != nil {
		return fmt.Errorf("malformed %s object: %w", env.Type, err)
	}
	return nil
}

type customerObject struct {
	ID      string `json:"id"`
	Balance int64  `json:"balance"`
}

type invoiceObject struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Customer string `json:"customer"`
	Parent   *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
	Lines      struct {
		Data []struct {
			Period struct {
				Start int64 `json:"start"`
				End   int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func (o *invoiceObject) subscriptionID() string {
	if o.Parent != nil && o.Parent.SubscriptionDetails != nil {
		return o.Parent.SubscriptionDetails.Subscription
	}
	return ""
}

func (o *invoiceObject) period() (start, end time.Time) {
	if len(o.Lines.Data) == 0 {
		return time.Time{}, time.Time{}
	}
	p := o.Lines.Data[0].Period
	if p.Start > 0 {
		start = time.Unix(p.Start, 0)
	}
	if p.End > 0 {
		end = time.Unix(p.End, 0)
	}
	return start, end
}

type subscriptionObject struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	Customer          string `json:"customer"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	Items             struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// InvoiceData is the handler- and renewal-facing view of an invoice.
type InvoiceData struct {
	ID              string
	Status          string
	CustomerID      string
	SubscriptionID  string
	AmountPaidCents int64
	Currency        string
	PeriodStart     time.Time
	PeriodEnd       time.Time
}

func (o *invoiceObject) toData() InvoiceData {
	start, end := o.period()
	return InvoiceData{
		ID:              o.ID,
		Status:          o.Status,
		CustomerID:      o.Customer,
		SubscriptionID:  o.subscriptionID(),
		AmountPaidCents: o.AmountPaid,
		Currency:        o.Currency,
		PeriodStart:     start,
		PeriodEnd:       end,
	}
}
