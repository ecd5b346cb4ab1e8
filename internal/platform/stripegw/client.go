package stripegw

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/adscope/billing/pkg/config"
)

// Client implements Gateway on top of the Stripe SDK (v83 client API).
type Client struct {
	sc  *stripe.Client
	log *zap.SugaredLogger
}

func NewClient(cfg *cfgpkg.Config, log *zap.SugaredLogger) (*Client, error) {
	if cfg.Stripe.APIKey == "" {
		return nil, fmt.Errorf("stripe api key is empty")
	}
	httpClient := &http.Client{Timeout: cfg.GatewayTimeout()}
	sc := stripe.NewClient(cfg.Stripe.APIKey, stripe.WithBackends(stripe.NewBackends(httpClient)))
	return &Client{sc: sc, log: log}, nil
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	cust, err := c.sc.V1Customers.Retrieve(ctx, id, &stripe.CustomerRetrieveParams{})
	if err != nil {
		return nil, classify(err)
	}
	out := &Customer{ID: cust.ID, Email: cust.Email, BalanceCents: cust.Balance}
	if cust.InvoiceSettings != nil && cust.InvoiceSettings.DefaultPaymentMethod != nil {
		out.DefaultPaymentMethodID = cust.InvoiceSettings.DefaultPaymentMethod.ID
	}
	return out, nil
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	sub, err := c.sc.V1Subscriptions.Retrieve(ctx, id, &stripe.SubscriptionRetrieveParams{})
	if err != nil {
		return nil, classify(err)
	}
	return mapSubscription(sub), nil
}

func (c *Client) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	inv, err := c.sc.V1Invoices.Retrieve(ctx, id, &stripe.InvoiceRetrieveParams{})
	if err != nil {
		return nil, classify(err)
	}
	return mapInvoice(inv), nil
}

func (c *Client) PayInvoice(ctx context.Context, id string) (*Invoice, error) {
	inv, err := c.sc.V1Invoices.Pay(ctx, id, &stripe.InvoicePayParams{})
	if err != nil {
		return nil, classify(err)
	}
	return mapInvoice(inv), nil
}

func (c *Client) UpdateSubscriptionItemPrice(ctx context.Context, req UpdateItemPriceRequest) (*Subscription, error) {
	behavior := "none"
	if req.Prorate {
		behavior = "create_prorations"
	}
	params := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{{
			ID:    stripe.String(req.ItemID),
			Price: stripe.String(req.PriceID),
		}},
		ProrationBehavior: stripe.String(behavior),
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	sub, err := c.sc.V1Subscriptions.Update(ctx, req.SubscriptionID, params)
	if err != nil {
		return nil, classify(err)
	}
	return mapSubscription(sub), nil
}

func mapSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.DefaultPaymentMethod != nil {
		out.DefaultPaymentMethodID = sub.DefaultPaymentMethod.ID
	}
	if sub.LatestInvoice != nil {
		out.LatestInvoiceID = sub.LatestInvoice.ID
	}
	if sub.Items != nil {
		for _, it := range sub.Items.Data {
			item := SubscriptionItem{
				ID:                 it.ID,
				CurrentPeriodStart: time.Unix(it.CurrentPeriodStart, 0),
				CurrentPeriodEnd:   time.Unix(it.CurrentPeriodEnd, 0),
			}
			if it.Price != nil {
				item.PriceID = it.Price.ID
			}
			out.Items = append(out.Items, item)
		}
	}
	return out
}

func mapInvoice(inv *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:              inv.ID,
		Status:          string(inv.Status),
		AmountDueCents:  inv.AmountDue,
		AmountPaidCents: inv.AmountPaid,
		Currency:        string(inv.Currency),
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
		out.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
	}
	return out
}

// classify maps SDK errors onto the gateway error taxonomy: 404 -> ErrNotFound,
// 429/5xx and transport failures -> TransientError, the rest pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if stripeErr, ok := err.(*stripe.Error); ok {
		switch {
		case stripeErr.HTTPStatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, stripeErr.Msg)
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			return &TransientError{Err: err}
		default:
			return err
		}
	}
	// No typed SDK error means the request never got a response.
	return &TransientError{Err: err}
}

var Module = fx.Options(
	fx.Provide(
		NewClient,
		func(c *Client) Gateway { return c },
	),
)
