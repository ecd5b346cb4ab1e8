package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adscope/billing/internal/app/service/audit"
	"github.com/adscope/billing/internal/app/service/ledger"
	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/internal/platform/db"
	"github.com/adscope/billing/pkg/config"
	"github.com/adscope/billing/pkg/logctx"
	"github.com/adscope/billing/pkg/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Processor applies gateway event semantics to local state. It is shared by
// the webhook dispatcher and the auto-renewal sweeper, which reach the same
// invoice-paid / payment-failed paths from different directions.
type Processor struct {
	cfg    *config.Config
	ledger *ledger.Service
	audit  *audit.Service
	log    *zap.SugaredLogger
}

func NewProcessor(cfg *config.Config, led *ledger.Service, aud *audit.Service, log *zap.SugaredLogger) *Processor {
	return &Processor{cfg: cfg, ledger: led, audit: aud, log: log}
}

// mapGatewayStatus translates a gateway subscription status string to the
// local enum. Unpaid collapses into past_due.
func mapGatewayStatus(s string) types.SubscriptionStatus {
	switch s {
	case "active":
		return types.SubscriptionStatusActive
	case "trialing":
		return types.SubscriptionStatusTrialing
	case "past_due", "unpaid":
		return types.SubscriptionStatusPastDue
	case "canceled":
		return types.SubscriptionStatusCanceled
	default:
		return types.SubscriptionStatusIncomplete
	}
}

func lockSubscriptionByGatewayID(ctx context.Context, tx *gorm.DB, gatewayID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("stripe_subscription_id = ?", gatewayID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (p *Processor) handleCustomerUpdated(ctx context.Context, tx *gorm.DB, env *eventEnvelope) (Result, error) {
	var obj customerObject
	if err := decodeObject(env, &obj); err != nil {
		return deadLetter(err.Error()), nil
	}
	acct, err := p.ledger.FindAccountByCustomer(ctx, obj.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return deadLetter(fmt.Sprintf("no credit account for customer %s", obj.ID)), nil
		}
		return Result{}, err
	}
	// Gateway reports available credit as a negative customer balance.
	if _, err := p.ledger.WithTx(tx).ApplyGatewayBalanceDelta(ctx, acct.ID, -obj.Balance); err != nil {
		return Result{}, err
	}
	res := processed()
	if acct.WorkspaceID != nil {
		res.WorkspaceID = *acct.WorkspaceID
	}
	return res, nil
}

func (p *Processor) handleInvoiceCreated(ctx context.Context, tx *gorm.DB, env *eventEnvelope) (Result, error) {
	var obj invoiceObject
	if err := decodeObject(env, &obj); err != nil {
		return deadLetter(err.Error()), nil
	}
	subID := obj.subscriptionID()
	if subID == "" {
		// One-off invoice: nothing for the subscription core to track.
		return ignored(), nil
	}
	sub, err := lockSubscriptionByGatewayID(ctx, tx, subID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return deadLetter(fmt.Sprintf("no subscription for gateway id %s", subID)), nil
		}
		return Result{}, err
	}
	p.audit.Record(ctx, audit.Entry{
		WorkspaceID:    sub.WorkspaceID,
		SubscriptionID: &sub.ID,
		Action:         "invoice_created",
		Actor:          "gateway",
		After:          obj.toData(),
	})
	return Result{Outcome: OutcomeProcessed, WorkspaceID: sub.WorkspaceID}, nil
}

func (p *Processor) handleInvoicePaid(ctx context.Context, tx *gorm.DB, env *eventEnvelope) (Result, error) {
	var obj invoiceObject
	if err := decodeObject(env, &obj); err != nil {
		return deadLetter(err.Error()), nil
	}
	inv := obj.toData()
	if inv.SubscriptionID == "" {
		return ignored(), nil
	}
	sub, err := lockSubscriptionByGatewayID(ctx, tx, inv.SubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return deadLetter(fmt.Sprintf("no subscription for gateway id %s", inv.SubscriptionID)), nil
		}
		return Result{}, err
	}
	if err := p.ApplyInvoicePaid(ctx, tx, sub, inv); err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return deadLetter(err.Error()), nil
		}
		return Result{}, err
	}
	return Result{Outcome: OutcomeProcessed, WorkspaceID: sub.WorkspaceID}, nil
}

func (p *Processor) handleInvoicePaymentFailed(ctx context.Context, tx *gorm.DB, env *eventEnvelope) (Result, error) {
	var obj invoiceObject
	if err := decodeObject(env, &obj); err != nil {
		return deadLetter(err.Error()), nil
	}
	inv := obj.toData()
	if inv.SubscriptionID == "" {
		return ignored(), nil
	}
	sub, err := lockSubscriptionByGatewayID(ctx, tx, inv.SubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return deadLetter(fmt.Sprintf("no subscription for gateway id %s", inv.SubscriptionID)), nil
		}
		return Result{}, err
	}
	if err := p.ApplyInvoicePaymentFailed(ctx, tx, sub, inv); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeProcessed, WorkspaceID: sub.WorkspaceID}, nil
}

func (p *Processor) handleSubscriptionUpdated(ctx context.Context, tx *gorm.DB, env *eventEnvelope) (Result, error) {
	var obj subscriptionObject
	if err := decodeObject(env, &obj); err != nil {
		return deadLetter(err.Error()), nil
	}
	sub, err := lockSubscriptionByGatewayID(ctx, tx, obj.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return deadLetter(fmt.Sprintf("no subscription for gateway id %s", obj.ID)), nil
		}
		return Result{}, err
	}

	before := *sub
	sub.Status = mapGatewayStatus(obj.Status)
	if len(obj.Items.Data) > 0 {
		item := obj.Items.Data[0]
		if plan := p.cfg.GetPlanByPriceID(item.Price.ID); plan != nil {
			sub.PlanID = plan.ID
		}
		if item.CurrentPeriodStart > 0 {
			sub.CurrentPeriodStart = lo.ToPtr(time.Unix(item.CurrentPeriodStart, 0))
		}
		if item.CurrentPeriodEnd > 0 {
			sub.CurrentPeriodEnd = lo.ToPtr(time.Unix(item.CurrentPeriodEnd, 0))
		}
	}
	// A gateway-side cancel-at-period-end disables renewal, but never
	// re-enables one the user switched off themselves.
	if obj.CancelAtPeriodEnd {
		sub.AutoRenewEnabled = false
	} else if sub.AutoRenewOverride != types.AutoRenewOverrideUserDisabled {
		sub.AutoRenewEnabled = true
	}

	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return Result{}, fmt.Errorf("failed to save subscription: %w", err)
	}
	p.audit.Record(ctx, audit.Entry{
		WorkspaceID:    sub.WorkspaceID,
		SubscriptionID: &sub.ID,
		Action:         "subscription_synced",
		Actor:          "gateway",
		Before:         before,
		After:          sub,
	})
	return Result{Outcome: OutcomeProcessed, WorkspaceID: sub.WorkspaceID}, nil
}

func (p *Processor) handleSubscriptionDeleted(ctx context.Context, tx *gorm.DB, env *eventEnvelope) (Result, error) {
	var obj subscriptionObject
	if err := decodeObject(env, &obj); err != nil {
		return deadLetter(err.Error()), nil
	}
	sub, err := lockSubscriptionByGatewayID(ctx, tx, obj.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return deadLetter(fmt.Sprintf("no subscription for gateway id %s", obj.ID)), nil
		}
		return Result{}, err
	}
	before := *sub
	sub.Status = types.SubscriptionStatusCanceled
	sub.AutoRenewEnabled = false
	sub.PendingPlanID = nil
	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return Result{}, fmt.Errorf("failed to save subscription: %w", err)
	}
	p.audit.Record(ctx, audit.Entry{
		WorkspaceID:    sub.WorkspaceID,
		SubscriptionID: &sub.ID,
		Action:         "subscription_canceled",
		Actor:          "gateway",
		Before:         before,
		After:          sub,
	})
	return Result{Outcome: OutcomeProcessed, WorkspaceID: sub.WorkspaceID}, nil
}

// ApplyInvoicePaid credits the period's token grant, advances the local
// period, and resets renewal failure bookkeeping. Token credit is keyed by the
// invoice id, so reprocessing the same invoice grants nothing twice.
func (p *Processor) ApplyInvoicePaid(ctx context.Context, tx *gorm.DB, sub *models.Subscription, inv InvoiceData) error {
	before := *sub

	plan := p.cfg.GetPlanByID(sub.PlanID)
	if plan != nil && plan.TokenGrant > 0 {
		acct, err := p.ledger.FindWorkspaceAccount(ctx, sub.WorkspaceID, types.AccountKindToken)
		if err != nil {
			return err
		}
		_, err = p.ledger.WithTx(tx).Credit(ctx, ledger.Op{
			AccountID:   acct.ID,
			Amount:      decimal.NewFromInt(plan.TokenGrant),
			Description: fmt.Sprintf("token grant for plan %s, invoice %s", plan.ID, inv.ID),
			ExternalRef: &inv.ID,
		})
		if err != nil && !errors.Is(err, ledger.ErrIdempotencyConflict) {
			return err
		}
	}

	now := time.Now()
	start, end := inv.PeriodStart, inv.PeriodEnd
	if end.IsZero() {
		// Invoice carried no line period: derive the next period locally.
		start = now
		if sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(now) {
			start = *sub.CurrentPeriodEnd
		}
		end = advancePeriod(start, sub.Interval)
	}

	sub.Status = types.SubscriptionStatusActive
	sub.CurrentPeriodStart = &start
	sub.CurrentPeriodEnd = &end
	sub.RenewalAttempts = 0
	sub.LastRenewalStatus = types.RenewalStatusSuccess
	sub.LastRenewalAttemptAt = &now
	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	p.audit.Record(ctx, audit.Entry{
		WorkspaceID:    sub.WorkspaceID,
		SubscriptionID: &sub.ID,
		Action:         "invoice_paid",
		Actor:          "gateway",
		Before:         before,
		After:          sub,
		Extra:          map[string]any{"invoice_id": inv.ID, "amount_paid_cents": inv.AmountPaidCents},
	})
	logctx.FromCtx(ctx, p.log).Infow("invoice_paid_applied",
		"subscription_id", sub.ID, "invoice_id", inv.ID, "period_end", end)
	return nil
}

// ApplyInvoicePaymentFailed marks the subscription past due and bumps renewal
// failure bookkeeping.
func (p *Processor) ApplyInvoicePaymentFailed(ctx context.Context, tx *gorm.DB, sub *models.Subscription, inv InvoiceData) error {
	before := *sub
	now := time.Now()

	sub.Status = types.SubscriptionStatusPastDue
	sub.RenewalAttempts++
	sub.LastRenewalStatus = types.RenewalStatusFailed
	sub.LastRenewalAttemptAt = &now
	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	p.audit.Record(ctx, audit.Entry{
		WorkspaceID:    sub.WorkspaceID,
		SubscriptionID: &sub.ID,
		Action:         "invoice_payment_failed",
		Actor:          "gateway",
		Before:         before,
		After:          sub,
		Extra:          map[string]any{"invoice_id": inv.ID},
	})
	logctx.FromCtx(ctx, p.log).Warnw("invoice_payment_failed",
		"subscription_id", sub.ID, "invoice_id", inv.ID, "attempts", sub.RenewalAttempts)
	return nil
}

func advancePeriod(start time.Time, interval types.BillingInterval) time.Time {
	if interval == types.BillingIntervalYear {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
