package renewal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adscope/billing/internal/app/service/audit"
	"github.com/adscope/billing/internal/app/service/webhook"
	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/internal/platform/db"
	"github.com/adscope/billing/internal/platform/stripegw"
	"github.com/adscope/billing/pkg/config"
	"github.com/adscope/billing/pkg/logctx"
	"github.com/adscope/billing/pkg/metrics"
	"github.com/adscope/billing/pkg/types"
)

// Result labels for one subscription's renewal pass.
const (
	ResultSuccess  = "success"
	ResultFailed   = "failed"
	ResultRetry    = "retry"
	ResultSkipped  = "skipped"
	ResultDisabled = "disabled"
	ResultError    = "error"
)

// Sweeper renews expiring subscriptions against the gateway. Each candidate
// is handled in its own transaction under a SKIP LOCKED row lock, so
// concurrent sweeps and the webhook path never fight over a row.
type Sweeper struct {
	db       *gorm.DB
	cfg      *config.Config
	gw       stripegw.Gateway
	proc     *webhook.Processor
	notifier Notifier
	audit    *audit.Service
	log      *zap.SugaredLogger
	m        *metrics.Registry
}

func NewSweeper(db *gorm.DB, cfg *config.Config, gw stripegw.Gateway, proc *webhook.Processor, notifier Notifier, aud *audit.Service, log *zap.SugaredLogger, m *metrics.Registry) *Sweeper {
	return &Sweeper{db: db, cfg: cfg, gw: gw, proc: proc, notifier: notifier, audit: aud, log: log, m: m}
}

// Stats summarizes one sweep.
type Stats struct {
	Candidates int
	Renewed    int
	Failed     int
	Retried    int
	Skipped    int
	Errors     int
}

func (s *Sweeper) cooldown() time.Duration {
	return time.Duration(s.cfg.Renewal.CooldownMinutes) * time.Minute
}

func (s *Sweeper) lookahead() time.Duration {
	return time.Duration(s.cfg.Renewal.LookaheadHours) * time.Hour
}

// SweepOnce selects subscriptions whose period ends within the lookahead
// window and runs one renewal pass per row. Row-level errors are counted and
// logged, never fatal to the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (Stats, error) {
	now := time.Now()
	var candidates []models.Subscription
	err := s.db.WithContext(ctx).
		Select("id").
		Where("auto_renew_enabled = ?", true).
		Where("status <> ?", types.SubscriptionStatusCanceled).
		Where("current_period_end IS NOT NULL AND current_period_end <= ?", now.Add(s.lookahead())).
		Where("last_renewal_attempt_at IS NULL OR last_renewal_attempt_at < ?", now.Add(-s.cooldown())).
		Order("current_period_end ASC").
		Limit(s.cfg.Renewal.BatchSize).
		Find(&candidates).Error
	if err != nil {
		return Stats{}, fmt.Errorf("failed to select renewal candidates: %w", err)
	}

	stats := Stats{Candidates: len(candidates)}
	log := logctx.FromCtx(ctx, s.log)
	for _, c := range candidates {
		result, err := s.RenewOne(ctx, c.ID)
		if err != nil {
			stats.Errors++
			s.m.RenewalResults.WithLabelValues(ResultError).Inc()
			log.Errorw("renewal_error", "subscription_id", c.ID, "error", err)
			continue
		}
		s.m.RenewalResults.WithLabelValues(result).Inc()
		switch result {
		case ResultSuccess:
			stats.Renewed++
		case ResultFailed, ResultDisabled:
			stats.Failed++
		case ResultRetry:
			stats.Retried++
		default:
			stats.Skipped++
		}
	}
	if stats.Candidates > 0 {
		log.Infow("renewal_sweep_done",
			"candidates", stats.Candidates, "renewed", stats.Renewed,
			"failed", stats.Failed, "retried", stats.Retried,
			"skipped", stats.Skipped, "errors", stats.Errors)
	}
	return stats, nil
}

// RenewOne runs the renewal flow for a single subscription. Transient gateway
// errors are retried a few times with backoff inside the pass; a still-failing
// call returns an error and leaves the row for the next sweep.
func (s *Sweeper) RenewOne(ctx context.Context, subID string) (string, error) {
	result := ResultSkipped
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var sub models.Subscription
		err := db.ForUpdateSkipLocked(tx.WithContext(ctx)).
			Where("id = ?", subID).
			First(&sub).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Another worker holds the row, or it is gone.
				return nil
			}
			return err
		}

		now := time.Now()
		if reason := shouldSkip(&sub, now, s.cooldown()); reason != skipNone {
			logctx.FromCtx(ctx, s.log).Debugw("renewal_skipped",
				"subscription_id", sub.ID, "reason", reason)
			return nil
		}

		if !sub.GatewayLinked() {
			result = ResultDisabled
			return s.disableAutoRenew(ctx, tx, &sub, "no gateway subscription")
		}

		var gwSub *stripegw.Subscription
		err = s.withTransientRetry(ctx, func() error {
			var gerr error
			gwSub, gerr = s.gw.GetSubscription(ctx, *sub.StripeSubscriptionID)
			return gerr
		})
		if err != nil {
			if errors.Is(err, stripegw.ErrNotFound) {
				result = ResultDisabled
				return s.disableAutoRenew(ctx, tx, &sub, "gateway subscription missing")
			}
			return err
		}

		pm := resolvePaymentMethod(gwSub, nil)
		if pm == "" {
			var cust *stripegw.Customer
			err = s.withTransientRetry(ctx, func() error {
				var gerr error
				cust, gerr = s.gw.GetCustomer(ctx, gwSub.CustomerID)
				return gerr
			})
			if err != nil && !errors.Is(err, stripegw.ErrNotFound) {
				return err
			}
			pm = resolvePaymentMethod(gwSub, cust)
		}
		if pm == "" {
			result = ResultDisabled
			return s.disableAutoRenew(ctx, tx, &sub, "no usable payment method")
		}

		if gwSub.LatestInvoiceID == "" {
			// Gateway has not generated the renewal invoice yet.
			result = ResultRetry
			return s.markRetry(ctx, tx, &sub, now)
		}

		var inv *stripegw.Invoice
		err = s.withTransientRetry(ctx, func() error {
			var gerr error
			inv, gerr = s.gw.GetInvoice(ctx, gwSub.LatestInvoiceID)
			return gerr
		})
		if err != nil {
			return err
		}

		if inv.Payable() {
			var paid *stripegw.Invoice
			payErr := s.withTransientRetry(ctx, func() error {
				var gerr error
				paid, gerr = s.gw.PayInvoice(ctx, inv.ID)
				return gerr
			})
			if payErr != nil {
				if stripegw.IsTransient(payErr) {
					return payErr
				}
				// Declined or otherwise permanently unpayable.
				result = ResultFailed
				return s.recordFailure(ctx, tx, &sub, inv, payErr.Error())
			}
			inv = paid
		}

		switch inv.Status {
		case stripegw.InvoiceStatusPaid:
			result = ResultSuccess
			return s.recordSuccess(ctx, tx, &sub, gwSub, inv)
		case stripegw.InvoiceStatusDraft:
			result = ResultRetry
			return s.markRetry(ctx, tx, &sub, now)
		default:
			result = ResultFailed
			return s.recordFailure(ctx, tx, &sub, inv, "invoice "+inv.Status)
		}
	})
	if err != nil {
		return ResultError, err
	}
	return result, nil
}

func (s *Sweeper) recordSuccess(ctx context.Context, tx *gorm.DB, sub *models.Subscription, gwSub *stripegw.Subscription, inv *stripegw.Invoice) error {
	data := webhook.InvoiceData{
		ID:              inv.ID,
		Status:          inv.Status,
		CustomerID:      inv.CustomerID,
		SubscriptionID:  inv.SubscriptionID,
		AmountPaidCents: inv.AmountPaidCents,
		Currency:        inv.Currency,
	}
	if item, ok := gwSub.PrimaryItem(); ok {
		data.PeriodStart = item.CurrentPeriodStart
		data.PeriodEnd = item.CurrentPeriodEnd
	}
	return s.proc.ApplyInvoicePaid(ctx, tx, sub, data)
}

func (s *Sweeper) recordFailure(ctx context.Context, tx *gorm.DB, sub *models.Subscription, inv *stripegw.Invoice, reason string) error {
	data := webhook.InvoiceData{}
	if inv != nil {
		data = webhook.InvoiceData{ID: inv.ID, Status: inv.Status, CustomerID: inv.CustomerID, SubscriptionID: inv.SubscriptionID}
	}
	if err := s.proc.ApplyInvoicePaymentFailed(ctx, tx, sub, data); err != nil {
		return err
	}
	s.notifier.RenewalFailed(ctx, sub, reason)
	if s.cfg.Renewal.MaxFailures > 0 && sub.RenewalAttempts >= s.cfg.Renewal.MaxFailures {
		return s.disableAutoRenew(ctx, tx, sub, fmt.Sprintf("failed %d renewal attempts", sub.RenewalAttempts))
	}
	return nil
}

func (s *Sweeper) markRetry(ctx context.Context, tx *gorm.DB, sub *models.Subscription, now time.Time) error {
	sub.LastRenewalStatus = types.RenewalStatusRetry
	sub.LastRenewalAttemptAt = &now
	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// disableAutoRenew switches renewal off after a permanent obstacle. The
// override stays "none": this is a system decision, a later fix may re-enable.
func (s *Sweeper) disableAutoRenew(ctx context.Context, tx *gorm.DB, sub *models.Subscription, reason string) error {
	before := *sub
	now := time.Now()
	sub.AutoRenewEnabled = false
	sub.LastRenewalStatus = types.RenewalStatusFailed
	sub.LastRenewalAttemptAt = &now
	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{
		WorkspaceID:    sub.WorkspaceID,
		SubscriptionID: &sub.ID,
		Action:         "auto_renew_disabled",
		Actor:          "system",
		Before:         before,
		After:          sub,
		Extra:          map[string]any{"reason": reason},
	})
	s.notifier.AutoRenewDisabled(ctx, sub, reason)
	return nil
}

// withTransientRetry retries fn on transient gateway errors with doubling
// backoff. Permanent errors return immediately.
func (s *Sweeper) withTransientRetry(ctx context.Context, fn func() error) error {
	const attempts = 3
	backoff := 500 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !stripegw.IsTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
