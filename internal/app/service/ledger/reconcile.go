package ledger

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/internal/platform/stripegw"
	"github.com/adscope/billing/pkg/logctx"
	"github.com/adscope/billing/pkg/money"
	"github.com/adscope/billing/pkg/types"
)

// Reconciler periodically reconciles credit accounts against the gateway's
// reported customer balance.
type Reconciler struct {
	svc *Service
	gw  stripegw.Gateway
}

func NewReconciler(svc *Service, gw stripegw.Gateway) *Reconciler {
	return &Reconciler{svc: svc, gw: gw}
}

// SweepOnce walks gateway-linked credit accounts and reconciles each. Errors
// on one account do not stop the sweep.
func (r *Reconciler) SweepOnce(ctx context.Context) error {
	var accounts []*models.Account
	err := r.svc.db.WithContext(ctx).
		Where("kind = ? AND stripe_customer_id IS NOT NULL", types.AccountKindCredit).
		FindInBatches(&accounts, 100, func(tx *gorm.DB, _ int) error {
			for _, acct := range accounts {
				if err := r.reconcileOne(ctx, acct); err != nil {
					logctx.FromCtx(ctx, r.svc.log).Errorw("reconcile_account_failed",
						"account_id", acct.ID, "err", err)
				}
			}
			return nil
		}).Error
	if err != nil {
		return fmt.Errorf("reconcile sweep failed: %w", err)
	}
	return nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, acct *models.Account) error {
	cust, err := r.gw.GetCustomer(ctx, *acct.StripeCustomerID)
	if err != nil {
		return fmt.Errorf("failed to fetch gateway customer: %w", err)
	}
	// Gateway reports credit as a negative customer balance.
	reported := money.FromCents(-cust.BalanceCents)
	_, err = r.svc.ReconcileBalance(ctx, acct.ID, reported)
	return err
}
