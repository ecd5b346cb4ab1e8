package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adscope/billing/internal/app/service/audit"
	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/internal/platform/db"
	"github.com/adscope/billing/internal/platform/stripegw"
	"github.com/adscope/billing/pkg/config"
	"github.com/adscope/billing/pkg/logctx"
	"github.com/adscope/billing/pkg/tool"
	"github.com/adscope/billing/pkg/types"
)

// Service orchestrates subscription plan changes against the gateway.
// Immediate upgrades call the gateway first and mutate local state only on
// success; scheduled changes are recorded as pending PlanChangeRequests and
// executed by the sweep.
type Service struct {
	db    *gorm.DB
	cfg   *config.Config
	gw    stripegw.Gateway
	audit *audit.Service
	log   *zap.SugaredLogger
}

func NewService(db *gorm.DB, cfg *config.Config, gw stripegw.Gateway, aud *audit.Service, log *zap.SugaredLogger) *Service {
	return &Service{db: db, cfg: cfg, gw: gw, audit: aud, log: log}
}

func lockSubscriptionByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("workspace_id = ?", workspaceID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: workspace %s", ErrSubscriptionNotFound, workspaceID)
		}
		return nil, err
	}
	return &sub, nil
}

// planChangeKey derives the idempotency key sent with a gateway plan change,
// so a retried operation cannot double-apply on the gateway side.
func planChangeKey(workspaceID, op, targetPlanID string) string {
	return fmt.Sprintf("plan-change:%s:%s:%s", workspaceID, op, targetPlanID)
}

func (s *Service) resolveTarget(sub *models.Subscription, targetPlanID string) (current, target *types.Plan, err error) {
	target = s.cfg.GetPlanByID(targetPlanID)
	if target == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownPlan, targetPlanID)
	}
	if sub.PlanID == targetPlanID {
		return nil, nil, ErrSamePlan
	}
	current = s.cfg.GetPlanByID(sub.PlanID)
	if current == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownPlan, sub.PlanID)
	}
	return current, target, nil
}

// applyGatewayPriceChange pushes the target plan's price onto the gateway
// subscription's primary item. Nothing local is written here.
func (s *Service) applyGatewayPriceChange(ctx context.Context, sub *models.Subscription, target *types.Plan, op string, prorate bool) error {
	if !sub.GatewayLinked() {
		return fmt.Errorf("%w: workspace %s", ErrNotLinked, sub.WorkspaceID)
	}
	gwSub, err := s.gw.GetSubscription(ctx, *sub.StripeSubscriptionID)
	if err != nil {
		return fmt.Errorf("%w: fetch subscription: %v", ErrGatewayFailed, err)
	}
	item, ok := gwSub.PrimaryItem()
	if !ok {
		return fmt.Errorf("%w: gateway subscription %s has no items", ErrGatewayFailed, gwSub.ID)
	}
	priceID, err := target.PriceID(sub.Interval)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownPlan, err)
	}
	_, err = s.gw.UpdateSubscriptionItemPrice(ctx, stripegw.UpdateItemPriceRequest{
		SubscriptionID: gwSub.ID,
		ItemID:         item.ID,
		PriceID:        priceID,
		Prorate:        prorate,
		IdempotencyKey: planChangeKey(sub.WorkspaceID, op, target.ID),
	})
	if err != nil {
		return fmt.Errorf("%w: update item price: %v", ErrGatewayFailed, err)
	}
	return nil
}

// Upgrade applies an immediate, prorated plan change. The gateway call comes
// first; on failure the transaction rolls back with no local writes.
func (s *Service) Upgrade(ctx context.Context, workspaceID, targetPlanID, actor string) (*models.PlanChangeRequest, error) {
	var change *models.PlanChangeRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := lockSubscriptionByWorkspace(ctx, tx, workspaceID)
		if err != nil {
			return err
		}
		current, target, err := s.resolveTarget(sub, targetPlanID)
		if err != nil {
			return err
		}
		if err := s.applyGatewayPriceChange(ctx, sub, target, "upgrade", true); err != nil {
			return err
		}

		before := *sub
		now := time.Now()
		sub.PlanID = target.ID
		sub.PendingPlanID = nil
		sub.Status = types.SubscriptionStatusActive
		sub.RenewalAttempts = 0
		sub.LastRenewalStatus = types.RenewalStatusSuccess
		if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		change = &models.PlanChangeRequest{
			ID:              tool.GenerateUUIDV7(),
			SubscriptionID:  sub.ID,
			WorkspaceID:     sub.WorkspaceID,
			FromPlanID:      current.ID,
			ToPlanID:        target.ID,
			ChangeType:      current.ChangeTypeTo(target),
			EffectiveTiming: types.EffectiveTimingImmediate,
			EffectiveDate:   &now,
			Status:          types.PlanChangeStatusCompleted,
			RequestedBy:     actor,
			ProcessedBy:     &actor,
			ProcessedAt:     &now,
		}
		if err := tx.WithContext(ctx).Create(change).Error; err != nil {
			return fmt.Errorf("failed to create plan change: %w", err)
		}

		s.audit.Record(ctx, audit.Entry{
			WorkspaceID:    sub.WorkspaceID,
			SubscriptionID: &sub.ID,
			Action:         "plan_upgraded",
			Actor:          actor,
			Before:         before,
			After:          sub,
			Extra:          map[string]any{"plan_change_id": change.ID, "to_plan": target.ID},
		})
		logctx.FromCtx(ctx, s.log).Infow("plan_upgraded",
			"workspace_id", sub.WorkspaceID, "from_plan", current.ID, "to_plan", target.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// Schedule records an end-of-period plan change. The effective date defaults
// to the subscription's current period end. A different already-pending
// target is rejected; re-scheduling the same target is a no-op update.
func (s *Service) Schedule(ctx context.Context, workspaceID, targetPlanID string, effectiveDate *time.Time, actor, reason string) (*models.PlanChangeRequest, error) {
	var change *models.PlanChangeRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := lockSubscriptionByWorkspace(ctx, tx, workspaceID)
		if err != nil {
			return err
		}
		current, target, err := s.resolveTarget(sub, targetPlanID)
		if err != nil {
			return err
		}
		if sub.PendingPlanID != nil && *sub.PendingPlanID != target.ID {
			return fmt.Errorf("%w: pending %s", ErrPendingChangeExists, *sub.PendingPlanID)
		}

		when := effectiveDate
		if when == nil {
			when = sub.CurrentPeriodEnd
		}
		if when == nil {
			return fmt.Errorf("subscription %s has no period end and no effective date given", sub.ID)
		}

		change = &models.PlanChangeRequest{
			ID:              tool.GenerateUUIDV7(),
			SubscriptionID:  sub.ID,
			WorkspaceID:     sub.WorkspaceID,
			FromPlanID:      current.ID,
			ToPlanID:        target.ID,
			ChangeType:      current.ChangeTypeTo(target),
			EffectiveTiming: types.EffectiveTimingEndOfPeriod,
			EffectiveDate:   when,
			Status:          types.PlanChangeStatusPending,
			RequestedBy:     actor,
			Reason:          reason,
		}
		if err := tx.WithContext(ctx).Create(change).Error; err != nil {
			return fmt.Errorf("failed to create plan change: %w", err)
		}

		sub.PendingPlanID = lo.ToPtr(target.ID)
		if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		s.audit.Record(ctx, audit.Entry{
			WorkspaceID:    sub.WorkspaceID,
			SubscriptionID: &sub.ID,
			Action:         "plan_change_scheduled",
			Actor:          actor,
			After:          change,
		})
		logctx.FromCtx(ctx, s.log).Infow("plan_change_scheduled",
			"workspace_id", sub.WorkspaceID, "to_plan", target.ID, "effective_date", when)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// ExecuteScheduled applies a pending plan change. Scheduled downgrades go
// through the renew-first check: if the subscription already renewed at or
// after the effective date, the change is canceled without touching the
// gateway. Gateway failures leave the change pending for the next sweep.
func (s *Service) ExecuteScheduled(ctx context.Context, changeID, actor string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var change models.PlanChangeRequest
		err := db.ForUpdate(tx.WithContext(ctx)).
			Where("id = ?", changeID).
			First(&change).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrChangeNotPending, changeID)
			}
			return err
		}
		if change.Status != types.PlanChangeStatusPending {
			return fmt.Errorf("%w: %s is %s", ErrChangeNotPending, changeID, change.Status)
		}

		sub, err := lockSubscriptionByWorkspace(ctx, tx, change.WorkspaceID)
		if err != nil {
			return err
		}

		now := time.Now()
		effective := change.CreatedAt
		if change.EffectiveDate != nil {
			effective = *change.EffectiveDate
		}

		if change.ChangeType == types.PlanChangeTypeDowngrade && RenewalSupersedes(sub, effective) {
			change.Status = types.PlanChangeStatusCanceled
			change.ProcessedBy = &actor
			change.ProcessedAt = &now
			change.AdminNotes = appendNote(change.AdminNotes,
				fmt.Sprintf("skipped at %s: subscription renewed at or after effective date", now.Format(time.RFC3339)))
			if err := tx.WithContext(ctx).Save(&change).Error; err != nil {
				return fmt.Errorf("failed to save plan change: %w", err)
			}
			if sub.PendingPlanID != nil && *sub.PendingPlanID == change.ToPlanID {
				sub.PendingPlanID = nil
				if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
					return fmt.Errorf("failed to save subscription: %w", err)
				}
			}
			s.audit.Record(ctx, audit.Entry{
				WorkspaceID:    sub.WorkspaceID,
				SubscriptionID: &sub.ID,
				Action:         "plan_change_skipped_renewed",
				Actor:          actor,
				After:          change,
			})
			logctx.FromCtx(ctx, s.log).Infow("plan_change_skipped",
				"plan_change_id", change.ID, "workspace_id", sub.WorkspaceID, "reason", "renewal supersedes")
			return nil
		}

		target := s.cfg.GetPlanByID(change.ToPlanID)
		if target == nil {
			return fmt.Errorf("%w: %s", ErrUnknownPlan, change.ToPlanID)
		}
		if err := s.applyGatewayPriceChange(ctx, sub, target, "scheduled-change", false); err != nil {
			return err
		}

		before := *sub
		sub.PlanID = target.ID
		sub.PendingPlanID = nil
		if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		change.Status = types.PlanChangeStatusCompleted
		change.ProcessedBy = &actor
		change.ProcessedAt = &now
		if err := tx.WithContext(ctx).Save(&change).Error; err != nil {
			return fmt.Errorf("failed to save plan change: %w", err)
		}

		s.audit.Record(ctx, audit.Entry{
			WorkspaceID:    sub.WorkspaceID,
			SubscriptionID: &sub.ID,
			Action:         "plan_change_executed",
			Actor:          actor,
			Before:         before,
			After:          sub,
			Extra:          map[string]any{"plan_change_id": change.ID},
		})
		logctx.FromCtx(ctx, s.log).Infow("plan_change_executed",
			"plan_change_id", change.ID, "workspace_id", sub.WorkspaceID, "to_plan", target.ID)
		return nil
	})
}

// SweepDueChanges executes every pending end-of-period change whose effective
// date has passed. Failures are logged and left pending for the next sweep.
func (s *Service) SweepDueChanges(ctx context.Context) (int, error) {
	var due []models.PlanChangeRequest
	err := s.db.WithContext(ctx).
		Select("id").
		Where("status = ? AND effective_timing = ? AND effective_date <= ?",
			types.PlanChangeStatusPending, types.EffectiveTimingEndOfPeriod, time.Now()).
		Order("effective_date ASC").
		Limit(100).
		Find(&due).Error
	if err != nil {
		return 0, err
	}

	log := logctx.FromCtx(ctx, s.log)
	executed := 0
	for _, change := range due {
		if err := s.ExecuteScheduled(ctx, change.ID, "system"); err != nil {
			log.Errorw("plan_change_sweep_failed", "plan_change_id", change.ID, "error", err)
			continue
		}
		executed++
	}
	return executed, nil
}

func appendNote(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
