package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/adscope/billing/internal/app/service/audit"
	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/pkg/logctx"
	"github.com/adscope/billing/pkg/types"
)

// AssignBillingOwner binds the workspace subscription to a user's billing
// profile. The user must already have a profile; the subscription inherits
// the profile's gateway customer when it has none of its own.
func (s *Service) AssignBillingOwner(ctx context.Context, workspaceID, userID, actor string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := lockSubscriptionByWorkspace(ctx, tx, workspaceID)
		if err != nil {
			return err
		}
		var profile models.BillingProfile
		err = tx.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user %s", ErrProfileMissing, userID)
			}
			return err
		}

		before := *sub
		sub.BillingOwnerUserID = lo.ToPtr(userID)
		if sub.StripeCustomerID == nil && profile.StripeCustomerID != nil {
			sub.StripeCustomerID = profile.StripeCustomerID
		}
		if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		s.audit.Record(ctx, audit.Entry{
			WorkspaceID:    sub.WorkspaceID,
			SubscriptionID: &sub.ID,
			Action:         "billing_owner_assigned",
			Actor:          actor,
			Before:         before,
			After:          sub,
			Extra:          map[string]any{"user_id": userID},
		})
		return nil
	})
}

// ReleaseBillingOwner unbinds the billing owner. While a gateway-linked
// subscription is still live the release is refused unless forced, so a paid
// subscription never loses its payer silently.
func (s *Service) ReleaseBillingOwner(ctx context.Context, workspaceID, actor string, force bool) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := lockSubscriptionByWorkspace(ctx, tx, workspaceID)
		if err != nil {
			return err
		}
		if sub.BillingOwnerUserID == nil {
			return nil
		}
		live := sub.GatewayLinked() && sub.Status != types.SubscriptionStatusCanceled
		if live && !force {
			return fmt.Errorf("%w: workspace %s", ErrOwnerBound, workspaceID)
		}

		before := *sub
		sub.BillingOwnerUserID = nil
		if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		s.audit.Record(ctx, audit.Entry{
			WorkspaceID:    sub.WorkspaceID,
			SubscriptionID: &sub.ID,
			Action:         "billing_owner_released",
			Actor:          actor,
			Before:         before,
			After:          sub,
			Extra:          map[string]any{"forced": force},
		})
		return nil
	})
}

// SetAutoRenew flips auto-renew. A user-initiated disable records an override
// so later gateway syncs do not silently re-enable it.
func (s *Service) SetAutoRenew(ctx context.Context, workspaceID string, enabled bool, actor string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := lockSubscriptionByWorkspace(ctx, tx, workspaceID)
		if err != nil {
			return err
		}
		before := *sub
		sub.AutoRenewEnabled = enabled
		if enabled {
			sub.AutoRenewOverride = types.AutoRenewOverrideNone
		} else {
			sub.AutoRenewOverride = types.AutoRenewOverrideUserDisabled
		}
		if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		s.audit.Record(ctx, audit.Entry{
			WorkspaceID:    sub.WorkspaceID,
			SubscriptionID: &sub.ID,
			Action:         "auto_renew_set",
			Actor:          actor,
			Before:         before,
			After:          sub,
			Extra:          map[string]any{"enabled": enabled},
		})
		logctx.FromCtx(ctx, s.log).Infow("auto_renew_set",
			"workspace_id", workspaceID, "enabled", enabled, "actor", actor)
		return nil
	})
}

// GetByWorkspace returns the workspace subscription without locking.
func (s *Service) GetByWorkspace(ctx context.Context, workspaceID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: workspace %s", ErrSubscriptionNotFound, workspaceID)
		}
		return nil, err
	}
	return &sub, nil
}

// ListChanges returns the workspace's plan change history, newest first.
func (s *Service) ListChanges(ctx context.Context, workspaceID string, limit int) ([]*models.PlanChangeRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []*models.PlanChangeRequest
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
