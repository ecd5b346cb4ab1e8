package renewal

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/internal/platform/stripegw"
	"github.com/adscope/billing/pkg/types"
)

func TestShouldSkip(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cooldown := 30 * time.Minute

	base := func() *models.Subscription {
		return &models.Subscription{
			AutoRenewEnabled: true,
			Status:           types.SubscriptionStatusActive,
		}
	}

	t.Run("eligible", func(t *testing.T) {
		require.Equal(t, skipNone, shouldSkip(base(), now, cooldown))
	})

	t.Run("auto renew off", func(t *testing.T) {
		sub := base()
		sub.AutoRenewEnabled = false
		require.Equal(t, skipDisabled, shouldSkip(sub, now, cooldown))
	})

	t.Run("canceled", func(t *testing.T) {
		sub := base()
		sub.Status = types.SubscriptionStatusCanceled
		require.Equal(t, skipCanceled, shouldSkip(sub, now, cooldown))
	})

	t.Run("attempted inside cooldown", func(t *testing.T) {
		sub := base()
		sub.LastRenewalAttemptAt = lo.ToPtr(now.Add(-10 * time.Minute))
		require.Equal(t, skipDebounce, shouldSkip(sub, now, cooldown))
	})

	t.Run("attempted past cooldown", func(t *testing.T) {
		sub := base()
		sub.LastRenewalAttemptAt = lo.ToPtr(now.Add(-time.Hour))
		require.Equal(t, skipNone, shouldSkip(sub, now, cooldown))
	})
}

func TestResolvePaymentMethod(t *testing.T) {
	sub := &stripegw.Subscription{DefaultPaymentMethodID: "pm_sub"}
	cust := &stripegw.Customer{DefaultPaymentMethodID: "pm_cust"}

	require.Equal(t, "pm_sub", resolvePaymentMethod(sub, cust))
	require.Equal(t, "pm_cust", resolvePaymentMethod(&stripegw.Subscription{}, cust))
	require.Empty(t, resolvePaymentMethod(&stripegw.Subscription{}, &stripegw.Customer{}))
	require.Empty(t, resolvePaymentMethod(nil, nil))
}
