package lifecycle

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/pkg/types"
)

func TestRenewalSupersedes(t *testing.T) {
	effective := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("nil subscription", func(t *testing.T) {
		require.False(t, RenewalSupersedes(nil, effective))
	})

	t.Run("no renewal history", func(t *testing.T) {
		sub := &models.Subscription{LastRenewalStatus: types.RenewalStatusNever}
		require.False(t, RenewalSupersedes(sub, effective))
	})

	t.Run("successful renewal after effective date", func(t *testing.T) {
		sub := &models.Subscription{
			LastRenewalStatus:    types.RenewalStatusSuccess,
			LastRenewalAttemptAt: lo.ToPtr(effective.Add(2 * time.Hour)),
		}
		require.True(t, RenewalSupersedes(sub, effective))
	})

	t.Run("successful renewal exactly at effective date", func(t *testing.T) {
		sub := &models.Subscription{
			LastRenewalStatus:    types.RenewalStatusSuccess,
			LastRenewalAttemptAt: lo.ToPtr(effective),
		}
		require.True(t, RenewalSupersedes(sub, effective))
	})

	t.Run("successful renewal before effective date", func(t *testing.T) {
		sub := &models.Subscription{
			LastRenewalStatus:    types.RenewalStatusSuccess,
			LastRenewalAttemptAt: lo.ToPtr(effective.Add(-time.Hour)),
		}
		require.False(t, RenewalSupersedes(sub, effective))
	})

	t.Run("failed renewal after effective date does not supersede", func(t *testing.T) {
		sub := &models.Subscription{
			LastRenewalStatus:    types.RenewalStatusFailed,
			LastRenewalAttemptAt: lo.ToPtr(effective.Add(time.Hour)),
		}
		require.False(t, RenewalSupersedes(sub, effective))
	})

	t.Run("period start advanced past effective date", func(t *testing.T) {
		sub := &models.Subscription{
			LastRenewalStatus:  types.RenewalStatusNever,
			CurrentPeriodStart: lo.ToPtr(effective.Add(time.Minute)),
		}
		require.True(t, RenewalSupersedes(sub, effective))
	})

	t.Run("period start at effective date does not supersede", func(t *testing.T) {
		sub := &models.Subscription{
			LastRenewalStatus:  types.RenewalStatusNever,
			CurrentPeriodStart: lo.ToPtr(effective),
		}
		require.False(t, RenewalSupersedes(sub, effective))
	})
}

func TestPlanChangeKeyIsDeterministic(t *testing.T) {
	a := planChangeKey("ws_1", "upgrade", "pro")
	b := planChangeKey("ws_1", "upgrade", "pro")
	require.Equal(t, a, b)
	require.NotEqual(t, a, planChangeKey("ws_1", "upgrade", "team"))
	require.NotEqual(t, a, planChangeKey("ws_1", "scheduled-change", "pro"))
	require.NotEqual(t, a, planChangeKey("ws_2", "upgrade", "pro"))
}

func TestAppendNote(t *testing.T) {
	require.Equal(t, "first", appendNote("", "first"))
	require.Equal(t, "first\nsecond", appendNote("first", "second"))
}
