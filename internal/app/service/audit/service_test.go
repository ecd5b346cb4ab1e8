package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/pkg/types"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&models.BillingAuditLog{}))
	return New(gdb, zap.NewNop().Sugar()), gdb
}

func TestRecordSnapshotsEntryBeforeCallerMutates(t *testing.T) {
	svc, gdb := newTestService(t)

	sub := &models.Subscription{
		ID:          "sub-1",
		WorkspaceID: "ws-1",
		Status:      types.SubscriptionStatusActive,
	}
	svc.Record(context.Background(), Entry{
		WorkspaceID: sub.WorkspaceID,
		Action:      "renewal_failed",
		Actor:       "system",
		After:       sub,
	})

	// The caller keeps mutating the entity it handed over; the stored
	// snapshot must not see it.
	sub.Status = types.SubscriptionStatusCanceled
	sub.AutoRenewEnabled = false

	var row models.BillingAuditLog
	require.Eventually(t, func() bool {
		return gdb.First(&row, "action = ?", "renewal_failed").Error == nil
	}, 2*time.Second, 10*time.Millisecond)

	var snap map[string]any
	require.NoError(t, json.Unmarshal(row.After, &snap))
	require.Equal(t, string(types.SubscriptionStatusActive), snap["status"])
}

func TestRecordDefaultsExtra(t *testing.T) {
	svc, gdb := newTestService(t)

	svc.Record(context.Background(), Entry{
		WorkspaceID: "ws-1",
		Action:      "plan_upgrade",
		Actor:       "admin",
	})

	var row models.BillingAuditLog
	require.Eventually(t, func() bool {
		return gdb.First(&row, "action = ?", "plan_upgrade").Error == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.NotNil(t, row.Extra)
	require.Empty(t, row.Extra)
}
