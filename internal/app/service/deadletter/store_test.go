package deadletter

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adscope/billing/internal/app/service/webhook"
	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/pkg/metrics"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&models.BillingEventDeadLetter{}))
	return NewStore(gdb, zap.NewNop().Sugar(), metrics.New()), gdb
}

func deadEvent(id string) webhook.InboundEvent {
	return webhook.InboundEvent{
		ID:         id,
		Type:       "invoice.paid",
		Payload:    []byte(`{"id":"` + id + `","type":"invoice.paid","data":{"object":{}}}`),
		ReceivedAt: time.Now(),
	}
}

func TestRecordUpsertsByEventID(t *testing.T) {
	store, gdb := newTestStore(t)
	ctx := context.Background()
	evt := deadEvent("evt_1")

	require.NoError(t, store.Record(ctx, evt, "no subscription", "ws-1"))
	require.NoError(t, store.Record(ctx, evt, "still no subscription", ""))

	var rows []*models.BillingEventDeadLetter
	require.NoError(t, gdb.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].RetryCount)
	require.Equal(t, "still no subscription", rows[0].FailureReason)
}

func TestReplayDeletesRowOnTerminalOutcome(t *testing.T) {
	store, gdb := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, deadEvent("evt_1"), "no subscription", ""))

	dispatched := 0
	outcomes, err := store.Replay(ctx, ReplayRequest{EventID: "evt_1"}, func(ctx context.Context, evt webhook.InboundEvent) (webhook.Result, error) {
		dispatched++
		return webhook.Result{Outcome: webhook.OutcomeProcessed}, nil
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, 1, dispatched)
	require.True(t, outcomes[0].Resolved)

	var n int64
	require.NoError(t, gdb.Model(&models.BillingEventDeadLetter{}).Count(&n).Error)
	require.EqualValues(t, 0, n)
}

func TestReplayKeepsRowWhenStillFailing(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, deadEvent("evt_1"), "no subscription", ""))

	outcomes, err := store.Replay(ctx, ReplayRequest{EventID: "evt_1"}, func(ctx context.Context, evt webhook.InboundEvent) (webhook.Result, error) {
		return webhook.Result{Outcome: webhook.OutcomeDeadLetter, Reason: "subscription still missing"}, nil
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.False(t, outcomes[0].Resolved)

	row, err := store.Get(ctx, "evt_1")
	require.NoError(t, err)
	require.Equal(t, 1, row.RetryCount)
	require.Equal(t, "subscription still missing", row.FailureReason)
}

func TestReplayDryRunDispatchesNothing(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, deadEvent("evt_1"), "no subscription", ""))

	outcomes, err := store.Replay(ctx, ReplayRequest{Limit: 10, DryRun: true}, func(ctx context.Context, evt webhook.InboundEvent) (webhook.Result, error) {
		t.Fatal("dry run must not dispatch")
		return webhook.Result{}, nil
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].DryRun)

	_, err = store.Get(ctx, "evt_1")
	require.NoError(t, err)
}

func TestReplayMissingEventID(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Replay(context.Background(), ReplayRequest{EventID: "evt_missing"}, nil)
	require.ErrorIs(t, err, ErrNotFound)
}
