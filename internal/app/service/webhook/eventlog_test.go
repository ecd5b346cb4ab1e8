package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adscope/billing/internal/app/service/audit"
	"github.com/adscope/billing/internal/app/service/ledger"
	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/pkg/config"
	"github.com/adscope/billing/pkg/metrics"
)

func newEventLogDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(
		&models.Account{},
		&models.LedgerTransaction{},
		&models.WebhookEventLog{},
		&models.Subscription{},
		&models.BillingAuditLog{},
	))
	return gdb
}

func newTestEventLog(t *testing.T) (*EventLog, *gorm.DB) {
	t.Helper()
	gdb := newEventLogDB(t)
	cfg := &config.Config{Webhook: config.WebhookConfig{StuckAfterMinutes: 30}}
	return NewEventLog(gdb, cfg, zap.NewNop().Sugar()), gdb
}

func testEvent(id string) InboundEvent {
	return InboundEvent{
		ID:         id,
		Type:       "invoice.paid",
		Payload:    []byte(`{"id":"` + id + `","type":"invoice.paid","data":{"object":{}}}`),
		ReceivedAt: time.Now(),
	}
}

func TestBeginClaimsNewEvent(t *testing.T) {
	log, _ := newTestEventLog(t)
	ctx := context.Background()

	row, proceed, err := log.Begin(ctx, testEvent("evt_1"))
	require.NoError(t, err)
	require.True(t, proceed)
	require.Equal(t, models.WebhookEventStatusProcessing, row.Status)
	require.Equal(t, 1, row.Attempts)
	require.False(t, row.Handled)
}

func TestBeginSuppressesHandledEvent(t *testing.T) {
	log, gdb := newTestEventLog(t)
	ctx := context.Background()
	evt := testEvent("evt_1")

	row, proceed, err := log.Begin(ctx, evt)
	require.NoError(t, err)
	require.True(t, proceed)
	require.NoError(t, log.Complete(ctx, row, processed(), nil))

	var stored models.WebhookEventLog
	require.NoError(t, gdb.First(&stored, "event_id = ?", evt.ID).Error)
	require.Equal(t, models.WebhookEventStatusProcessed, stored.Status)
	require.True(t, stored.Handled)

	_, proceed, err = log.Begin(ctx, evt)
	require.NoError(t, err)
	require.False(t, proceed)
}

func TestBeginLeavesFreshProcessingRowAlone(t *testing.T) {
	log, _ := newTestEventLog(t)
	ctx := context.Background()
	evt := testEvent("evt_1")

	_, proceed, err := log.Begin(ctx, evt)
	require.NoError(t, err)
	require.True(t, proceed)

	// Still inside the stuck window: another delivery must not reclaim it.
	_, proceed, err = log.Begin(ctx, evt)
	require.NoError(t, err)
	require.False(t, proceed)
}

func TestBeginReclaimsFailedRow(t *testing.T) {
	log, gdb := newTestEventLog(t)
	ctx := context.Background()
	evt := testEvent("evt_1")

	row, _, err := log.Begin(ctx, evt)
	require.NoError(t, err)
	require.NoError(t, log.Complete(ctx, row, Result{}, context.DeadlineExceeded))

	var stored models.WebhookEventLog
	require.NoError(t, gdb.First(&stored, "event_id = ?", evt.ID).Error)
	require.Equal(t, models.WebhookEventStatusFailed, stored.Status)
	require.False(t, stored.Handled)
	require.NotEmpty(t, stored.LastError)

	row, proceed, err := log.Begin(ctx, evt)
	require.NoError(t, err)
	require.True(t, proceed)
	require.Equal(t, 2, row.Attempts)
}

func TestCompleteDeadLetterLandsFailed(t *testing.T) {
	log, gdb := newTestEventLog(t)
	ctx := context.Background()
	evt := testEvent("evt_1")

	row, _, err := log.Begin(ctx, evt)
	require.NoError(t, err)
	require.NoError(t, log.Complete(ctx, row, deadLetter("subscription not found"), nil))

	var stored models.WebhookEventLog
	require.NoError(t, gdb.First(&stored, "event_id = ?", evt.ID).Error)
	require.Equal(t, models.WebhookEventStatusFailed, stored.Status)
	require.False(t, stored.Handled)
	require.Equal(t, "subscription not found", stored.LastError)

	// Dead-lettered events stay replayable through the normal claim path.
	_, proceed, err := log.Begin(ctx, evt)
	require.NoError(t, err)
	require.True(t, proceed)
}

func TestCompleteIgnoredIsTerminal(t *testing.T) {
	log, gdb := newTestEventLog(t)
	ctx := context.Background()
	evt := testEvent("evt_1")

	row, _, err := log.Begin(ctx, evt)
	require.NoError(t, err)
	require.NoError(t, log.Complete(ctx, row, ignored(), nil))

	var stored models.WebhookEventLog
	require.NoError(t, gdb.First(&stored, "event_id = ?", evt.ID).Error)
	require.Equal(t, models.WebhookEventStatusIgnored, stored.Status)
	require.True(t, stored.Handled)
}

func newTestDispatcher(t *testing.T, gdb *gorm.DB) *Dispatcher {
	t.Helper()
	nop := zap.NewNop().Sugar()
	m := metrics.New()
	cfg := &config.Config{Webhook: config.WebhookConfig{StuckAfterMinutes: 30}}
	led := ledger.NewService(gdb, nop, m)
	aud := audit.New(gdb, nop)
	proc := NewProcessor(cfg, led, aud, nop)
	return NewDispatcher(gdb, NewEventLog(gdb, cfg, nop), proc, nop, m)
}

func TestDispatchSkipsRedeliveryOfHandledEvent(t *testing.T) {
	gdb := newEventLogDB(t)
	d := newTestDispatcher(t, gdb)
	ctx := context.Background()

	evt := InboundEvent{
		ID:         "evt_unknown",
		Type:       "payment_method.attached",
		Payload:    []byte(`{"id":"evt_unknown","type":"payment_method.attached","data":{"object":{}}}`),
		ReceivedAt: time.Now(),
	}

	res, err := d.Dispatch(ctx, evt)
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Outcome)

	res, err = d.Dispatch(ctx, evt)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, res.Outcome)
}

func TestDispatchDeadLettersMissingSubscription(t *testing.T) {
	gdb := newEventLogDB(t)
	d := newTestDispatcher(t, gdb)
	ctx := context.Background()

	evt := InboundEvent{
		ID:         "evt_orphan",
		Type:       "invoice.paid",
		Payload:    []byte(paidInvoiceEvent),
		ReceivedAt: time.Now(),
	}

	res, err := d.Dispatch(ctx, evt)
	require.NoError(t, err)
	require.Equal(t, OutcomeDeadLetter, res.Outcome)

	var stored models.WebhookEventLog
	require.NoError(t, gdb.First(&stored, "event_id = ?", evt.ID).Error)
	require.Equal(t, models.WebhookEventStatusFailed, stored.Status)
	require.False(t, stored.Handled)
}
