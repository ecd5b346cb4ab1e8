package ledger

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/pkg/metrics"
	"github.com/adscope/billing/pkg/tool"
	"github.com/adscope/billing/pkg/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&models.Account{}, &models.LedgerTransaction{}))
	return gdb
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	gdb := newTestDB(t)
	return NewService(gdb, zap.NewNop().Sugar(), metrics.New()), gdb
}

func seedAccount(t *testing.T, gdb *gorm.DB, kind types.AccountKind, tokens int64, credit decimal.Decimal) *models.Account {
	t.Helper()
	acct := &models.Account{
		ID:            tool.GenerateUUIDV7(),
		WorkspaceID:   lo.ToPtr("ws-" + tool.GenerateUUIDV7()),
		Kind:          kind,
		TokenBalance:  tokens,
		CreditBalance: credit,
	}
	require.NoError(t, gdb.Create(acct).Error)
	return acct
}

func txCount(t *testing.T, gdb *gorm.DB, accountID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(&models.LedgerTransaction{}).Where("account_id = ?", accountID).Count(&n).Error)
	return n
}

func reloadAccount(t *testing.T, gdb *gorm.DB, id string) *models.Account {
	t.Helper()
	var acct models.Account
	require.NoError(t, gdb.First(&acct, "id = ?", id).Error)
	return &acct
}

func TestCreditIdempotentByKey(t *testing.T) {
	svc, gdb := newTestService(t)
	acct := seedAccount(t, gdb, types.AccountKindToken, 0, decimal.Zero)
	ctx := context.Background()

	op := Op{
		AccountID:      acct.ID,
		Amount:         decimal.NewFromInt(100),
		Description:    "token grant",
		IdempotencyKey: lo.ToPtr("grant-1"),
	}
	first, err := svc.Credit(ctx, op)
	require.NoError(t, err)

	second, err := svc.Credit(ctx, op)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	require.EqualValues(t, 1, txCount(t, gdb, acct.ID))
	require.EqualValues(t, 100, reloadAccount(t, gdb, acct.ID).TokenBalance)
}

func TestCreditKeyReuseWithDifferentAmountConflicts(t *testing.T) {
	svc, gdb := newTestService(t)
	acct := seedAccount(t, gdb, types.AccountKindToken, 0, decimal.Zero)
	ctx := context.Background()

	_, err := svc.Credit(ctx, Op{
		AccountID:      acct.ID,
		Amount:         decimal.NewFromInt(100),
		IdempotencyKey: lo.ToPtr("grant-1"),
	})
	require.NoError(t, err)

	_, err = svc.Credit(ctx, Op{
		AccountID:      acct.ID,
		Amount:         decimal.NewFromInt(50),
		IdempotencyKey: lo.ToPtr("grant-1"),
	})
	require.ErrorIs(t, err, ErrIdempotencyConflict)

	require.EqualValues(t, 1, txCount(t, gdb, acct.ID))
	require.EqualValues(t, 100, reloadAccount(t, gdb, acct.ID).TokenBalance)
}

func TestConsumeInsufficientBalanceWritesNothing(t *testing.T) {
	svc, gdb := newTestService(t)
	acct := seedAccount(t, gdb, types.AccountKindToken, 50, decimal.Zero)
	ctx := context.Background()

	_, err := svc.Consume(ctx, Op{AccountID: acct.ID, Amount: decimal.NewFromInt(80)})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	require.EqualValues(t, 0, txCount(t, gdb, acct.ID))
	require.EqualValues(t, 50, reloadAccount(t, gdb, acct.ID).TokenBalance)
}

func TestRefundFloorsTokenBalanceAtZero(t *testing.T) {
	svc, gdb := newTestService(t)
	acct := seedAccount(t, gdb, types.AccountKindToken, 10, decimal.Zero)
	ctx := context.Background()

	_, err := svc.Refund(ctx, Op{AccountID: acct.ID, Amount: decimal.NewFromInt(20)})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	txn, err := svc.Refund(ctx, Op{AccountID: acct.ID, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.Equal(t, types.TransactionTypeRefund, txn.Type)
	require.EqualValues(t, 0, reloadAccount(t, gdb, acct.ID).TokenBalance)
}

func TestReconcileZeroDeltaOnlyUpdatesSyncTimestamp(t *testing.T) {
	svc, gdb := newTestService(t)
	acct := seedAccount(t, gdb, types.AccountKindCredit, 0, decimal.RequireFromString("42.50"))
	ctx := context.Background()

	txn, err := svc.ReconcileBalance(ctx, acct.ID, decimal.RequireFromString("42.5"))
	require.NoError(t, err)
	require.Nil(t, txn)

	got := reloadAccount(t, gdb, acct.ID)
	require.NotNil(t, got.LastSyncedAt)
	require.EqualValues(t, 0, txCount(t, gdb, acct.ID))
}

func TestReconcileDeltaWritesSyncEntry(t *testing.T) {
	svc, gdb := newTestService(t)
	acct := seedAccount(t, gdb, types.AccountKindCredit, 0, decimal.NewFromInt(100))
	ctx := context.Background()

	txn, err := svc.ReconcileBalance(ctx, acct.ID, decimal.RequireFromString("120.25"))
	require.NoError(t, err)
	require.NotNil(t, txn)
	require.Equal(t, types.TransactionTypeSync, txn.Type)
	require.True(t, txn.Amount.Equal(decimal.RequireFromString("20.25")), "got %s", txn.Amount)

	got := reloadAccount(t, gdb, acct.ID)
	require.True(t, got.CreditBalance.Equal(decimal.RequireFromString("120.25")), "got %s", got.CreditBalance)
}

func TestCreditExternalRefDeduplicates(t *testing.T) {
	svc, gdb := newTestService(t)
	acct := seedAccount(t, gdb, types.AccountKindToken, 0, decimal.Zero)
	ctx := context.Background()

	op := Op{AccountID: acct.ID, Amount: decimal.NewFromInt(200), ExternalRef: lo.ToPtr("in_1")}
	first, err := svc.Credit(ctx, op)
	require.NoError(t, err)
	second, err := svc.Credit(ctx, op)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.EqualValues(t, 200, reloadAccount(t, gdb, acct.ID).TokenBalance)
}

func TestCreateAccountRequiresExactlyOneOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, &models.Account{Kind: types.AccountKindToken})
	require.ErrorIs(t, err, ErrInvalidOwner)

	_, err = svc.CreateAccount(ctx, &models.Account{
		Kind:        types.AccountKindToken,
		WorkspaceID: lo.ToPtr("ws-1"),
		UserID:      lo.ToPtr("u-1"),
	})
	require.ErrorIs(t, err, ErrInvalidOwner)

	acct, err := svc.CreateAccount(ctx, &models.Account{
		Kind:        types.AccountKindToken,
		WorkspaceID: lo.ToPtr("ws-1"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, acct.ID)
}

func TestTokenAccountLifecycle(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, &models.Account{
		Kind:        types.AccountKindToken,
		WorkspaceID: lo.ToPtr("ws-lifecycle"),
	})
	require.NoError(t, err)

	_, err = svc.Credit(ctx, Op{AccountID: acct.ID, Amount: decimal.NewFromInt(500), ExternalRef: lo.ToPtr("in_grant")})
	require.NoError(t, err)
	_, err = svc.Consume(ctx, Op{AccountID: acct.ID, Amount: decimal.NewFromInt(120)})
	require.NoError(t, err)
	_, err = svc.Consume(ctx, Op{AccountID: acct.ID, Amount: decimal.NewFromInt(400)})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	_, err = svc.Refund(ctx, Op{AccountID: acct.ID, Amount: decimal.NewFromInt(80)})
	require.NoError(t, err)
	_, err = svc.Consume(ctx, Op{AccountID: acct.ID, Amount: decimal.NewFromInt(300)})
	require.NoError(t, err)

	got := reloadAccount(t, gdb, acct.ID)
	require.EqualValues(t, 0, got.TokenBalance)

	// Reconciliation invariant: entries sum to the balance.
	var rows []*models.LedgerTransaction
	require.NoError(t, gdb.Where("account_id = ?", acct.ID).Find(&rows).Error)
	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.Amount)
	}
	require.True(t, sum.Equal(got.Balance()), "sum %s, balance %s", sum, got.Balance())
}
