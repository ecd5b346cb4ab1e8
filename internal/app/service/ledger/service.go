package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/internal/platform/db"
	"github.com/adscope/billing/pkg/logctx"
	"github.com/adscope/billing/pkg/metrics"
	"github.com/adscope/billing/pkg/money"
	"github.com/adscope/billing/pkg/tool"
	"github.com/adscope/billing/pkg/types"
)

// Service is the ledger store. Every mutation runs inside one database
// transaction holding a row lock on the account, so per-account entries are
// strictly serialized and consume never sees a stale balance.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	m   *metrics.Registry
}

func NewService(db *gorm.DB, log *zap.SugaredLogger, m *metrics.Registry) *Service {
	return &Service{db: db, log: log, m: m}
}

// WithTx returns a view of the service bound to an open transaction, so
// ledger writes can join a caller-managed unit of work. Gorm turns the inner
// transaction into a savepoint.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx, log: s.log, m: s.m}
}

// Op describes a credit or consume request. Amount is a positive magnitude;
// the operation decides the sign.
type Op struct {
	AccountID      string
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey *string
	ExternalRef    *string
}

// Credit adds Amount to the account and records a purchase transaction.
func (s *Service) Credit(ctx context.Context, op Op) (*models.LedgerTransaction, error) {
	return s.apply(ctx, op, types.TransactionTypePurchase, money.Normalize(op.Amount), false)
}

// Consume subtracts Amount from the account. Fails with ErrInsufficientBalance
// when the resulting balance would go negative.
func (s *Service) Consume(ctx context.Context, op Op) (*models.LedgerTransaction, error) {
	return s.apply(ctx, op, types.TransactionTypeConsume, money.Normalize(op.Amount).Neg(), false)
}

// Refund subtracts a previously credited Amount. Token accounts still cannot
// go below zero.
func (s *Service) Refund(ctx context.Context, op Op) (*models.LedgerTransaction, error) {
	return s.apply(ctx, op, types.TransactionTypeRefund, money.Normalize(op.Amount).Neg(), false)
}

// ManualAdjust applies a signed operator adjustment. Credit accounts may go
// negative here; token accounts never do.
func (s *Service) ManualAdjust(ctx context.Context, op Op, signed decimal.Decimal) (*models.LedgerTransaction, error) {
	return s.apply(ctx, op, types.TransactionTypeManualAdjustment, money.Normalize(signed), true)
}

func (s *Service) apply(ctx context.Context, op Op, txType types.TransactionType, signed decimal.Decimal, allowNegative bool) (*models.LedgerTransaction, error) {
	if signed.IsZero() {
		return nil, fmt.Errorf("%w: amount must be non-zero", ErrInvalidAmount)
	}

	var out *models.LedgerTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := lockAccount(ctx, tx, op.AccountID)
		if err != nil {
			return err
		}
		if err := validateAmount(acct.Kind, signed.Abs()); err != nil {
			return err
		}

		existing, err := s.findExisting(ctx, tx, op)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := matchExisting(existing, op.AccountID, txType, signed); err != nil {
				return err
			}
			out = existing
			return nil
		}

		newBalance := acct.Balance().Add(signed)
		if newBalance.Sign() < 0 {
			if acct.Kind == types.AccountKindToken || !allowNegative {
				return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientBalance, acct.Balance(), signed)
			}
		}

		row := &models.LedgerTransaction{
			ID:             tool.GenerateUUIDV7(),
			AccountID:      acct.ID,
			Amount:         signed,
			Type:           txType,
			Description:    op.Description,
			IdempotencyKey: op.IdempotencyKey,
			ExternalRef:    op.ExternalRef,
		}
		if err := tx.WithContext(ctx).Create(row).Error; err != nil {
			return fmt.Errorf("failed to create ledger transaction: %w", err)
		}
		if err := s.writeBalance(ctx, tx, acct, newBalance, nil); err != nil {
			return err
		}
		out = row
		return nil
	})
	if err != nil {
		s.m.LedgerOps.WithLabelValues(string(txType), "error").Inc()
		return nil, err
	}
	s.m.LedgerOps.WithLabelValues(string(txType), "ok").Inc()
	return out, nil
}

// findExisting looks up a prior transaction by idempotency key, then external
// ref. Runs under the account row lock so racing retries serialize.
func (s *Service) findExisting(ctx context.Context, tx *gorm.DB, op Op) (*models.LedgerTransaction, error) {
	lookup := func(col string, val *string) (*models.LedgerTransaction, error) {
		if val == nil || *val == "" {
			return nil, nil
		}
		var row models.LedgerTransaction
		err := tx.WithContext(ctx).Where(col+" = ?", *val).First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to look up existing transaction: %w", err)
		}
		return &row, nil
	}

	if row, err := lookup("idempotency_key", op.IdempotencyKey); row != nil || err != nil {
		return row, err
	}
	return lookup("external_ref", op.ExternalRef)
}

// ReconcileBalance adjusts the account to a gateway-reported balance. A zero
// delta updates sync metadata only; a non-zero delta writes a sync entry.
func (s *Service) ReconcileBalance(ctx context.Context, accountID string, reported decimal.Decimal) (*models.LedgerTransaction, error) {
	var out *models.LedgerTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := lockAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		now := time.Now()
		delta := money.Delta(reported, acct.Balance())
		if delta.IsZero() {
			return tx.WithContext(ctx).Model(acct).Update("last_synced_at", now).Error
		}

		row := &models.LedgerTransaction{
			ID:          tool.GenerateUUIDV7(),
			AccountID:   acct.ID,
			Amount:      delta,
			Type:        types.TransactionTypeSync,
			Description: fmt.Sprintf("balance sync: local %s, reported %s", acct.Balance(), money.Normalize(reported)),
		}
		if err := tx.WithContext(ctx).Create(row).Error; err != nil {
			return fmt.Errorf("failed to create sync transaction: %w", err)
		}
		if err := s.writeBalance(ctx, tx, acct, money.Normalize(reported), &now); err != nil {
			return err
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		logctx.FromCtx(ctx, s.log).Infow("ledger_balance_synced", "account_id", accountID, "delta", out.Amount)
	}
	return out, nil
}

// ApplyGatewayBalanceDelta reconciles against a gateway-reported balance in
// minor units (customer.balance webhook path).
func (s *Service) ApplyGatewayBalanceDelta(ctx context.Context, accountID string, reportedCents int64) (*models.LedgerTransaction, error) {
	return s.ReconcileBalance(ctx, accountID, money.FromCents(reportedCents))
}

func (s *Service) writeBalance(ctx context.Context, tx *gorm.DB, acct *models.Account, balance decimal.Decimal, syncedAt *time.Time) error {
	updates := map[string]any{}
	if acct.Kind == types.AccountKindToken {
		updates["token_balance"] = balance.IntPart()
	} else {
		updates["credit_balance"] = balance
	}
	if syncedAt != nil {
		updates["last_synced_at"] = *syncedAt
	}
	if err := tx.WithContext(ctx).Model(acct).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}
	return nil
}

func lockAccount(ctx context.Context, tx *gorm.DB, id string) (*models.Account, error) {
	var acct models.Account
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("id = ?", id).
		First(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return &acct, nil
}

// CreateAccount opens a new ledger account. The account must name exactly
// one owner, a workspace or a user, never both.
func (s *Service) CreateAccount(ctx context.Context, acct *models.Account) (*models.Account, error) {
	if !acct.OwnerValid() {
		return nil, ErrInvalidOwner
	}
	if acct.ID == "" {
		acct.ID = tool.GenerateUUIDV7()
	}
	if err := s.db.WithContext(ctx).Create(acct).Error; err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return acct, nil
}

func (s *Service) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var acct models.Account
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return nil, err
	}
	return &acct, nil
}

// FindWorkspaceAccount returns the workspace's account of the given kind.
func (s *Service) FindWorkspaceAccount(ctx context.Context, workspaceID string, kind types.AccountKind) (*models.Account, error) {
	var acct models.Account
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND kind = ?", workspaceID, kind).
		First(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: workspace %s kind %s", ErrAccountNotFound, workspaceID, kind)
		}
		return nil, err
	}
	return &acct, nil
}

// FindAccountByCustomer maps a gateway customer id to its credit account.
func (s *Service) FindAccountByCustomer(ctx context.Context, customerID string) (*models.Account, error) {
	var acct models.Account
	err := s.db.WithContext(ctx).
		Where("stripe_customer_id = ? AND kind = ?", customerID, types.AccountKindCredit).
		First(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: customer %s", ErrAccountNotFound, customerID)
		}
		return nil, err
	}
	return &acct, nil
}

// ListTransactions returns an account's entries, newest first.
func (s *Service) ListTransactions(ctx context.Context, accountID string, limit int) ([]*models.LedgerTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []*models.LedgerTransaction
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return rows, nil
}
