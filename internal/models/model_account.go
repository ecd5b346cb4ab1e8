package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/adscope/billing/pkg/types"
)

// Account is a ledger account holding either an integer token balance or a
// decimal currency credit balance. Exactly one of WorkspaceID / UserID is set.
type Account struct {
	ID          string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	WorkspaceID *string           `gorm:"column:workspace_id;type:varchar(64);index:idx_account_workspace" json:"workspace_id"`
	UserID      *string           `gorm:"column:user_id;type:varchar(64);index:idx_account_user" json:"user_id"`
	Kind        types.AccountKind `gorm:"column:kind;type:varchar(16);not null" json:"kind"`
	// TokenBalance is authoritative for token accounts and never negative.
	TokenBalance int64 `gorm:"column:token_balance;type:bigint;not null;default:0" json:"token_balance"`
	// CreditBalance is authoritative for credit accounts, two decimal places.
	CreditBalance    decimal.Decimal `gorm:"column:credit_balance;type:numeric(20,2);not null;default:0" json:"credit_balance"`
	StripeCustomerID *string         `gorm:"column:stripe_customer_id;type:varchar(128)" json:"stripe_customer_id"`
	LastSyncedAt     *time.Time      `gorm:"column:last_synced_at;default:null" json:"last_synced_at"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (Account) TableName() string { return "ledger_account" }

// OwnerValid reports whether exactly one owner reference is set.
func (a *Account) OwnerValid() bool {
	if a == nil {
		return false
	}
	return (a.WorkspaceID != nil) != (a.UserID != nil)
}

// Balance returns the authoritative balance as a decimal regardless of kind.
func (a *Account) Balance() decimal.Decimal {
	if a.Kind == types.AccountKindToken {
		return decimal.NewFromInt(a.TokenBalance)
	}
	return a.CreditBalance
}
