package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/adscope/billing/pkg/types"
)

// LedgerTransaction is an immutable, append-only ledger entry. The sum of an
// account's transaction amounts equals the account's current balance.
type LedgerTransaction struct {
	ID        string `gorm:"column:id;primary_key;type:uuid;index:idx_ledger_tx_account_id,priority:2,sort:desc" json:"id"`
	AccountID string `gorm:"column:account_id;type:uuid;not null;index:idx_ledger_tx_account_id,priority:1" json:"account_id"`
	// Amount is signed and non-zero. Token account entries carry integral values.
	Amount      decimal.Decimal       `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	Type        types.TransactionType `gorm:"column:type;type:varchar(32);not null" json:"type"`
	Description string                `gorm:"column:description;type:varchar(256)" json:"description"`
	// IdempotencyKey dedupes caller retries; unique when present.
	IdempotencyKey *string `gorm:"column:idempotency_key;type:varchar(128);uniqueIndex:unique_ledger_tx_idem_key" json:"idempotency_key"`
	// ExternalRef links to a gateway object (invoice, charge); unique when present.
	ExternalRef *string   `gorm:"column:external_ref;type:varchar(128);uniqueIndex:unique_ledger_tx_external_ref" json:"external_ref"`
	CreatedAt   time.Time `json:"created_at"`
}

func (LedgerTransaction) TableName() string { return "ledger_transaction" }
