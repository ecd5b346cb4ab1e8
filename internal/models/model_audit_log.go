package models

import (
	"time"

	"gorm.io/datatypes"
)

// BillingAuditLog is an append-only trail of lifecycle decisions.
// Use case: compliance and troubleshooting.
type BillingAuditLog struct {
	ID             string  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	WorkspaceID    string  `gorm:"column:workspace_id;type:varchar(64);not null;index:idx_audit_workspace_id,priority:1" json:"workspace_id"`
	SubscriptionID *string `gorm:"column:subscription_id;type:uuid;index" json:"subscription_id"`
	AccountID      *string `gorm:"column:account_id;type:uuid" json:"account_id"`
	// Action names the lifecycle decision, e.g. "plan_upgrade", "renewal_failed".
	Action string `gorm:"column:action;type:varchar(64);not null" json:"action"`
	Actor  string `gorm:"column:actor;type:varchar(64);not null" json:"actor"`
	// Before/After store entity snapshots in JSON format.
	Before    datatypes.JSON    `gorm:"column:before;type:jsonb;default:'null'" json:"before"`
	After     datatypes.JSON    `gorm:"column:after;type:jsonb;default:'null'" json:"after"`
	Extra     datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt time.Time         `json:"created_at"`
}

func (BillingAuditLog) TableName() string { return "billing_audit_log" }
