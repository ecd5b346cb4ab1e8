package models

import (
	"time"

	"github.com/adscope/billing/pkg/types"
)

// PlanChangeRequest records a requested subscription plan change, immediate or
// scheduled. Scheduled downgrades may be canceled by the renew-first rule; the
// skip reason is appended to AdminNotes.
type PlanChangeRequest struct {
	ID              string                 `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID  string                 `gorm:"column:subscription_id;type:uuid;not null;index" json:"subscription_id"`
	WorkspaceID     string                 `gorm:"column:workspace_id;type:varchar(64);not null;index" json:"workspace_id"`
	FromPlanID      string                 `gorm:"column:from_plan_id;type:varchar(64);not null" json:"from_plan_id"`
	ToPlanID        string                 `gorm:"column:to_plan_id;type:varchar(64);not null" json:"to_plan_id"`
	ChangeType      types.PlanChangeType   `gorm:"column:change_type;type:varchar(16);not null" json:"change_type"`
	EffectiveTiming types.EffectiveTiming  `gorm:"column:effective_timing;type:varchar(16);not null" json:"effective_timing"`
	EffectiveDate   *time.Time             `gorm:"column:effective_date;default:null;index" json:"effective_date"`
	Status          types.PlanChangeStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	RequestedBy     string                 `gorm:"column:requested_by;type:varchar(64);not null" json:"requested_by"`
	ProcessedBy     *string                `gorm:"column:processed_by;type:varchar(64)" json:"processed_by"`
	Reason          string                 `gorm:"column:reason;type:varchar(256)" json:"reason"`
	AdminNotes      string                 `gorm:"column:admin_notes;type:text" json:"admin_notes"`
	ProcessedAt     *time.Time             `gorm:"column:processed_at;default:null" json:"processed_at"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

func (PlanChangeRequest) TableName() string { return "plan_change_request" }
