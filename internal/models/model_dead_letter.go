package models

import (
	"time"

	"gorm.io/datatypes"
)

// BillingEventDeadLetter holds gateway events the dispatcher could not safely
// apply. Rows are upserted by event id, replayed on demand, and deleted once a
// replay succeeds.
type BillingEventDeadLetter struct {
	ID            string         `gorm:"column:id;type:uuid;primary_key" json:"id"`
	EventID       string         `gorm:"column:event_id;type:varchar(128);not null;uniqueIndex:unique_dead_letter_event_id" json:"event_id"`
	EventType     string         `gorm:"column:event_type;type:varchar(100);not null;index" json:"event_type"`
	Payload       datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	FailureReason string         `gorm:"column:failure_reason;type:text" json:"failure_reason"`
	RetryCount    int            `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	WorkspaceID   *string        `gorm:"column:workspace_id;type:varchar(64);index" json:"workspace_id"`
	LastAttemptAt time.Time      `gorm:"column:last_attempt_at" json:"last_attempt_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (BillingEventDeadLetter) TableName() string { return "billing_event_dead_letter" }
