package models

import (
	"time"

	"gorm.io/datatypes"
)

type WebhookEventStatus string

const (
	WebhookEventStatusProcessing WebhookEventStatus = "processing"
	WebhookEventStatusProcessed  WebhookEventStatus = "processed"
	WebhookEventStatusIgnored    WebhookEventStatus = "ignored"
	WebhookEventStatusFailed     WebhookEventStatus = "failed"
)

// WebhookEventLog records every inbound gateway event and its processing
// lifecycle: created in `processing` before dispatch, moved to a terminal
// status after the handler returns. The unique event id serializes concurrent
// deliveries of the same event.
type WebhookEventLog struct {
	ID          string             `gorm:"column:id;type:uuid;primary_key" json:"id"`
	EventID     string             `gorm:"column:event_id;type:varchar(128);not null;uniqueIndex:unique_webhook_event_id" json:"event_id"`
	EventType   string             `gorm:"column:event_type;type:varchar(100);not null;index" json:"event_type"`
	PayloadHash string             `gorm:"column:payload_hash;type:varchar(64);not null" json:"payload_hash"`
	Payload     datatypes.JSON     `gorm:"column:payload;type:jsonb" json:"payload"`
	Status      WebhookEventStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	// Handled is true only once the event reached a terminal processed/ignored
	// state; redelivery of a handled event is a no-op.
	Handled        bool       `gorm:"column:handled;not null;default:false" json:"handled"`
	IdempotencyKey *string    `gorm:"column:idempotency_key;type:varchar(128)" json:"idempotency_key"`
	Attempts       int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError      string     `gorm:"column:last_error;type:text" json:"last_error"`
	ProcessedAt    *time.Time `gorm:"column:processed_at;default:null" json:"processed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (WebhookEventLog) TableName() string { return "webhook_event_log" }

// Terminal reports whether the log reached a state redelivery must not reopen.
func (e *WebhookEventLog) Terminal() bool {
	return e != nil && e.Handled
}
