package models

import (
	"time"

	"gorm.io/datatypes"
)

type IdempotencyStatus string

const (
	IdempotencyStatusPending   IdempotencyStatus = "pending"
	IdempotencyStatusSucceeded IdempotencyStatus = "succeeded"
	IdempotencyStatusFailed    IdempotencyStatus = "failed"
)

// IdempotencyRecord guards a mutation keyed by a caller-supplied key. The
// request hash covers method+path+body+key so key reuse with a different
// payload is detectable.
type IdempotencyRecord struct {
	ID           string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Key          string            `gorm:"column:key;type:varchar(128);not null;uniqueIndex:unique_idempotency_key" json:"key"`
	RequestHash  string            `gorm:"column:request_hash;type:varchar(64);not null" json:"request_hash"`
	Status       IdempotencyStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	ResponseCode int               `gorm:"column:response_code;not null;default:0" json:"response_code"`
	Response     datatypes.JSON    `gorm:"column:response;type:jsonb" json:"response"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (IdempotencyRecord) TableName() string { return "idempotency_record" }
