package idempo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/internal/platform/db"
	"github.com/adscope/billing/pkg/tool"
)

// Decision is the guard's verdict for a keyed request.
type Decision int

const (
	// DecisionProceed: no live record; the caller owns the key and must
	// Finalize when done.
	DecisionProceed Decision = iota
	// DecisionDuplicate: the same request already succeeded; replay the
	// recorded response, run nothing.
	DecisionDuplicate
	// DecisionConflict: the key was reused with a different request payload.
	DecisionConflict
	// DecisionInFlight: a concurrent attempt holds the key.
	DecisionInFlight
)

// Guard applies at-most-once semantics to mutations keyed by an external
// identifier: a client Idempotency-Key header or a gateway event id.
type Guard struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewGuard(db *gorm.DB, log *zap.SugaredLogger) *Guard { return &Guard{db: db, log: log} }

// RequestHash covers method, path, body, and key, so reusing a key with a
// different request is detectable.
func RequestHash(method, path string, body []byte, key string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	h.Write([]byte{0})
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}

// decide maps existing record state to a verdict. Failed records release the
// key so the caller may retry.
func decide(existing *models.IdempotencyRecord, hash string) Decision {
	if existing == nil {
		return DecisionProceed
	}
	if existing.RequestHash != hash {
		return DecisionConflict
	}
	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return DecisionDuplicate
	case models.IdempotencyStatusPending:
		return DecisionInFlight
	default:
		return DecisionProceed
	}
}

// Reserve claims the key for the caller. The locked lookup-or-create
// serializes concurrent submissions of the same key.
func (g *Guard) Reserve(ctx context.Context, key, hash string) (*models.IdempotencyRecord, Decision, error) {
	var record *models.IdempotencyRecord
	var decision Decision

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.IdempotencyRecord
		err := db.ForUpdate(tx.WithContext(ctx)).
			Where("key = ?", key).
			First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up idempotency record: %w", err)
		}

		var prior *models.IdempotencyRecord
		if err == nil {
			prior = &existing
		}
		decision = decide(prior, hash)
		if decision != DecisionProceed {
			record = prior
			return nil
		}

		if prior != nil {
			// Failed record: reclaim for retry.
			prior.Status = models.IdempotencyStatusPending
			prior.ResponseCode = 0
			prior.Response = nil
			if err := tx.WithContext(ctx).Save(prior).Error; err != nil {
				return fmt.Errorf("failed to reclaim idempotency record: %w", err)
			}
			record = prior
			return nil
		}

		row := &models.IdempotencyRecord{
			ID:          tool.GenerateUUIDV7(),
			Key:         key,
			RequestHash: hash,
			Status:      models.IdempotencyStatusPending,
		}
		if err := tx.WithContext(ctx).Create(row).Error; err != nil {
			// A racing insert on the same key is a concurrent duplicate.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				decision = DecisionInFlight
				return nil
			}
			return fmt.Errorf("failed to create idempotency record: %w", err)
		}
		record = row
		return nil
	})
	if err != nil {
		return nil, DecisionConflict, err
	}
	return record, decision, nil
}

// Finalize records the downstream outcome for a reserved key.
func (g *Guard) Finalize(ctx context.Context, key string, ok bool, responseCode int, response []byte) error {
	status := models.IdempotencyStatusSucceeded
	if !ok {
		status = models.IdempotencyStatusFailed
	}
	updates := map[string]any{
		"status":        status,
		"response_code": responseCode,
	}
	if response != nil {
		updates["response"] = datatypes.JSON(response)
	}
	err := g.db.WithContext(ctx).
		Model(&models.IdempotencyRecord{}).
		Where("key = ?", key).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to finalize idempotency record: %w", err)
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(NewGuard),
)
