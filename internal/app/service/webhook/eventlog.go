package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/internal/platform/db"
	"github.com/adscope/billing/pkg/config"
	"github.com/adscope/billing/pkg/logctx"
	"github.com/adscope/billing/pkg/tool"
)

// EventLog owns the webhook_event_log lifecycle. Begin claims an event for
// processing in its own committed transaction, so the row survives a handler
// rollback; Complete records the terminal verdict.
type EventLog struct {
	db  *gorm.DB
	cfg *config.Config
	log *zap.SugaredLogger
}

func NewEventLog(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger) *EventLog {
	return &EventLog{db: db, cfg: cfg, log: log}
}

func payloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (l *EventLog) stuckAfter() time.Duration {
	return time.Duration(l.cfg.Webhook.StuckAfterMinutes) * time.Minute
}

// Begin claims evt for processing. It returns the log row and proceed=true
// when the caller should dispatch, or proceed=false when the event is already
// handled or another worker holds it. A failed or stale-processing row is
// reclaimed and retried.
func (l *EventLog) Begin(ctx context.Context, evt InboundEvent) (*models.WebhookEventLog, bool, error) {
	var row *models.WebhookEventLog
	proceed := false

	claim := func(tx *gorm.DB) error {
		var existing models.WebhookEventLog
		err := db.ForUpdate(tx.WithContext(ctx)).
			Where("event_id = ?", evt.ID).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			fresh := &models.WebhookEventLog{
				ID:          tool.GenerateUUIDV7(),
				EventID:     evt.ID,
				EventType:   evt.Type,
				PayloadHash: payloadHash(evt.Payload),
				Payload:     datatypes.JSON(evt.Payload),
				Status:      models.WebhookEventStatusProcessing,
				Attempts:    1,
			}
			if err := tx.WithContext(ctx).Create(fresh).Error; err != nil {
				return err
			}
			row, proceed = fresh, true
			return nil
		case err != nil:
			return err
		}

		row = &existing
		if existing.Handled {
			return nil
		}
		if existing.Status == models.WebhookEventStatusProcessing &&
			time.Since(existing.UpdatedAt) < l.stuckAfter() {
			// Another worker is on it, or it crashed recently enough that we
			// still give it the benefit of the doubt.
			return nil
		}
		existing.Status = models.WebhookEventStatusProcessing
		existing.Attempts++
		if err := tx.WithContext(ctx).Save(&existing).Error; err != nil {
			return err
		}
		proceed = true
		return nil
	}

	err := l.db.Transaction(claim)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost the insert race: the winner's row is committed now, re-read it.
		err = l.db.Transaction(claim)
	}
	if err != nil {
		return nil, false, err
	}
	return row, proceed, nil
}

// Complete moves the claimed row to its terminal state. Dead-lettered and
// errored events land in `failed` with handled=false, so a later replay of
// the same event id goes back through Begin.
func (l *EventLog) Complete(ctx context.Context, row *models.WebhookEventLog, res Result, handlerErr error) error {
	now := time.Now()
	updates := map[string]any{
		"processed_at": &now,
	}
	switch {
	case handlerErr != nil:
		updates["status"] = models.WebhookEventStatusFailed
		updates["handled"] = false
		updates["last_error"] = handlerErr.Error()
	case res.Outcome == OutcomeDeadLetter:
		updates["status"] = models.WebhookEventStatusFailed
		updates["handled"] = false
		updates["last_error"] = res.Reason
	case res.Outcome == OutcomeIgnored:
		updates["status"] = models.WebhookEventStatusIgnored
		updates["handled"] = true
		updates["last_error"] = ""
	default:
		updates["status"] = models.WebhookEventStatusProcessed
		updates["handled"] = true
		updates["last_error"] = ""
	}
	err := l.db.WithContext(ctx).
		Model(&models.WebhookEventLog{}).
		Where("id = ?", row.ID).
		Updates(updates).Error
	if err != nil {
		logctx.FromCtx(ctx, l.log).Errorf("failed to complete event log %s: %v", row.EventID, err)
	}
	return err
}

// ListRecent returns the newest event log rows for the admin surface.
func (l *EventLog) ListRecent(ctx context.Context, limit int) ([]*models.WebhookEventLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []*models.WebhookEventLog
	err := l.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// PurgeHandledBefore deletes terminally handled rows older than cutoff.
func (l *EventLog) PurgeHandledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := l.db.WithContext(ctx).
		Where("handled = ? AND created_at < ?", true, cutoff).
		Delete(&models.WebhookEventLog{})
	return res.RowsAffected, res.Error
}
