package deadletter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adscope/billing/internal/app/service/webhook"
	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/pkg/logctx"
	"github.com/adscope/billing/pkg/metrics"
	"github.com/adscope/billing/pkg/tool"
)

// ErrNotFound is returned when the referenced dead-letter row does not exist.
var ErrNotFound = errors.New("dead letter not found")

// Store persists events the dispatcher refused to apply. One row per event
// id: repeated failures of the same event bump the retry count instead of
// piling up rows.
type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	m   *metrics.Registry
}

func NewStore(db *gorm.DB, log *zap.SugaredLogger, m *metrics.Registry) *Store {
	return &Store{db: db, log: log, m: m}
}

// Record upserts a dead-letter row for evt with the given failure reason.
func (s *Store) Record(ctx context.Context, evt webhook.InboundEvent, reason, workspaceID string) error {
	row := &models.BillingEventDeadLetter{
		ID:            tool.GenerateUUIDV7(),
		EventID:       evt.ID,
		EventType:     evt.Type,
		Payload:       datatypes.JSON(evt.Payload),
		FailureReason: reason,
		RetryCount:    0,
		LastAttemptAt: time.Now(),
	}
	if workspaceID != "" {
		row.WorkspaceID = &workspaceID
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "event_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"failure_reason":  reason,
				"retry_count":     gorm.Expr("billing_event_dead_letter.retry_count + 1"),
				"last_attempt_at": time.Now(),
			}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Warnw("event_dead_lettered",
		"event_id", evt.ID, "event_type", evt.Type, "reason", reason)
	s.refreshDepth(ctx)
	return nil
}

func (s *Store) Get(ctx context.Context, eventID string) (*models.BillingEventDeadLetter, error) {
	var row models.BillingEventDeadLetter
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, eventID)
		}
		return nil, err
	}
	return &row, nil
}

// List returns dead-letter rows, oldest first, optionally filtered by
// workspace.
func (s *Store) List(ctx context.Context, workspaceID string, limit int) ([]*models.BillingEventDeadLetter, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("created_at ASC").Limit(limit)
	if workspaceID != "" {
		q = q.Where("workspace_id = ?", workspaceID)
	}
	var rows []*models.BillingEventDeadLetter
	err := q.Find(&rows).Error
	return rows, err
}

func (s *Store) delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.BillingEventDeadLetter{}).Error
}

// PurgeOlderThan drops rows that have sat unreplayed past the retention
// cutoff.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.BillingEventDeadLetter{})
	if res.Error == nil {
		s.refreshDepth(ctx)
	}
	return res.RowsAffected, res.Error
}

func (s *Store) refreshDepth(ctx context.Context) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.BillingEventDeadLetter{}).Count(&n).Error; err == nil {
		s.m.DeadLetterDepth.Set(float64(n))
	}
}
