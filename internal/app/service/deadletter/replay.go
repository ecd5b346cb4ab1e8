package deadletter

import (
	"context"
	"time"

	"github.com/adscope/billing/internal/app/service/webhook"
	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/pkg/logctx"
)

// Redispatch re-runs an event through the normal dispatch path. Indirection
// keeps the store free of a dispatcher dependency and lets tests replay
// against a fake.
type Redispatch func(ctx context.Context, evt webhook.InboundEvent) (webhook.Result, error)

// ReplayRequest selects what to replay. EventID targets one row; otherwise up
// to Limit oldest rows are attempted. DryRun reports the selection without
// dispatching anything.
type ReplayRequest struct {
	EventID string
	Limit   int
	DryRun  bool
}

// ReplayOutcome reports one row's replay attempt.
type ReplayOutcome struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Outcome   webhook.Outcome `json:"outcome,omitempty"`
	Resolved  bool            `json:"resolved"`
	Error     string          `json:"error,omitempty"`
	DryRun    bool            `json:"dry_run,omitempty"`
}

// Replay re-dispatches dead-lettered events. A terminal outcome deletes the
// row; anything else bumps the retry count and leaves the row for a later
// attempt. Replay never gives up on a row on its own: rows only leave the
// store through success or explicit purge.
func (s *Store) Replay(ctx context.Context, req ReplayRequest, dispatch Redispatch) ([]ReplayOutcome, error) {
	var rows []*models.BillingEventDeadLetter
	if req.EventID != "" {
		row, err := s.Get(ctx, req.EventID)
		if err != nil {
			return nil, err
		}
		rows = []*models.BillingEventDeadLetter{row}
	} else {
		var err error
		rows, err = s.List(ctx, "", req.Limit)
		if err != nil {
			return nil, err
		}
	}

	log := logctx.FromCtx(ctx, s.log)
	outcomes := make([]ReplayOutcome, 0, len(rows))
	for _, row := range rows {
		out := ReplayOutcome{EventID: row.EventID, EventType: row.EventType, DryRun: req.DryRun}
		if req.DryRun {
			outcomes = append(outcomes, out)
			continue
		}

		res, err := dispatch(ctx, webhook.InboundEvent{
			ID:         row.EventID,
			Type:       row.EventType,
			Payload:    []byte(row.Payload),
			ReceivedAt: time.Now(),
		})
		if err != nil {
			out.Error = err.Error()
			s.markAttempt(ctx, row, err.Error())
			outcomes = append(outcomes, out)
			continue
		}

		out.Outcome = res.Outcome
		if res.Outcome.Terminal() {
			if derr := s.delete(ctx, row.ID); derr != nil {
				out.Error = derr.Error()
			} else {
				out.Resolved = true
			}
		} else {
			s.markAttempt(ctx, row, res.Reason)
		}
		log.Infow("dead_letter_replayed",
			"event_id", row.EventID, "outcome", res.Outcome, "resolved", out.Resolved)
		outcomes = append(outcomes, out)
	}
	if !req.DryRun {
		s.refreshDepth(ctx)
	}
	return outcomes, nil
}

func (s *Store) markAttempt(ctx context.Context, row *models.BillingEventDeadLetter, reason string) {
	updates := map[string]any{
		"retry_count":     row.RetryCount + 1,
		"last_attempt_at": time.Now(),
	}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	if err := s.db.WithContext(ctx).
		Model(&models.BillingEventDeadLetter{}).
		Where("id = ?", row.ID).
		Updates(updates).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to update dead letter %s: %v", row.EventID, err)
	}
}
