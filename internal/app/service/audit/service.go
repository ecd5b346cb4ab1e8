package audit

import (
	"context"
	"encoding/json"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/pkg/logctx"
	"github.com/adscope/billing/pkg/tool"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Entry is the caller-facing shape of an audit record; Before/After are
// marshalled to JSON snapshots on save.
type Entry struct {
	WorkspaceID    string
	SubscriptionID *string
	AccountID      *string
	Action         string
	Actor          string
	Before         any
	After          any
	Extra          map[string]any
}

// Record asynchronously persists an audit entry. Failures are logged, never
// propagated: audit writes must not roll back the decision they describe.
// Before/After are marshalled before the goroutine starts, so callers may
// keep mutating the entities they passed in.
func (s *Service) Record(ctx context.Context, e Entry) {
	row := &models.BillingAuditLog{
		ID:             tool.GenerateUUIDV7(),
		WorkspaceID:    e.WorkspaceID,
		SubscriptionID: e.SubscriptionID,
		AccountID:      e.AccountID,
		Action:         e.Action,
		Actor:          e.Actor,
		Before:         mustJSON(e.Before),
		After:          mustJSON(e.After),
		Extra:          datatypes.JSONMap{},
	}
	for k, v := range e.Extra {
		row.Extra[k] = v
	}
	go func() {
		if err := s.db.Save(row).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save audit log: %v", err)
		}
	}()
}

func mustJSON(v any) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

var Module = fx.Options(
	fx.Provide(New),
)
