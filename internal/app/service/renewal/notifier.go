package renewal

import (
	"context"

	"go.uber.org/zap"

	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/pkg/logctx"
)

// Notifier tells the billing contact about renewal outcomes that need a
// human: a failed payment or a disabled auto-renew.
type Notifier interface {
	RenewalFailed(ctx context.Context, sub *models.Subscription, reason string)
	AutoRenewDisabled(ctx context.Context, sub *models.Subscription, reason string)
}

// LogNotifier is the default notifier: it only writes structured logs. A mail
// or in-app channel can replace it without touching the sweeper.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func NewLogNotifier(log *zap.SugaredLogger) Notifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) RenewalFailed(ctx context.Context, sub *models.Subscription, reason string) {
	logctx.FromCtx(ctx, n.log).Warnw("renewal_failed_notification",
		"workspace_id", sub.WorkspaceID, "subscription_id", sub.ID, "reason", reason)
}

func (n *LogNotifier) AutoRenewDisabled(ctx context.Context, sub *models.Subscription, reason string) {
	logctx.FromCtx(ctx, n.log).Warnw("auto_renew_disabled_notification",
		"workspace_id", sub.WorkspaceID, "subscription_id", sub.ID, "reason", reason)
}
