package webhook

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adscope/billing/pkg/logctx"
	"github.com/adscope/billing/pkg/metrics"
)

// Handler applies one event kind inside the dispatch transaction.
type Handler func(ctx context.Context, tx *gorm.DB, env *eventEnvelope) (Result, error)

// Dispatcher routes inbound gateway events through the event log and the
// per-kind handler table. The table is built once at construction and covers
// every known kind; unknown kinds fall through to an ignore handler, so
// routing is total and adding a kind means adding exactly one map entry.
type Dispatcher struct {
	db       *gorm.DB
	eventLog *EventLog
	log      *zap.SugaredLogger
	m        *metrics.Registry
	handlers map[EventKind]Handler
}

func NewDispatcher(db *gorm.DB, eventLog *EventLog, proc *Processor, log *zap.SugaredLogger, m *metrics.Registry) *Dispatcher {
	d := &Dispatcher{db: db, eventLog: eventLog, log: log, m: m}
	d.handlers = map[EventKind]Handler{
		KindCustomerUpdated:      proc.handleCustomerUpdated,
		KindInvoiceCreated:       proc.handleInvoiceCreated,
		KindInvoicePaid:          proc.handleInvoicePaid,
		KindInvoicePaymentFailed: proc.handleInvoicePaymentFailed,
		KindSubscriptionUpdated:  proc.handleSubscriptionUpdated,
		KindSubscriptionDeleted:  proc.handleSubscriptionDeleted,
	}
	return d
}

func handlerFor(handlers map[EventKind]Handler, kind EventKind) Handler {
	if h, ok := handlers[kind]; ok {
		return h
	}
	return func(context.Context, *gorm.DB, *eventEnvelope) (Result, error) {
		return ignored(), nil
	}
}

// Dispatch runs one event through claim, handle, complete. The handler's
// writes happen in a single database transaction; the event log row is
// managed outside it so a rolled-back handler still leaves a failed row
// behind for retry. Handler errors are returned to the caller, who decides
// between HTTP retry and dead-lettering; a Result is authoritative only when
// err is nil.
func (d *Dispatcher) Dispatch(ctx context.Context, evt InboundEvent) (Result, error) {
	kind := ParseEventKind(evt.Type)
	log := logctx.FromCtx(ctx, d.log)

	row, proceed, err := d.eventLog.Begin(ctx, evt)
	if err != nil {
		return Result{}, err
	}
	if !proceed {
		d.m.WebhookOutcomes.WithLabelValues(kind.String(), string(OutcomeSkipped)).Inc()
		log.Infow("event_skipped", "event_id", evt.ID, "event_type", evt.Type)
		return Result{Outcome: OutcomeSkipped}, nil
	}

	var res Result
	env, decErr := decodeEnvelope(evt.Payload)
	if decErr != nil {
		res = deadLetter(decErr.Error())
	} else {
		handler := handlerFor(d.handlers, kind)
		err = d.db.Transaction(func(tx *gorm.DB) error {
			r, herr := handler(ctx, tx, env)
			if herr != nil {
				return herr
			}
			res = r
			return nil
		})
	}

	if cerr := d.eventLog.Complete(ctx, row, res, err); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		d.m.WebhookOutcomes.WithLabelValues(kind.String(), "error").Inc()
		log.Errorw("event_dispatch_failed", "event_id", evt.ID, "event_type", evt.Type, "error", err)
		return Result{}, err
	}

	d.m.WebhookOutcomes.WithLabelValues(kind.String(), string(res.Outcome)).Inc()
	log.Infow("event_dispatched",
		"event_id", evt.ID, "event_type", evt.Type,
		"outcome", res.Outcome, "reason", res.Reason)
	return res, nil
}
