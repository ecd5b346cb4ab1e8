package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v83"
	"go.uber.org/zap"

	"github.com/adscope/billing/internal/app/service/deadletter"
	"github.com/adscope/billing/internal/app/service/webhook"
	"github.com/adscope/billing/pkg/config"
	"github.com/adscope/billing/pkg/logctx"
	"github.com/adscope/billing/pkg/response"
)

const maxWebhookBody = 256 * 1024

// WebhookHandler is the gateway's entry point. It verifies the signature,
// runs the event through the dispatcher with bounded retries, and routes
// unsalvageable events to the dead-letter store. The endpoint answers 200
// whenever the event ended up somewhere durable, so the gateway stops
// redelivering.
type WebhookHandler struct {
	cfg        *config.Config
	dispatcher *webhook.Dispatcher
	dlq        *deadletter.Store
	log        *zap.SugaredLogger
}

func NewWebhookHandler(cfg *config.Config, d *webhook.Dispatcher, dlq *deadletter.Store, log *zap.SugaredLogger) *WebhookHandler {
	return &WebhookHandler{cfg: cfg, dispatcher: d, dlq: dlq, log: log}
}

func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	ctx := c.Request.Context()
	log := logctx.FromCtx(ctx, h.log)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "unreadable payload"))
		return
	}

	event, err := stripe.ConstructEvent(body, c.GetHeader("Stripe-Signature"), h.cfg.Stripe.WebhookSecret)
	if err != nil {
		log.Warnw("webhook_signature_rejected", "error", err)
		c.JSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid signature"))
		return
	}

	evt := webhook.InboundEvent{
		ID:         event.ID,
		Type:       string(event.Type),
		Payload:    body,
		ReceivedAt: time.Now(),
	}

	res, err := h.dispatchWithRetry(ctx, evt)
	if err != nil {
		// Retries exhausted: park the event for administrative replay instead
		// of dropping it or bouncing redeliveries forever.
		if derr := h.dlq.Record(ctx, evt, err.Error(), ""); derr != nil {
			log.Errorw("dead_letter_record_failed", "event_id", evt.ID, "error", derr)
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
			return
		}
		c.JSON(http.StatusOK, response.OKT(gin.H{"outcome": webhook.OutcomeDeadLetter}))
		return
	}

	if res.Outcome == webhook.OutcomeDeadLetter {
		if derr := h.dlq.Record(ctx, evt, res.Reason, res.WorkspaceID); derr != nil {
			log.Errorw("dead_letter_record_failed", "event_id", evt.ID, "error", derr)
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
			return
		}
	}
	c.JSON(http.StatusOK, response.OKT(gin.H{"outcome": res.Outcome}))
}

func (h *WebhookHandler) dispatchWithRetry(ctx context.Context, evt webhook.InboundEvent) (webhook.Result, error) {
	attempts := h.cfg.Webhook.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := time.Duration(h.cfg.Webhook.BackoffBaseMS) * time.Millisecond
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var res webhook.Result
	var err error
	for i := 0; i < attempts; i++ {
		res, err = h.dispatcher.Dispatch(ctx, evt)
		if err == nil {
			return res, nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return webhook.Result{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return webhook.Result{}, err
}

func RegisterWebhookRoutes(r gin.IRouter, h *WebhookHandler) {
	r.POST("/webhooks/stripe", h.HandleStripe)
}
