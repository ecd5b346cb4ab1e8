package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/adscope/billing/internal/app/service/deadletter"
	"github.com/adscope/billing/internal/app/service/ledger"
	"github.com/adscope/billing/internal/app/service/lifecycle"
	"github.com/adscope/billing/internal/app/service/webhook"
	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/pkg/response"
	"github.com/adscope/billing/pkg/types"
)

// AdminHandler groups the operator surface: subscription plan management,
// dead-letter inspection and replay, and manual ledger adjustments.
type AdminHandler struct {
	lifecycle  *lifecycle.Service
	ledger     *ledger.Service
	dlq        *deadletter.Store
	dispatcher *webhook.Dispatcher
	eventLog   *webhook.EventLog
	log        *zap.SugaredLogger
}

func NewAdminHandler(lc *lifecycle.Service, led *ledger.Service, dlq *deadletter.Store, d *webhook.Dispatcher, el *webhook.EventLog, log *zap.SugaredLogger) *AdminHandler {
	return &AdminHandler{lifecycle: lc, ledger: led, dlq: dlq, dispatcher: d, eventLog: el, log: log}
}

func actor(c *gin.Context) string {
	if a := c.GetHeader("X-Actor"); a != "" {
		return a
	}
	return "admin"
}

func (h *AdminHandler) GetSubscription(c *gin.Context) {
	sub, err := h.lifecycle.GetByWorkspace(c.Request.Context(), c.Param("workspace_id"))
	if err != nil {
		writeLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(sub))
}

type planChangeRequest struct {
	PlanID        string     `json:"plan_id" binding:"required"`
	EffectiveDate *time.Time `json:"effective_date"`
	Reason        string     `json:"reason"`
}

func (h *AdminHandler) Upgrade(c *gin.Context) {
	var req planChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	change, err := h.lifecycle.Upgrade(c.Request.Context(), c.Param("workspace_id"), req.PlanID, actor(c))
	if err != nil {
		writeLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(change))
}

func (h *AdminHandler) Schedule(c *gin.Context) {
	var req planChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	change, err := h.lifecycle.Schedule(c.Request.Context(), c.Param("workspace_id"), req.PlanID, req.EffectiveDate, actor(c), req.Reason)
	if err != nil {
		writeLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(change))
}

func (h *AdminHandler) ExecuteChange(c *gin.Context) {
	if err := h.lifecycle.ExecuteScheduled(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		writeLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT[any](nil))
}

func (h *AdminHandler) ListChanges(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := h.lifecycle.ListChanges(c.Request.Context(), c.Param("workspace_id"), limit)
	if err != nil {
		writeLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(rows))
}

type autoRenewRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *AdminHandler) SetAutoRenew(c *gin.Context) {
	var req autoRenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	if err := h.lifecycle.SetAutoRenew(c.Request.Context(), c.Param("workspace_id"), *req.Enabled, actor(c)); err != nil {
		writeLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT[any](nil))
}

type billingOwnerRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *AdminHandler) AssignBillingOwner(c *gin.Context) {
	var req billingOwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	if err := h.lifecycle.AssignBillingOwner(c.Request.Context(), c.Param("workspace_id"), req.UserID, actor(c)); err != nil {
		writeLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT[any](nil))
}

func (h *AdminHandler) ReleaseBillingOwner(c *gin.Context) {
	force := c.Query("force") == "true"
	if err := h.lifecycle.ReleaseBillingOwner(c.Request.Context(), c.Param("workspace_id"), actor(c), force); err != nil {
		writeLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT[any](nil))
}

type createAccountRequest struct {
	Kind             string  `json:"kind" binding:"required,oneof=token credit"`
	WorkspaceID      *string `json:"workspace_id"`
	UserID           *string `json:"user_id"`
	StripeCustomerID *string `json:"stripe_customer_id"`
}

func (h *AdminHandler) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	acct, err := h.ledger.CreateAccount(c.Request.Context(), &models.Account{
		Kind:             types.AccountKind(req.Kind),
		WorkspaceID:      req.WorkspaceID,
		UserID:           req.UserID,
		StripeCustomerID: req.StripeCustomerID,
	})
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(acct))
}

type manualAdjustRequest struct {
	Amount      string `json:"amount" binding:"required"`
	Description string `json:"description" binding:"required"`
}

func (h *AdminHandler) ManualAdjust(c *gin.Context) {
	var req manualAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	signed, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid amount"))
		return
	}
	op := ledger.Op{AccountID: c.Param("id"), Amount: signed.Abs(), Description: req.Description}
	txn, err := h.ledger.ManualAdjust(c.Request.Context(), op, signed)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(txn))
}

func (h *AdminHandler) ListDeadLetters(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := h.dlq.List(c.Request.Context(), c.Query("workspace_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
		return
	}
	c.JSON(http.StatusOK, response.OKT(rows))
}

type replayRequest struct {
	EventID string `json:"event_id"`
	Limit   int    `json:"limit"`
	DryRun  bool   `json:"dry_run"`
}

func (h *AdminHandler) ReplayDeadLetters(c *gin.Context) {
	var req replayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	outcomes, err := h.dlq.Replay(c.Request.Context(), deadletter.ReplayRequest{
		EventID: req.EventID,
		Limit:   req.Limit,
		DryRun:  req.DryRun,
	}, h.dispatcher.Dispatch)
	if err != nil {
		if errors.Is(err, deadletter.ErrNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
		return
	}
	c.JSON(http.StatusOK, response.OKT(outcomes))
}

func (h *AdminHandler) ListEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := h.eventLog.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
		return
	}
	c.JSON(http.StatusOK, response.OKT(rows))
}

func writeLifecycleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrSubscriptionNotFound),
		errors.Is(err, lifecycle.ErrProfileMissing):
		c.JSON(http.StatusNotFound, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
	case errors.Is(err, lifecycle.ErrSamePlan),
		errors.Is(err, lifecycle.ErrUnknownPlan),
		errors.Is(err, lifecycle.ErrNotLinked),
		errors.Is(err, lifecycle.ErrChangeNotPending):
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
	case errors.Is(err, lifecycle.ErrPendingChangeExists),
		errors.Is(err, lifecycle.ErrOwnerBound):
		c.JSON(http.StatusConflict, response.ErrorT[any](response.APIResponseCodeConflict, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
	}
}

// RegisterAdminRoutes wires the operator surface under the given group.
// Gateway-touching writes go through the idempotency middleware.
func RegisterAdminRoutes(r gin.IRouter, h *AdminHandler, idem gin.HandlerFunc) {
	r.GET("/subscriptions/:workspace_id", h.GetSubscription)
	r.GET("/subscriptions/:workspace_id/changes", h.ListChanges)
	r.POST("/subscriptions/:workspace_id/upgrade", idem, h.Upgrade)
	r.POST("/subscriptions/:workspace_id/schedule", idem, h.Schedule)
	r.POST("/subscriptions/:workspace_id/auto-renew", h.SetAutoRenew)
	r.POST("/subscriptions/:workspace_id/billing-owner", h.AssignBillingOwner)
	r.DELETE("/subscriptions/:workspace_id/billing-owner", h.ReleaseBillingOwner)
	r.POST("/plan-changes/:id/execute", h.ExecuteChange)
	r.POST("/accounts", h.CreateAccount)
	r.POST("/accounts/:id/adjust", idem, h.ManualAdjust)
	r.GET("/dead-letters", h.ListDeadLetters)
	r.POST("/dead-letters/replay", h.ReplayDeadLetters)
	r.GET("/events", h.ListEvents)
}
