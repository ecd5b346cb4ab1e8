package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/adscope/billing/internal/app/api/middleware"
	"github.com/adscope/billing/internal/app/service/ledger"
	"github.com/adscope/billing/pkg/response"
)

// LedgerHandler exposes the account balance surface: credit and consume are
// write endpoints guarded by the idempotency middleware upstream.
type LedgerHandler struct {
	ledger *ledger.Service
	log    *zap.SugaredLogger
}

func NewLedgerHandler(led *ledger.Service, log *zap.SugaredLogger) *LedgerHandler {
	return &LedgerHandler{ledger: led, log: log}
}

type ledgerOpRequest struct {
	Amount      string  `json:"amount" binding:"required"`
	Description string  `json:"description"`
	ExternalRef *string `json:"external_ref"`
}

func (r *ledgerOpRequest) toOp(c *gin.Context, accountID string) (ledger.Op, bool) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid amount"))
		return ledger.Op{}, false
	}
	op := ledger.Op{
		AccountID:   accountID,
		Amount:      amount,
		Description: r.Description,
		ExternalRef: r.ExternalRef,
	}
	if key := c.GetHeader(middleware.IdempotencyKeyHeader); key != "" {
		op.IdempotencyKey = lo.ToPtr(key)
	}
	return op, true
}

func (h *LedgerHandler) Credit(c *gin.Context) {
	var req ledgerOpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	op, ok := req.toOp(c, c.Param("id"))
	if !ok {
		return
	}
	txn, err := h.ledger.Credit(c.Request.Context(), op)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(txn))
}

func (h *LedgerHandler) Consume(c *gin.Context) {
	var req ledgerOpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	op, ok := req.toOp(c, c.Param("id"))
	if !ok {
		return
	}
	txn, err := h.ledger.Consume(c.Request.Context(), op)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(txn))
}

func (h *LedgerHandler) Refund(c *gin.Context) {
	var req ledgerOpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
		return
	}
	op, ok := req.toOp(c, c.Param("id"))
	if !ok {
		return
	}
	txn, err := h.ledger.Refund(c.Request.Context(), op)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(txn))
}

func (h *LedgerHandler) GetAccount(c *gin.Context) {
	acct, err := h.ledger.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(acct))
}

func (h *LedgerHandler) ListTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := h.ledger.ListTransactions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(rows))
}

func writeLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
	case errors.Is(err, ledger.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeInsufficientBalance, err.Error()))
	case errors.Is(err, ledger.ErrIdempotencyConflict):
		c.JSON(http.StatusConflict, response.ErrorT[any](response.APIResponseCodeConflict, err.Error()))
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidOwner):
		c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
	}
}

// RegisterLedgerRoutes wires the account surface. Write endpoints require an
// Idempotency-Key header.
func RegisterLedgerRoutes(r gin.IRouter, h *LedgerHandler, idem gin.HandlerFunc) {
	r.GET("/accounts/:id", h.GetAccount)
	r.GET("/accounts/:id/transactions", h.ListTransactions)
	r.POST("/accounts/:id/credit", idem, h.Credit)
	r.POST("/accounts/:id/consume", idem, h.Consume)
	r.POST("/accounts/:id/refund", idem, h.Refund)
}
