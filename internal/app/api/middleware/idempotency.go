package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adscope/billing/internal/app/service/idempo"
	"github.com/adscope/billing/pkg/response"
)

// IdempotencyKeyHeader is required on guarded write endpoints.
const IdempotencyKeyHeader = "Idempotency-Key"

type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware enforces the Idempotency-Key contract on write
// endpoints: missing key is a 400; a reused key with a different request is a
// 409 conflict; a replay of a request that already succeeded is a 409
// duplicate carrying the recorded response. On proceed, the downstream
// outcome is recorded against the key.
func IdempotencyMiddleware(guard *idempo.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				response.ErrorT[any](response.APIResponseCodeBadRequest, "missing Idempotency-Key header"))
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				response.ErrorT[any](response.APIResponseCodeBadRequest, "unreadable request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		// Hash the concrete request path, not the route pattern: the same
		// route serving two accounts must produce two different hashes.
		hash := idempo.RequestHash(c.Request.Method, c.Request.URL.Path, body, key)
		record, decision, err := guard.Reserve(c.Request.Context(), key, hash)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				response.ErrorT[any](response.APIResponseCodeError, nil))
			return
		}

		switch decision {
		case idempo.DecisionConflict:
			c.AbortWithStatusJSON(http.StatusConflict,
				response.ErrorT[any](response.APIResponseCodeConflict, nil))
			return
		case idempo.DecisionInFlight:
			c.AbortWithStatusJSON(http.StatusConflict,
				response.ErrorT[any](response.APIResponseCodeConflict, "request with this key is in flight"))
			return
		case idempo.DecisionDuplicate:
			if record != nil && len(record.Response) > 0 {
				c.Header("Content-Type", "application/json")
				c.String(http.StatusConflict, string(record.Response))
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusConflict,
				response.ErrorT[any](response.APIResponseCodeDuplicate, nil))
			return
		}

		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw
		c.Next()

		status := c.Writer.Status()
		var recorded []byte
		if status < http.StatusBadRequest {
			recorded = cw.body.Bytes()
		}
		// Finalize failures only lose replay protection for this key; the
		// request itself already completed.
		_ = guard.Finalize(c.Request.Context(), key, status < http.StatusBadRequest, status, recorded)
	}
}
