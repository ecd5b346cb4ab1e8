package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adscope/billing/internal/app/service/idempo"
	"github.com/adscope/billing/internal/models"
)

func newIdempotencyRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&models.IdempotencyRecord{}))

	guard := idempo.NewGuard(gdb, zap.NewNop().Sugar())
	r := gin.New()
	r.POST("/accounts/:id/credit", IdempotencyMiddleware(guard), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"account": c.Param("id")})
	})
	return r
}

func postWithKey(r *gin.Engine, path, body, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyMissingKeyRejected(t *testing.T) {
	r := newIdempotencyRouter(t)
	w := postWithKey(r, "/accounts/acc-a/credit", `{"amount":"10"}`, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdempotencySameRequestReplaysRecordedResponse(t *testing.T) {
	r := newIdempotencyRouter(t)

	first := postWithKey(r, "/accounts/acc-a/credit", `{"amount":"10"}`, "k1")
	require.Equal(t, http.StatusOK, first.Code)
	require.Contains(t, first.Body.String(), "acc-a")

	replay := postWithKey(r, "/accounts/acc-a/credit", `{"amount":"10"}`, "k1")
	require.Equal(t, http.StatusConflict, replay.Code)
	require.Contains(t, replay.Body.String(), "acc-a")
}

func TestIdempotencyKeyReuseAcrossAccountsConflicts(t *testing.T) {
	r := newIdempotencyRouter(t)

	first := postWithKey(r, "/accounts/acc-a/credit", `{"amount":"10"}`, "k1")
	require.Equal(t, http.StatusOK, first.Code)

	// Same route pattern, same body, different account: the hash must differ,
	// so this is a key-reuse conflict, never a replay of account A's response.
	second := postWithKey(r, "/accounts/acc-b/credit", `{"amount":"10"}`, "k1")
	require.Equal(t, http.StatusConflict, second.Code)
	require.NotContains(t, second.Body.String(), "acc-a")
}

func TestRequestHashCoversConcretePath(t *testing.T) {
	body := []byte(`{"amount":"10"}`)
	a := idempo.RequestHash(http.MethodPost, "/accounts/acc-a/credit", body, "k1")
	b := idempo.RequestHash(http.MethodPost, "/accounts/acc-b/credit", body, "k1")
	require.NotEqual(t, a, b)
}
