package idempo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adscope/billing/internal/models"
)

func TestRequestHash_SensitiveToEveryPart(t *testing.T) {
	base := RequestHash("POST", "/api/v1/ledger/credit", []byte(`{"amount":50}`), "k1")

	require.Equal(t, base, RequestHash("POST", "/api/v1/ledger/credit", []byte(`{"amount":50}`), "k1"))
	require.NotEqual(t, base, RequestHash("PUT", "/api/v1/ledger/credit", []byte(`{"amount":50}`), "k1"))
	require.NotEqual(t, base, RequestHash("POST", "/api/v1/ledger/consume", []byte(`{"amount":50}`), "k1"))
	require.NotEqual(t, base, RequestHash("POST", "/api/v1/ledger/credit", []byte(`{"amount":51}`), "k1"))
	require.NotEqual(t, base, RequestHash("POST", "/api/v1/ledger/credit", []byte(`{"amount":50}`), "k2"))
}

func TestDecide(t *testing.T) {
	hash := RequestHash("POST", "/p", []byte("b"), "k")

	require.Equal(t, DecisionProceed, decide(nil, hash))

	rec := &models.IdempotencyRecord{RequestHash: hash, Status: models.IdempotencyStatusSucceeded}
	require.Equal(t, DecisionDuplicate, decide(rec, hash))

	rec.Status = models.IdempotencyStatusPending
	require.Equal(t, DecisionInFlight, decide(rec, hash))

	rec.Status = models.IdempotencyStatusFailed
	require.Equal(t, DecisionProceed, decide(rec, hash))

	// Reused key with different payload conflicts regardless of status.
	rec.Status = models.IdempotencyStatusSucceeded
	require.Equal(t, DecisionConflict, decide(rec, "other-hash"))
}
