package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adscope/billing/pkg/types"
)

const paidInvoiceEvent = `{
  "id": "evt_01",
  "type": "invoice.paid",
  "data": {
    "object": {
      "id": "in_01",
      "status": "paid",
      "customer": "cus_01",
      "amount_paid": 2900,
      "currency": "usd",
      "parent": {"subscription_details": {"subscription": "sub_01"}},
      "lines": {"data": [{"period": {"start": 1759276800, "end": 1761955200}}]}
    }
  }
}`

func TestDecodeEnvelopeAndInvoice(t *testing.T) {
	env, err := decodeEnvelope([]byte(paidInvoiceEvent))
	require.NoError(t, err)
	require.Equal(t, "evt_01", env.ID)
	require.Equal(t, "invoice.paid", env.Type)

	var obj invoiceObject
	require.NoError(t, decodeObject(env, &obj))
	inv := obj.toData()
	require.Equal(t, "in_01", inv.ID)
	require.Equal(t, "sub_01", inv.SubscriptionID)
	require.Equal(t, int64(2900), inv.AmountPaidCents)
	require.Equal(t, time.Unix(1759276800, 0), inv.PeriodStart)
	require.Equal(t, time.Unix(1761955200, 0), inv.PeriodEnd)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := decodeEnvelope([]byte(`not json`))
	require.Error(t, err)

	_, err = decodeEnvelope([]byte(`{"id":"evt_02","type":"invoice.paid","data":{}}`))
	require.Error(t, err)
}

func TestInvoiceWithoutSubscriptionParent(t *testing.T) {
	env, err := decodeEnvelope([]byte(`{
	  "id": "evt_03",
	  "type": "invoice.paid",
	  "data": {"object": {"id": "in_02", "status": "paid", "customer": "cus_01"}}
	}`))
	require.NoError(t, err)

	var obj invoiceObject
	require.NoError(t, decodeObject(env, &obj))
	require.Empty(t, obj.subscriptionID())
	require.True(t, obj.toData().PeriodEnd.IsZero())
}

func TestMapGatewayStatus(t *testing.T) {
	require.Equal(t, types.SubscriptionStatusActive, mapGatewayStatus("active"))
	require.Equal(t, types.SubscriptionStatusPastDue, mapGatewayStatus("past_due"))
	require.Equal(t, types.SubscriptionStatusPastDue, mapGatewayStatus("unpaid"))
	require.Equal(t, types.SubscriptionStatusCanceled, mapGatewayStatus("canceled"))
	require.Equal(t, types.SubscriptionStatusIncomplete, mapGatewayStatus("paused"))
}

func TestAdvancePeriod(t *testing.T) {
	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), advancePeriod(start, types.BillingIntervalMonth))
	require.Equal(t, time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC), advancePeriod(start, types.BillingIntervalYear))
}

func TestOutcomeTerminal(t *testing.T) {
	require.True(t, OutcomeProcessed.Terminal())
	require.True(t, OutcomeIgnored.Terminal())
	require.False(t, OutcomeDeadLetter.Terminal())
	require.False(t, OutcomeSkipped.Terminal())
}
