package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordMovement(t *testing.T) {
	in := testutil.ToFloat64(CreditsMoved.WithLabelValues("PROMO", "in"))
	out := testutil.ToFloat64(CreditsMoved.WithLabelValues("PROMO", "out"))
	entries := testutil.ToFloat64(EntriesWritten.WithLabelValues("consume"))

	RecordMovement("PROMO", "consume", -7)
	RecordMovement("PROMO", "consume", 3)

	assert.Equal(t, in+3, testutil.ToFloat64(CreditsMoved.WithLabelValues("PROMO", "in")))
	assert.Equal(t, out+7, testutil.ToFloat64(CreditsMoved.WithLabelValues("PROMO", "out")))
	assert.Equal(t, entries+2, testutil.ToFloat64(EntriesWritten.WithLabelValues("consume")))
}
