package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordStoreOperation(t *testing.T) {
	before := testutil.CollectAndCount(StoreOperationDuration)

	RecordStoreOperation("metrics_test_op", time.Now(), nil)
	RecordStoreOperation("metrics_test_op", time.Now(), errors.New("boom"))

	assert.Equal(t, before+2, testutil.CollectAndCount(StoreOperationDuration))
}

func TestRateLimitRejectionsCounter(t *testing.T) {
	c := RateLimitRejections.WithLabelValues("metrics_test")
	start := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, start+1, testutil.ToFloat64(c))
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.CollectAndCount(HTTPRequestDuration)
	RecordHTTPRequest("GET", "/metrics-test", 200, 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.CollectAndCount(HTTPRequestDuration))
}
