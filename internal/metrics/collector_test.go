package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
}

func TestNewCollector(t *testing.T) {
	collector := newTestCollector(t)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.configOperationsTotal)
	assert.NotNil(t, collector.cacheHits)
	assert.NotNil(t, collector.subscribersConnected)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordHTTPRequest("GET", "/api/v1/configs", 200, 100*time.Millisecond)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)

	collector.RecordHTTPRequest("GET", "/api/v1/configs", 200, 50*time.Millisecond)

	newCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.GreaterOrEqual(t, newCount, count)
}

func TestCollector_RecordConfigOperation(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordConfigOperation("update", "success", 10*time.Millisecond)
	collector.RecordConfigOperation("update", "error", 5*time.Millisecond)

	count := testutil.CollectAndCount(collector.configOperationsTotal)
	assert.Equal(t, 2, count)
}

func TestCollector_CacheCounters(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordCacheHit("memory")
	collector.RecordCacheHit("memory")
	collector.RecordCacheMiss("memory")

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.cacheHits.WithLabelValues("memory")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cacheMisses.WithLabelValues("memory")))
}

func TestCollector_SubscriberGauge(t *testing.T) {
	collector := newTestCollector(t)

	collector.SetSubscribersConnected(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.subscribersConnected))

	collector.SetSubscribersConnected(1)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.subscribersConnected))
}

func TestCollector_NilSafe(t *testing.T) {
	var collector *Collector

	// Every recorder must be callable on a nil collector.
	collector.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
	collector.RecordConfigOperation("read", "success", time.Millisecond)
	collector.RecordCacheHit("memory")
	collector.RecordCacheMiss("memory")
	collector.RecordDBConnections("postgres", 1, 1)
	collector.SetSubscribersConnected(0)
	collector.RecordEventPublished()
	collector.RecordEventDropped()
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(301))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(42))
}
