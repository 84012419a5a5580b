package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, acquisitionsTotal)
	require.NotNil(t, sessionAttemptsTotal)
	require.NotNil(t, documentDownloadsTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserversRecordValues(t *testing.T) {
	before := testutil.ToFloat64(acquisitionCounter("complete"))
	ObserveAcquisition("complete", 3*time.Second)
	require.InDelta(t, before+1, testutil.ToFloat64(acquisitionCounter("complete")), 0.001)

	ObserveSessionAttempt("invalid_captcha")
	require.GreaterOrEqual(t, testutil.ToFloat64(sessionAttemptsTotal.WithLabelValues("invalid_captcha")), 1.0)

	ObserveDocument("retry")
	require.GreaterOrEqual(t, testutil.ToFloat64(documentDownloadsTotal.WithLabelValues("retry")), 1.0)

	gaps := testutil.ToFloat64(documentGapsTotal)
	AddDocumentGaps(0)
	AddDocumentGaps(2)
	require.InDelta(t, gaps+2, testutil.ToFloat64(documentGapsTotal), 0.001)

	IncActiveWorkers()
	active := testutil.ToFloat64(activeWorkers)
	DecActiveWorkers()
	require.InDelta(t, active-1, testutil.ToFloat64(activeWorkers), 0.001)

	ObserveRateLimitDelay(250 * time.Millisecond)
	require.Positive(t, testutil.CollectAndCount(rateLimitDelaySeconds))
}

func acquisitionCounter(outcome string) prometheus.Counter {
	Init()
	return acquisitionsTotal.WithLabelValues(outcome)
}
