package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCompletion(t *testing.T) {
	before := testutil.ToFloat64(CompletionsTotal.WithLabelValues("metrics-test", "ok"))

	ObserveCompletion("metrics-test", "ok", time.Now().Add(-2*time.Second))

	assert.Equal(t, before+1, testutil.ToFloat64(CompletionsTotal.WithLabelValues("metrics-test", "ok")))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(CompletionDuration), 1)
}

func TestHandlerExposesCollectors(t *testing.T) {
	OpenSessions.Set(2)
	defer OpenSessions.Set(0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "browserchat_session_open 2")
}
