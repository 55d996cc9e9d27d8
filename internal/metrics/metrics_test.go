package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/preflight/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := metrics.New()
	m.Run("blocked")
	m.Run("blocked")
	m.Run("composed")
	m.PackOp("activate", nil)
	m.PackOp("activate", errors.New("boom"))
	m.Stage("classify", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Counter("blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Counter("composed")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `preflight_pack_operations_total{op="activate",result="error"} 1`)
	assert.Contains(t, string(body), `preflight_stage_duration_seconds_count{stage="classify"} 1`)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.Run("composed")
		m.Stage("compose", time.Now())
		m.Decision("auto_accept")
		m.GateReason("TOPIC_EMPTY")
		m.Recovery("fallback")
		m.PackOp("eval", nil)
	})
	assert.Nil(t, m.Registry())
}
