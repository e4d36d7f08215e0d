package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRemoteCall(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRemoteCall("relay", "build", nil, 0.2)
	m.RecordRemoteCall("relay", "build", errors.New("boom"), 0.1)
	m.RecordRemoteCall("relay", "build", errors.New("boom"), 0.1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteCallsTotal.WithLabelValues("relay", "build", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.remoteCallsTotal.WithLabelValues("relay", "build", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRemoteCall("relay", "submit", nil, 1)
		m.RecordPollTick(nil)
		m.RecordTransfer("completed")
		m.SetBalance(10)
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordPollTick(errors.New("timeout"))
	m.SetBalance(10500000)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, `smartwallet_balance_poll_ticks_total{status="error"} 1`)
	assert.Contains(t, body, "smartwallet_balance_minor_units 1.05e+07")
}
