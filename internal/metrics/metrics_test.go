package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCounters(t *testing.T) {
	m := New()
	m.Run(nil, time.Second)
	m.Run(errors.New("boom"), time.Second)
	m.Run(nil, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("error")))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess), 0.0)
}

func TestImportCounters(t *testing.T) {
	m := New()
	m.Imported("lounge", 3)
	m.Rejected("lounge", 1)
	m.Published(12, 2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.eventsImported.WithLabelValues("lounge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsRejected.WithLabelValues("lounge")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.events))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.warnings))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Run(nil, 0)
		m.Imported("x", 1)
		m.Rejected("x", 1)
		m.Published(1, 1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Run(nil, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `vocsched_runs_total{status="ok"} 1`)
}

func TestRunSeriesExportedBeforeFirstRun(t *testing.T) {
	m := New()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `vocsched_runs_total{status="ok"} 0`)
	assert.Contains(t, body, `vocsched_runs_total{status="error"} 0`)
}
