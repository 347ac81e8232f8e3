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

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.ParcelTransition("Received")
	m.ParcelTransition("Received")
	m.IssueUpdate("comment")
	m.Propagation(3, 1)
	m.AttachmentCleanupFailed()
	m.ObserveRequest(http.MethodGet, "/v1/parcels", 200, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("Received")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.propagations.WithLabelValues("modified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cleanupFailures))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `parceltrack_parcel_transitions_total{state="Received"} 2`)
	assert.Contains(t, string(body), "parceltrack_issue_updates_total")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ParcelTransition("Received")
	m.IssueUpdate("status")
	m.Propagation(1, 0)
	m.AttachmentCleanupFailed()
	m.ObserveRequest("GET", "/", 200, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
