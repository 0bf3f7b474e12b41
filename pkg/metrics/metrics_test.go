package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest(http.MethodGet, "/org/{orgId}", http.StatusOK, 15*time.Millisecond)
	c.RecordRequest(http.MethodGet, "/org/{orgId}", http.StatusOK, 5*time.Millisecond)
	c.RecordOrgOperation("rename", nil)
	c.RecordOrgOperation("rename", errors.New("forbidden"))
	c.RecordLogin("google", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("GET", "/org/{orgId}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.orgOps.WithLabelValues("rename", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.orgOps.WithLabelValues("rename", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.logins.WithLabelValues("google", "true")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.latency))
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordOrgOperation("create", nil)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `quickcap_org_operations_total{operation="create",result="ok"} 1`)
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordRequest("GET", "/", 200, time.Second)
	r.RecordOrgOperation("create", nil)
	r.RecordLogin("google", false)
}
