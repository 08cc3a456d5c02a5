package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, buf *bytes.Buffer) (*gin.Engine, *PrometheusMiddleware, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	pm, err := NewPrometheusMiddleware("test", reg)
	require.NoError(t, err)

	r := gin.New()
	r.Use(NewRequestLogger(logging.NewWriterLogger("http", buf, logging.DEBUG)).Handler())
	r.Use(pm.Handler())
	r.GET("/ok/:id", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(TraceIDKey)) })
	pm.RegisterMetricsEndpoint(r, reg)
	return r, pm, reg
}

func TestRequestLogger_SetsTraceID(t *testing.T) {
	var buf bytes.Buffer
	r, _, _ := newRouter(t, &buf)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok/1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	traceID := w.Header().Get("X-Trace-Id")
	assert.Len(t, traceID, 36)
	assert.Equal(t, traceID, w.Body.String())
	assert.Contains(t, buf.String(), "/ok/:id 200")
}

func TestPrometheusMiddleware_CountsRequests(t *testing.T) {
	var buf bytes.Buffer
	r, pm, _ := newRouter(t, &buf)

	for _, path := range []string{"/ok/1", "/ok/2", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.reqErrors.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.reqInflight))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `test_http_request_duration_seconds_count{method="GET",path="/ok/:id",status="200"} 2`))
}
