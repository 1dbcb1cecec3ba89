package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", Handler())

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/things/:id", "204"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/things/42", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/things/:id", "204"))
	assert.Equal(t, before+1, after)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "helpdesk_http_requests_total"))
}

func TestObserveReplyBands(t *testing.T) {
	low := testutil.ToFloat64(assistantReplies.WithLabelValues("low"))
	ok := testutil.ToFloat64(assistantReplies.WithLabelValues("ok"))

	ObserveReply(0.5, 0.001, 0.7)
	ObserveReply(0.9, 0.001, 0.7)

	assert.Equal(t, low+1, testutil.ToFloat64(assistantReplies.WithLabelValues("low")))
	assert.Equal(t, ok+1, testutil.ToFloat64(assistantReplies.WithLabelValues("ok")))
}
