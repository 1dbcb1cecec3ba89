// Package metrics exposes the server's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_http_requests_total",
			Help: "HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	assistantReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_assistant_replies_total",
			Help: "Assistant replies by confidence band.",
		},
		[]string{"band"},
	)
	assistantFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_assistant_failures_total",
			Help: "Sends that produced no assistant reply.",
		},
	)
	aiCost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_ai_cost_total",
			Help: "Accumulated AI cost reported to clients.",
		},
	)
	escalations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_escalations_total",
			Help: "Escalations by stage (queued, applied, failed).",
		},
		[]string{"stage"},
	)
	resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_resolutions_total",
			Help: "Resolved conversations by actor role.",
		},
		[]string{"role"},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, assistantReplies, assistantFailures, aiCost, escalations, resolutions)
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware records request counts and latency keyed by the route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func ObserveReply(confidence, cost float64, lowThreshold float64) {
	band := "ok"
	if confidence < lowThreshold {
		band = "low"
	}
	assistantReplies.WithLabelValues(band).Inc()
	if cost > 0 {
		aiCost.Add(cost)
	}
}

func ReplyFailed() { assistantFailures.Inc() }

func Escalation(stage string) { escalations.WithLabelValues(stage).Inc() }

func Resolved(role string) { resolutions.WithLabelValues(role).Inc() }
